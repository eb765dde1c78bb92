package db

import (
	"context"

	"agencydesk/internal/types"
)

// UserRepository provides the read-side user lookups the notification
// dispatcher needs. User management itself lives outside the engine.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a UserRepository backed by the given connection.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// GetEmailsByIDs resolves user IDs to email addresses. Unknown IDs are
// silently absent from the result; the dispatcher logs and skips them.
func (r *UserRepository) GetEmailsByIDs(ctx context.Context, userIDs []string) (map[string]string, error) {
	if len(userIDs) == 0 {
		return map[string]string{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, email FROM users WHERE id = ANY($1)`,
		userIDs,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query user emails", err)
	}
	defer rows.Close()

	emails := make(map[string]string, len(userIDs))
	for rows.Next() {
		var id, email string
		if err := rows.Scan(&id, &email); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan user email", err)
		}
		emails[id] = email
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating user emails", err)
	}

	return emails, nil
}
