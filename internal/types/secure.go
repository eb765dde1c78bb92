package types

// redactedPlaceholder replaces secret values in logs and dumps.
const redactedPlaceholder = "[REDACTED]"

var redactedJSON = []byte(`"` + redactedPlaceholder + `"`)

// SecretString is a string that redacts itself in formatted output and JSON.
// Configuration uses it for credentials so a config dump never leaks them.
type SecretString string

// String returns the redacted placeholder instead of the raw value.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw plaintext value. Limit usage to the points that
// genuinely need the secret, like connection strings and auth headers.
func (s SecretString) Unmask() string {
	return string(s)
}
