package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCloudWatch struct {
	mu     sync.Mutex
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCloudWatch) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.inputs = append(m.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestRecordSweep(t *testing.T) {
	cw := &mockCloudWatch{}
	metrics := NewSweepMetrics(cw, "AgencyDesk", nil)

	metrics.RecordSweep(context.Background(), "recurring_tasks", 7)

	require.Len(t, cw.inputs, 1)
	input := cw.inputs[0]
	assert.Equal(t, "AgencyDesk", *input.Namespace)

	require.Len(t, input.MetricData, 1)
	datum := input.MetricData[0]
	assert.Equal(t, "SweepItems", *datum.MetricName)
	assert.Equal(t, float64(7), *datum.Value)
	assert.Equal(t, cwtypes.StandardUnitCount, datum.Unit)

	require.Len(t, datum.Dimensions, 1)
	assert.Equal(t, "JobType", *datum.Dimensions[0].Name)
	assert.Equal(t, "recurring_tasks", *datum.Dimensions[0].Value)
}

func TestRecordDuration(t *testing.T) {
	cw := &mockCloudWatch{}
	metrics := NewSweepMetrics(cw, "AgencyDesk", nil)

	metrics.RecordDuration(context.Background(), "client_archive", 1500*time.Millisecond)

	require.Len(t, cw.inputs, 1)
	datum := cw.inputs[0].MetricData[0]
	assert.Equal(t, "SweepDuration", *datum.MetricName)
	assert.Equal(t, float64(1500), *datum.Value)
	assert.Equal(t, cwtypes.StandardUnitMilliseconds, datum.Unit)
}

func TestMetricsFailureIsSwallowed(t *testing.T) {
	cw := &mockCloudWatch{err: assert.AnError}
	metrics := NewSweepMetrics(cw, "AgencyDesk", nil)

	// Must not panic or propagate; emission is best-effort.
	metrics.RecordSweep(context.Background(), "report_schedules", 3)
}
