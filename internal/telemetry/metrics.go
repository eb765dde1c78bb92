// Package telemetry publishes sweep metrics to CloudWatch so the scheduled
// jobs are observable without log scraping: how many items each sweep
// touched and how long it took.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric and dimension names.
const (
	metricSweepItems    = "SweepItems"
	metricSweepDuration = "SweepDuration"
	dimJobType          = "JobType"
)

// CloudWatchAPI abstracts PutMetricData for testability.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// SweepMetrics emits per-sweep metrics to a CloudWatch namespace. Emission
// is best-effort: a metrics failure is logged and never fails the sweep.
type SweepMetrics struct {
	client    CloudWatchAPI
	namespace string
	logger    *slog.Logger
}

// NewSweepMetrics creates a SweepMetrics publisher.
func NewSweepMetrics(client CloudWatchAPI, namespace string, logger *slog.Logger) *SweepMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordSweep emits the number of items a sweep affected, dimensioned by
// job type.
func (m *SweepMetrics) RecordSweep(ctx context.Context, jobType string, items int) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricSweepItems),
				Value:      aws.Float64(float64(items)),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(dimJobType),
						Value: aws.String(jobType),
					},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record sweep metric",
			"job_type", jobType,
			"items", items,
			"error", err,
		)
	}
}

// RecordDuration emits how long a sweep took, in milliseconds.
func (m *SweepMetrics) RecordDuration(ctx context.Context, jobType string, duration time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricSweepDuration),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(dimJobType),
						Value: aws.String(jobType),
					},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record sweep duration metric",
			"job_type", jobType,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
	}
}
