package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	recoveryBatchSize = 100
	recoveryLookback  = 48 * time.Hour
)

type compensationRecoverer interface {
	RecoverCompensations(ctx context.Context, since time.Time, limit int) (int, error)
}

// CompensationRecoveryJobParams configure the restock repair sweep.
type CompensationRecoveryJobParams struct {
	Saga     compensationRecoverer
	Lookback time.Duration
}

type compensationRecoveryJob struct {
	saga     compensationRecoverer
	lookback time.Duration
}

// NewCompensationRecoveryJob builds the job that replays stock releases
// for recently compensated orders. The release itself is idempotent, so
// the sweep only repairs orders whose restock was lost mid-flight.
func NewCompensationRecoveryJob(params CompensationRecoveryJobParams) (Job, error) {
	if params.Saga == nil {
		return nil, fmt.Errorf("saga coordinator required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = recoveryLookback
	}
	return &compensationRecoveryJob{saga: params.Saga, lookback: lookback}, nil
}

func (j *compensationRecoveryJob) Name() string { return "compensation-recovery" }

// Run retries transient failures with exponential backoff inside a single
// cron cycle before giving up until the next one.
func (j *compensationRecoveryJob) Run(ctx context.Context) error {
	since := time.Now().UTC().Add(-j.lookback)
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if _, err := j.saga.RecoverCompensations(ctx, since, recoveryBatchSize); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
