package cron

import (
	"context"
	"fmt"
	"time"
)

const paymentTTLBatchSize = 200

type staleAttemptExpirer interface {
	ExpireStaleAttempts(ctx context.Context, ttl time.Duration, limit int) (int, error)
}

// PaymentTTLJobParams configure the stale payment sweep.
type PaymentTTLJobParams struct {
	Saga staleAttemptExpirer
	TTL  time.Duration
}

type paymentTTLJob struct {
	saga staleAttemptExpirer
	ttl  time.Duration
}

// NewPaymentTTLJob builds the job that times out payment attempts stuck in
// initiated state. The provider never confirmed nor rejected them, so they
// settle as timeouts and their orders compensate.
func NewPaymentTTLJob(params PaymentTTLJobParams) (Job, error) {
	if params.Saga == nil {
		return nil, fmt.Errorf("saga coordinator required")
	}
	if params.TTL <= 0 {
		return nil, fmt.Errorf("positive ttl required")
	}
	return &paymentTTLJob{saga: params.Saga, ttl: params.TTL}, nil
}

func (j *paymentTTLJob) Name() string { return "payment-ttl" }

func (j *paymentTTLJob) Run(ctx context.Context) error {
	_, err := j.saga.ExpireStaleAttempts(ctx, j.ttl, paymentTTLBatchSize)
	return err
}
