package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mavasquez/ferrevia-backend/internal/inventory"
	"github.com/mavasquez/ferrevia-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
}

type fakeExpirer struct {
	ttl     time.Duration
	limit   int
	expired int
	err     error
}

func (f *fakeExpirer) ExpireStaleAttempts(_ context.Context, ttl time.Duration, limit int) (int, error) {
	f.ttl = ttl
	f.limit = limit
	return f.expired, f.err
}

func TestPaymentTTLJob(t *testing.T) {
	t.Parallel()

	_, err := NewPaymentTTLJob(PaymentTTLJobParams{TTL: time.Hour})
	require.Error(t, err)
	_, err = NewPaymentTTLJob(PaymentTTLJobParams{Saga: &fakeExpirer{}})
	require.Error(t, err)

	expirer := &fakeExpirer{expired: 3}
	job, err := NewPaymentTTLJob(PaymentTTLJobParams{Saga: expirer, TTL: 2 * time.Hour})
	require.NoError(t, err)
	assert.Equal(t, "payment-ttl", job.Name())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 2*time.Hour, expirer.ttl)
	assert.Equal(t, paymentTTLBatchSize, expirer.limit)
}

type fakeRecoverer struct {
	calls int
	errs  []error
}

func (f *fakeRecoverer) RecoverCompensations(context.Context, time.Time, int) (int, error) {
	f.calls++
	if f.calls <= len(f.errs) {
		return 0, f.errs[f.calls-1]
	}
	return 1, nil
}

func TestCompensationRecoveryJobRetriesTransientErrors(t *testing.T) {
	t.Parallel()

	recoverer := &fakeRecoverer{errs: []error{errors.New("db hiccup")}}
	job, err := NewCompensationRecoveryJob(CompensationRecoveryJobParams{Saga: recoverer})
	require.NoError(t, err)
	assert.Equal(t, "compensation-recovery", job.Name())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 2, recoverer.calls, "one failure then one success")
}

func TestCompensationRecoveryJobGivesUpEventually(t *testing.T) {
	t.Parallel()

	boom := errors.New("still down")
	recoverer := &fakeRecoverer{errs: []error{boom, boom, boom, boom, boom}}
	job, err := NewCompensationRecoveryJob(CompensationRecoveryJobParams{Saga: recoverer})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

type fakeLister struct {
	ids []int64
}

func (f fakeLister) ListIDs(context.Context) ([]int64, error) { return f.ids, nil }

type fakeChecker struct {
	reports map[int64]*inventory.ConservationReport
	failOn  map[int64]error
}

func (f fakeChecker) CheckConservation(_ context.Context, id int64) (*inventory.ConservationReport, error) {
	if err, ok := f.failOn[id]; ok {
		return nil, err
	}
	return f.reports[id], nil
}

func TestLedgerDriftJobAggregatesErrors(t *testing.T) {
	t.Parallel()

	job, err := NewLedgerDriftJob(LedgerDriftJobParams{
		Logger:   testLogger(),
		Products: fakeLister{ids: []int64{1, 2, 3}},
		Inventory: fakeChecker{
			reports: map[int64]*inventory.ConservationReport{
				1: {ProductID: 1, Available: 5, Expected: 5, Conserved: true},
				3: {ProductID: 3, Available: 4, Expected: 7},
			},
			failOn: map[int64]error{2: errors.New("query failed")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "ledger-drift", job.Name())

	err = job.Run(context.Background())
	require.Error(t, err, "the per-product failure must surface")
	assert.Contains(t, err.Error(), "product 2")
}

func TestLedgerDriftJobCleanSweep(t *testing.T) {
	t.Parallel()

	job, err := NewLedgerDriftJob(LedgerDriftJobParams{
		Logger:   testLogger(),
		Products: fakeLister{ids: []int64{1}},
		Inventory: fakeChecker{
			reports: map[int64]*inventory.ConservationReport{
				1: {ProductID: 1, Available: 5, Expected: 5, Conserved: true},
			},
		},
	})
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))
}
