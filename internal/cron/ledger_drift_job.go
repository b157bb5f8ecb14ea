package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/mavasquez/ferrevia-backend/internal/inventory"
	"github.com/mavasquez/ferrevia-backend/pkg/logger"
)

type productIDLister interface {
	ListIDs(ctx context.Context) ([]int64, error)
}

type conservationChecker interface {
	CheckConservation(ctx context.Context, productID int64) (*inventory.ConservationReport, error)
}

// LedgerDriftJobParams configure the ledger consistency sweep.
type LedgerDriftJobParams struct {
	Logger    *logger.Logger
	Products  productIDLister
	Inventory conservationChecker
}

type ledgerDriftJob struct {
	logg      *logger.Logger
	products  productIDLister
	inventory conservationChecker
}

// NewLedgerDriftJob builds the job that replays every product's movement
// ledger against its live stock counter. Drift is reported, never
// auto-corrected: a mismatch means a bug or manual tampering and needs a
// human decision.
func NewLedgerDriftJob(params LedgerDriftJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product lister required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	return &ledgerDriftJob{
		logg:      params.Logger,
		products:  params.Products,
		inventory: params.Inventory,
	}, nil
}

func (j *ledgerDriftJob) Name() string { return "ledger-drift" }

func (j *ledgerDriftJob) Run(ctx context.Context) error {
	ids, err := j.products.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}

	var drifted int
	var errs error
	for _, id := range ids {
		report, err := j.inventory.CheckConservation(ctx, id)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("product %d: %w", id, err))
			continue
		}
		if report.Conserved {
			continue
		}
		drifted++
		driftCtx := j.logg.WithFields(ctx, map[string]any{
			"product_id":   id,
			"available":    report.Available,
			"expected":     report.Expected,
			"chain_broken": report.ChainBroken,
		})
		j.logg.Warn(driftCtx, "inventory ledger drift detected")
	}
	if drifted > 0 {
		j.logg.Warn(j.logg.WithField(ctx, "products_drifted", drifted), "ledger sweep found drift")
	}
	return errs
}
