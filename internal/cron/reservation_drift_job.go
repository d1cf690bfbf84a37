package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/solestack/storefront/internal/ledger"
	"github.com/solestack/storefront/pkg/logger"
	"github.com/solestack/storefront/pkg/metrics"
)

const (
	defaultDriftLimit = 500
	defaultDriftGrace = 5 * time.Minute
)

type driftReader interface {
	ReservationDrift(ctx context.Context, limit int, quietSince time.Time) ([]ledger.Drift, error)
}

// ReservationDriftJobParams configures the audit. Grace is how long a variant
// must go without counter changes before a mismatch on it is reported.
type ReservationDriftJobParams struct {
	Logger  *logger.Logger
	Reader  driftReader
	Metrics *metrics.SagaMetrics
	Limit   int
	Grace   time.Duration
	Now     func() time.Time
}

// NewReservationDriftJob builds the audit that pages operators when a
// variant's reserved counter no longer matches its pending orders. Counters
// are never corrected here.
func NewReservationDriftJob(params ReservationDriftJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("drift reader required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultDriftLimit
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultDriftGrace
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &reservationDriftJob{
		logg:    params.Logger,
		reader:  params.Reader,
		metrics: params.Metrics,
		limit:   limit,
		grace:   grace,
		now:     now,
	}, nil
}

type reservationDriftJob struct {
	logg    *logger.Logger
	reader  driftReader
	metrics *metrics.SagaMetrics
	limit   int
	grace   time.Duration
	now     func() time.Time
}

func (j *reservationDriftJob) Name() string { return "reservation-drift" }

func (j *reservationDriftJob) Run(ctx context.Context) error {
	drift, err := j.reader.ReservationDrift(ctx, j.limit, j.now().Add(-j.grace))
	if err != nil {
		return fmt.Errorf("query reservation drift: %w", err)
	}
	j.metrics.SetDriftedVariants(len(drift))

	for _, d := range drift {
		logCtx := j.logg.WithTenantID(ctx, d.TenantID.String())
		logCtx = j.logg.WithFields(logCtx, map[string]any{
			"variant_id":  d.VariantID.String(),
			"sku":         d.SKU,
			"reserved":    d.Reserved,
			"pending_qty": d.PendingQty,
			"delta":       d.Delta(),
		})
		j.logg.Critical(logCtx, "cron.reservation_drift", fmt.Errorf("reserved %d does not match pending %d", d.Reserved, d.PendingQty))
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"drifted_variants": len(drift), "limit": j.limit})
	j.logg.Info(logCtx, "reservation drift audit complete")
	return nil
}
