package reservation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/solestack/storefront/internal/ledger"
	pkgerrors "github.com/solestack/storefront/pkg/errors"
	"github.com/solestack/storefront/pkg/logger"
	"github.com/solestack/storefront/pkg/metrics"
)

type stockLedger interface {
	Reserve(ctx context.Context, m ledger.Mutation) error
	Release(ctx context.Context, m ledger.Mutation) error
}

// Line is one cart entry to reserve.
type Line struct {
	VariantID uuid.UUID
	Qty       int
}

// Set is the compensation log of one checkout attempt: the lines reserved
// so far, in the order they were reserved. It only lives for the duration
// of the checkout call.
type Set struct {
	TenantID uuid.UUID
	Actor    string
	entries  []Line
}

// Entries returns a copy of the reserved lines in reservation order.
func (s *Set) Entries() []Line {
	if s == nil {
		return nil
	}
	return append([]Line(nil), s.entries...)
}

// Len reports how many lines are held.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

func (s *Set) add(line Line) {
	s.entries = append(s.entries, line)
}

// Coordinator reserves a cart line by line against the stock ledger and
// unwinds what it reserved when a later line fails.
type Coordinator struct {
	ledger  stockLedger
	logg    *logger.Logger
	metrics *metrics.SagaMetrics
}

// NewCoordinator wires the coordinator. metrics may be nil.
func NewCoordinator(stock stockLedger, logg *logger.Logger, m *metrics.SagaMetrics) (*Coordinator, error) {
	if stock == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Coordinator{ledger: stock, logg: logg, metrics: m}, nil
}

// ReserveAll reserves every line in submitted order. On the first failure
// the already reserved prefix is released in reverse and the reserve error
// is returned unchanged, so nothing stays held.
func (c *Coordinator) ReserveAll(ctx context.Context, tenantID uuid.UUID, actor string, lines []Line) (*Set, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant is required")
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}

	set := &Set{TenantID: tenantID, Actor: actor}
	for idx, line := range lines {
		err := c.ledger.Reserve(ctx, ledger.Mutation{
			TenantID:  tenantID,
			VariantID: line.VariantID,
			Qty:       line.Qty,
			Actor:     actor,
			Reason:    ledger.ReasonCheckoutReservation,
		})
		if err == nil {
			set.add(line)
			continue
		}

		logCtx := c.logg.WithFields(ctx, map[string]any{
			"tenant_id":  tenantID.String(),
			"variant_id": line.VariantID.String(),
			"line_index": idx,
			"held":       set.Len(),
		})
		c.logg.Warn(logCtx, "reservation.line_failed")

		// the shopper sees the reserve error; a compensation failure is
		// already logged and counted inside Compensate
		_ = c.Compensate(ctx, set)
		return nil, err
	}
	return set, nil
}

// Compensate releases every held line in reverse order. It keeps going past
// individual failures; any failure leaves reserved inflated and is reported
// as a critical alert, with no automatic retry.
func (c *Coordinator) Compensate(ctx context.Context, set *Set) error {
	if set == nil || set.Len() == 0 {
		return nil
	}

	var errs error
	failed := 0
	for i := len(set.entries) - 1; i >= 0; i-- {
		line := set.entries[i]
		err := c.ledger.Release(ctx, ledger.Mutation{
			TenantID:  set.TenantID,
			VariantID: line.VariantID,
			Qty:       line.Qty,
			Actor:     set.Actor,
			Reason:    ledger.ReasonCheckoutCompensate,
		})
		if err == nil {
			continue
		}
		failed++
		c.metrics.IncCompensationFailure()
		errs = multierr.Append(errs, fmt.Errorf("release variant %s qty %d: %w", line.VariantID, line.Qty, err))
	}

	if errs == nil {
		set.entries = nil
		return nil
	}

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"tenant_id": set.TenantID.String(),
		"failed":    failed,
		"held":      set.Len(),
	})
	c.logg.Critical(logCtx, "reservation.compensation_failed", errs)
	return pkgerrors.Wrap(pkgerrors.CodeCompensation, errs, "reservation compensation failed")
}
