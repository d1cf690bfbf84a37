package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/solestack/storefront/pkg/db/models"
	"github.com/solestack/storefront/pkg/enums"
	pkgerrors "github.com/solestack/storefront/pkg/errors"
	"github.com/solestack/storefront/pkg/logger"
	"github.com/solestack/storefront/pkg/metrics"
)

const (
	defaultActor   = "system"
	maxHistoryRows = 500

	ReasonCheckoutReservation = "checkout_reservation"
	ReasonCheckoutCompensate  = "checkout_compensation"
	ReasonPaymentSettled      = "payment_settled"
	ReasonPaymentFailed       = "payment_failed"
	ReasonStaffCancel         = "staff_cancel"
	ReasonReturnRestock       = "return_restock"
)

// Service is the stock ledger: the only code allowed to move a variant's
// stock and reserved counters.
type Service interface {
	WithTx(tx *gorm.DB) Service
	Reserve(ctx context.Context, m Mutation) error
	Release(ctx context.Context, m Mutation) error
	Finalize(ctx context.Context, m Mutation) error
	Restock(ctx context.Context, m Mutation) error
	Adjust(ctx context.Context, a Adjustment) (*models.Variant, error)
	Get(ctx context.Context, tenantID, variantID uuid.UUID) (*models.Variant, error)
	History(ctx context.Context, tenantID, variantID uuid.UUID, limit int) ([]models.StockAuditEntry, error)
}

// Mutation targets a quantity of one variant within one tenant.
type Mutation struct {
	TenantID  uuid.UUID
	VariantID uuid.UUID
	Qty       int
	OrderID   *uuid.UUID
	Actor     string
	Reason    string
}

// Adjustment is a staff stock correction; Delta may be negative.
type Adjustment struct {
	TenantID  uuid.UUID
	VariantID uuid.UUID
	Delta     int
	Reason    string
	Actor     string
}

type service struct {
	db      *gorm.DB
	repo    Repository
	logg    *logger.Logger
	metrics *metrics.SagaMetrics
}

// NewService wires the stock ledger. metrics may be nil.
func NewService(db *gorm.DB, repo Repository, logg *logger.Logger, m *metrics.SagaMetrics) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("ledger db required")
	}
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{db: db, repo: repo, logg: logg, metrics: m}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	clone := *s
	clone.db = tx
	clone.repo = s.repo.WithTx(tx)
	return &clone
}

// atomically runs fn in its own transaction, or in a savepoint when the
// service is already bound to an outer transaction.
func (s *service) atomically(ctx context.Context, fn func(repo Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(s.repo.WithTx(tx))
	})
}

func (s *service) Reserve(ctx context.Context, m Mutation) error {
	if err := validateMutation(m); err != nil {
		return err
	}
	err := s.atomically(ctx, func(repo Repository) error {
		ok, err := repo.IncrementReserved(ctx, m.TenantID, m.VariantID, m.Qty)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve stock")
		}
		if !ok {
			variant, err := s.lookup(ctx, repo, m.TenantID, m.VariantID)
			if err != nil {
				return err
			}
			return insufficientStock(variant, m.Qty)
		}
		return appendAudit(ctx, repo, m, enums.StockOperationReserve, 0, m.Qty, ReasonCheckoutReservation)
	})
	s.observe(enums.StockOperationReserve, err)
	return err
}

// Release gives back a reservation. Releasing more than is currently
// reserved floors the counter at zero and logs the mismatch.
func (s *service) Release(ctx context.Context, m Mutation) error {
	if err := validateMutation(m); err != nil {
		return err
	}
	err := s.atomically(ctx, func(repo Repository) error {
		ok, err := repo.DecrementReserved(ctx, m.TenantID, m.VariantID, m.Qty)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release stock")
		}
		if ok {
			return appendAudit(ctx, repo, m, enums.StockOperationRelease, 0, -m.Qty, ReasonCheckoutCompensate)
		}

		variant, err := s.lookup(ctx, repo, m.TenantID, m.VariantID)
		if err != nil {
			return err
		}
		clamped, err := repo.ZeroReservedBelow(ctx, m.TenantID, m.VariantID, m.Qty)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release stock")
		}
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"tenant_id":  m.TenantID.String(),
			"variant_id": m.VariantID.String(),
			"requested":  m.Qty,
			"reserved":   variant.Reserved,
		})
		s.logg.Warn(logCtx, "ledger.release_exceeds_reserved")
		if !clamped {
			// a concurrent reserve raised the counter between the two statements; retry the plain path once
			ok, err := repo.DecrementReserved(ctx, m.TenantID, m.VariantID, m.Qty)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release stock")
			}
			if ok {
				return appendAudit(ctx, repo, m, enums.StockOperationRelease, 0, -m.Qty, ReasonCheckoutCompensate)
			}
			return nil
		}
		m.Reason = withSuffix(m.Reason, ReasonCheckoutCompensate, "clamped")
		return appendAudit(ctx, repo, m, enums.StockOperationRelease, 0, -variant.Reserved, m.Reason)
	})
	s.observe(enums.StockOperationRelease, err)
	return err
}

// Finalize converts reserved units into a sale. Callers gate it on the
// order status so each unit is finalized once.
func (s *service) Finalize(ctx context.Context, m Mutation) error {
	if err := validateMutation(m); err != nil {
		return err
	}
	err := s.atomically(ctx, func(repo Repository) error {
		ok, err := repo.ConsumeReserved(ctx, m.TenantID, m.VariantID, m.Qty)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize stock")
		}
		if !ok {
			variant, err := s.lookup(ctx, repo, m.TenantID, m.VariantID)
			if err != nil {
				return err
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no reservation to finalize").WithDetails(map[string]any{
				"variantId": variant.ID.String(),
				"requested": m.Qty,
				"reserved":  variant.Reserved,
				"stock":     variant.Stock,
			})
		}
		return appendAudit(ctx, repo, m, enums.StockOperationFinalize, -m.Qty, -m.Qty, ReasonPaymentSettled)
	})
	s.observe(enums.StockOperationFinalize, err)
	return err
}

// Restock puts returned goods back on the shelf. It touches stock only.
func (s *service) Restock(ctx context.Context, m Mutation) error {
	if err := validateMutation(m); err != nil {
		return err
	}
	err := s.atomically(ctx, func(repo Repository) error {
		ok, err := repo.ShiftStock(ctx, m.TenantID, m.VariantID, m.Qty)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restock")
		}
		if !ok {
			if _, err := s.lookup(ctx, repo, m.TenantID, m.VariantID); err != nil {
				return err
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "restock rejected")
		}
		return appendAudit(ctx, repo, m, enums.StockOperationRestock, m.Qty, 0, ReasonReturnRestock)
	})
	s.observe(enums.StockOperationRestock, err)
	return err
}

// Adjust applies a staff correction to stock. It refuses to leave stock
// below what is currently reserved.
func (s *service) Adjust(ctx context.Context, a Adjustment) (*models.Variant, error) {
	if a.TenantID == uuid.Nil || a.VariantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant and variant are required")
	}
	if a.Delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta must be non-zero")
	}
	if strings.TrimSpace(a.Reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}

	var updated *models.Variant
	err := s.atomically(ctx, func(repo Repository) error {
		ok, err := repo.ShiftStock(ctx, a.TenantID, a.VariantID, a.Delta)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "adjust stock")
		}
		if !ok {
			variant, err := s.lookup(ctx, repo, a.TenantID, a.VariantID)
			if err != nil {
				return err
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "adjustment would leave stock below reserved").WithDetails(map[string]any{
				"variantId": variant.ID.String(),
				"delta":     a.Delta,
				"stock":     variant.Stock,
				"reserved":  variant.Reserved,
			})
		}
		m := Mutation{TenantID: a.TenantID, VariantID: a.VariantID, Actor: a.Actor, Reason: a.Reason}
		if err := appendAudit(ctx, repo, m, enums.StockOperationAdjust, a.Delta, 0, a.Reason); err != nil {
			return err
		}
		updated, err = s.lookup(ctx, repo, a.TenantID, a.VariantID)
		return err
	})
	s.observe(enums.StockOperationAdjust, err)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Get(ctx context.Context, tenantID, variantID uuid.UUID) (*models.Variant, error) {
	return s.lookup(ctx, s.repo, tenantID, variantID)
}

func (s *service) History(ctx context.Context, tenantID, variantID uuid.UUID, limit int) ([]models.StockAuditEntry, error) {
	if limit <= 0 || limit > maxHistoryRows {
		limit = maxHistoryRows
	}
	if _, err := s.lookup(ctx, s.repo, tenantID, variantID); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListAudit(ctx, tenantID, variantID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock audit")
	}
	return entries, nil
}

func (s *service) lookup(ctx context.Context, repo Repository, tenantID, variantID uuid.UUID) (*models.Variant, error) {
	variant, err := repo.FindVariant(ctx, tenantID, variantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found").WithDetails(map[string]any{
				"variantId": variantID.String(),
			})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
	}
	return variant, nil
}

func (s *service) observe(op enums.StockOperation, err error) {
	outcome := "ok"
	if typed := pkgerrors.As(err); typed != nil {
		outcome = strings.ToLower(string(typed.Code()))
	} else if err != nil {
		outcome = "error"
	}
	s.metrics.ObserveStockOperation(string(op), outcome)
}

func insufficientStock(variant *models.Variant, requested int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("variant %s has insufficient stock", variant.ID)).
		WithDetails(map[string]any{
			"variantId": variant.ID.String(),
			"sku":       variant.SKU,
			"requested": requested,
			"available": variant.Available(),
		})
}

func validateMutation(m Mutation) error {
	if m.TenantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "tenant is required")
	}
	if m.VariantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "variant is required")
	}
	if m.Qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return nil
}

func appendAudit(ctx context.Context, repo Repository, m Mutation, op enums.StockOperation, stockDelta, reservedDelta int, fallbackReason string) error {
	actor := strings.TrimSpace(m.Actor)
	if actor == "" {
		actor = defaultActor
	}
	reason := strings.TrimSpace(m.Reason)
	if reason == "" {
		reason = fallbackReason
	}
	entry := &models.StockAuditEntry{
		TenantID:      m.TenantID,
		VariantID:     m.VariantID,
		Operation:     op,
		StockDelta:    stockDelta,
		ReservedDelta: reservedDelta,
		Reason:        reason,
		Actor:         actor,
		OrderID:       m.OrderID,
	}
	if err := repo.AppendAudit(ctx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append stock audit")
	}
	return nil
}

func withSuffix(reason, fallback, suffix string) string {
	if strings.TrimSpace(reason) == "" {
		reason = fallback
	}
	return reason + ":" + suffix
}
