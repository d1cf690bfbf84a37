package returns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/solestack/storefront/internal/ledger"
	"github.com/solestack/storefront/internal/notifications"
	"github.com/solestack/storefront/internal/orders"
	"github.com/solestack/storefront/pkg/db/models"
	"github.com/solestack/storefront/pkg/enums"
	pkgerrors "github.com/solestack/storefront/pkg/errors"
	"github.com/solestack/storefront/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type notifier interface {
	Notify(ctx context.Context, tx *gorm.DB, n notifications.Notification)
}

// CreateReturnInput describes a staff return against a settled order.
type CreateReturnInput struct {
	TenantID        uuid.UUID
	OrderID         uuid.UUID
	ItemIDs         []uuid.UUID
	Type            enums.ReturnType
	InventoryAction enums.InventoryAction
	Reason          string
	Actor           string
}

// Service records returns and applies their stock and order effects.
type Service interface {
	CreateReturn(ctx context.Context, input CreateReturnInput) (*models.Return, error)
	List(ctx context.Context, tenantID, orderID uuid.UUID) ([]models.Return, error)
}

type service struct {
	tx       txRunner
	repo     Repository
	orders   orders.Repository
	stock    ledger.Service
	notifier notifier
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(tx txRunner, repo Repository, ordersRepo orders.Repository, stock ledger.Service, n notifier, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("returns repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if n == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:       tx,
		repo:     repo,
		orders:   ordersRepo,
		stock:    stock,
		notifier: n,
		logg:     logg,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// CreateReturn returns the remaining quantity of each listed item. Restock
// returns put units back into stock; writeoffs touch no counters. When the
// return leaves every item of the order fully returned, the order moves to
// refunded in the same transaction.
func (s *service) CreateReturn(ctx context.Context, input CreateReturnInput) (*models.Return, error) {
	if err := validate(input); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(input.Reason)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"tenant_id":        input.TenantID.String(),
		"order_id":         input.OrderID.String(),
		"inventory_action": string(input.InventoryAction),
	})

	var created *models.Return
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.orders.WithTx(tx)
		order, err := ordersRepo.FindByID(ctx, input.TenantID, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if !orders.CanTransition(order.Status, enums.OrderStatusRefunded) {
			return orders.InvalidTransition(order.Status, enums.OrderStatusRefunded)
		}

		byID := make(map[uuid.UUID]*models.OrderItem, len(order.Items))
		for i := range order.Items {
			byID[order.Items[i].ID] = &order.Items[i]
		}

		ret := &models.Return{
			TenantID:        input.TenantID,
			OrderID:         order.ID,
			Type:            input.Type,
			InventoryAction: input.InventoryAction,
			Status:          enums.ReturnStatusCompleted,
			Reason:          reason,
			Actor:           input.Actor,
		}
		for _, itemID := range input.ItemIDs {
			item, ok := byID[itemID]
			if !ok {
				return pkgerrors.New(pkgerrors.CodeValidation, "item does not belong to order").
					WithDetails(map[string]any{"itemId": itemID.String()})
			}
			remaining := item.RemainingQty()
			if remaining <= 0 {
				return pkgerrors.New(pkgerrors.CodeConflict, "item already returned").
					WithDetails(map[string]any{"itemId": itemID.String()})
			}

			booked, err := ordersRepo.IncrementReturnedQty(ctx, input.TenantID, item.ID, remaining)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "book returned quantity")
			}
			if !booked {
				return pkgerrors.New(pkgerrors.CodeConflict, "item already returned").
					WithDetails(map[string]any{"itemId": itemID.String()})
			}
			item.ReturnedQty += remaining

			if input.InventoryAction == enums.InventoryActionRestock {
				if err := s.stock.WithTx(tx).Restock(ctx, ledger.Mutation{
					TenantID:  input.TenantID,
					VariantID: item.VariantID,
					Qty:       remaining,
					OrderID:   &order.ID,
					Actor:     input.Actor,
					Reason:    ledger.ReasonReturnRestock,
				}); err != nil {
					return err
				}
			}
			ret.Items = append(ret.Items, models.ReturnItem{
				OrderItemID: item.ID,
				VariantID:   item.VariantID,
				Qty:         remaining,
			})
		}

		if err := s.repo.WithTx(tx).Create(ctx, ret); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create return")
		}

		if fullyReturned(order.Items) {
			now := s.now()
			moved, err := ordersRepo.CompareAndSetStatus(ctx, order.TenantID, order.ID, order.Status, enums.OrderStatusRefunded,
				map[string]any{"refunded_at": now})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order refunded")
			}
			if !moved {
				return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order status changed concurrently")
			}
			order.Status = enums.OrderStatusRefunded
			order.RefundedAt = &now
			s.notifier.Notify(ctx, tx, notifications.Notification{
				Type:   enums.EventOrderRefunded,
				Order:  order,
				Actor:  input.Actor,
				Reason: reason,
			})
		}
		created = ret
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "return transaction failed")
		}
		return nil, err
	}

	s.logg.Info(ctx, "returns.created")
	return created, nil
}

func (s *service) List(ctx context.Context, tenantID, orderID uuid.UUID) ([]models.Return, error) {
	rows, err := s.repo.ListByOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list returns")
	}
	return rows, nil
}

func validate(input CreateReturnInput) error {
	if input.TenantID == uuid.Nil || input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "tenant and order are required")
	}
	if len(input.ItemIDs) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	seen := make(map[uuid.UUID]struct{}, len(input.ItemIDs))
	for _, id := range input.ItemIDs {
		if _, dup := seen[id]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, "item listed twice").
				WithDetails(map[string]any{"itemId": id.String()})
		}
		seen[id] = struct{}{}
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid return type")
	}
	if !input.InventoryAction.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid inventory action")
	}
	if strings.TrimSpace(input.Actor) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor is required")
	}
	return nil
}

func fullyReturned(items []models.OrderItem) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if item.RemainingQty() > 0 {
			return false
		}
	}
	return true
}
