package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/odyssey-erp/odyssey-distribution/internal/docnumber"
	"github.com/odyssey-erp/odyssey-distribution/internal/documents"
	"github.com/odyssey-erp/odyssey-distribution/internal/picking"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// Store persists delivery orders inside the caller's transaction.
type Store interface {
	InsertDeliveryOrder(ctx context.Context, do DeliveryOrder) (DeliveryOrder, error)
	GetDeliveryOrderForUpdate(ctx context.Context, id int64) (DeliveryOrder, error)
	// HasActiveDeliveryOrder reports whether a non-cancelled delivery order exists for source.
	HasActiveDeliveryOrder(ctx context.Context, source shared.Ref) (bool, error)
	// HasDeliveredOrder reports whether a sales order has a DELIVERED delivery order.
	HasDeliveredOrder(ctx context.Context, salesOrderID int64) (bool, error)
	// SaveDeliveryOrder writes status, timestamps and every item's outcome.
	SaveDeliveryOrder(ctx context.Context, do DeliveryOrder) error
	// OrderInvoiced reports whether an invoice exists for the sales order.
	OrderInvoiced(ctx context.Context, salesOrderID int64) (bool, error)
}

// TransferTx is what transfer steps need to manage their delivery order.
type TransferTx interface {
	Store
	docnumber.Store
	shared.ActivityStore
}

// TxRepository is everything a delivery step touches in one transaction.
type TxRepository interface {
	Store
	picking.Store
	orders.TxRepository
}

type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetDeliveryOrder(ctx context.Context, id int64) (DeliveryOrder, error)
	ListDeliveryOrders(ctx context.Context, filter ListFilter) ([]DeliveryOrder, int, error)
}

// Service coordinates delivery order workflows.
type Service struct {
	repo     RepositoryPort
	renderer documents.Renderer
	notifier shared.Notifier
	logger   *slog.Logger
}

// NewService builds a delivery service.
func NewService(repo RepositoryPort, renderer documents.Renderer, notifier shared.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, renderer: renderer, notifier: notifier, logger: logger}
}

// Create dispatches to CreateFromOrder or CreateFromPickingList.
func (s *Service) Create(ctx context.Context, actor shared.Actor, req CreateRequest) (DeliveryOrder, error) {
	switch {
	case req.SalesOrderID > 0 && req.PickingListID > 0:
		return DeliveryOrder{}, shared.NewValidationError("picking_list_id", "give either sales_order_id or picking_list_id")
	case req.PickingListID > 0:
		return s.CreateFromPickingList(ctx, actor, req.PickingListID)
	case req.SalesOrderID > 0:
		return s.CreateFromOrder(ctx, actor, req.SalesOrderID)
	}
	return DeliveryOrder{}, shared.NewValidationError("sales_order_id", "is required")
}

// CreateFromOrder copies the order lines 1:1 into a PREPARING delivery order.
func (s *Service) CreateFromOrder(ctx context.Context, actor shared.Actor, salesOrderID int64) (DeliveryOrder, error) {
	var do DeliveryOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		so, err := loadShippableOrder(ctx, tx, salesOrderID)
		if err != nil {
			return err
		}
		items := make([]Item, 0, len(so.Items))
		for _, it := range so.Items {
			items = append(items, Item{ProductID: it.ProductID, QuantityShipped: it.Quantity, Status: ItemPending})
		}
		do, err = insert(ctx, tx, actor, so, nil, items)
		return err
	})
	if err != nil {
		return DeliveryOrder{}, err
	}
	s.logger.Info("delivery order created", slog.Int64("id", do.ID), slog.String("number", do.Number))
	return do, nil
}

// CreateFromPickingList ships the picked quantities of a COMPLETED list.
func (s *Service) CreateFromPickingList(ctx context.Context, actor shared.Actor, pickingListID int64) (DeliveryOrder, error) {
	var do DeliveryOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pl, err := tx.GetPickingListForUpdate(ctx, pickingListID)
		if err != nil {
			return err
		}
		if pl.Status != picking.StatusCompleted {
			return ErrPickingNotCompleted
		}
		if pl.SalesOrderID == nil {
			return fmt.Errorf("%w: picking list %s belongs to a warehouse transfer", shared.ErrBusinessRule, pl.Number)
		}
		so, err := loadShippableOrder(ctx, tx, *pl.SalesOrderID)
		if err != nil {
			return err
		}
		var items []Item
		for _, it := range pl.Items {
			if it.QuantityPicked > 0 {
				items = append(items, Item{ProductID: it.ProductID, QuantityShipped: it.QuantityPicked, Status: ItemPending})
			}
		}
		if len(items) == 0 {
			return ErrNothingToShip
		}
		listID := pl.ID
		do, err = insert(ctx, tx, actor, so, &listID, items)
		return err
	})
	if err != nil {
		return DeliveryOrder{}, err
	}
	s.logger.Info("delivery order created", slog.Int64("id", do.ID), slog.Int64("picking_list_id", pickingListID))
	return do, nil
}

func loadShippableOrder(ctx context.Context, tx TxRepository, salesOrderID int64) (orders.SalesOrder, error) {
	so, err := tx.GetSalesOrderForUpdate(ctx, salesOrderID)
	if err != nil {
		return orders.SalesOrder{}, err
	}
	if so.Status != orders.StatusReadyToShip {
		return orders.SalesOrder{}, fmt.Errorf("%w (sales order %s is %s)", ErrOrderNotReady, so.Number, so.Status)
	}
	active, err := tx.HasActiveDeliveryOrder(ctx, so.Ref())
	if err != nil {
		return orders.SalesOrder{}, err
	}
	if active {
		return orders.SalesOrder{}, ErrActiveDeliveryExists
	}
	return so, nil
}

func insert(ctx context.Context, tx TxRepository, actor shared.Actor, so orders.SalesOrder, pickingListID *int64, items []Item) (DeliveryOrder, error) {
	number, err := docnumber.Next(ctx, tx, docnumber.DeliveryOrder, so.WarehouseID, actor.At)
	if err != nil {
		return DeliveryOrder{}, err
	}
	do, err := tx.InsertDeliveryOrder(ctx, DeliveryOrder{
		Number:        number,
		Source:        so.Ref(),
		PickingListID: pickingListID,
		WarehouseID:   so.WarehouseID,
		Status:        StatusPreparing,
		CreatedBy:     actor.UserID,
		CreatedAt:     actor.At,
		UpdatedAt:     actor.At,
		Items:         items,
	})
	if err != nil {
		return DeliveryOrder{}, fmt.Errorf("insert delivery order: %w", err)
	}
	err = shared.LogActivity(ctx, tx, actor, "delivery_order.created",
		fmt.Sprintf("Delivery order %s created for %s", do.Number, so.Number), do.Ref(), nil,
		map[string]any{"status": string(do.Status), "sales_order_id": so.ID})
	return do, err
}

// MarkReady flags a PREPARING delivery order as packed.
func (s *Service) MarkReady(ctx context.Context, actor shared.Actor, id int64) (DeliveryOrder, error) {
	var do DeliveryOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetDeliveryOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		do, err = move(ctx, tx, tx, actor, current, StatusReady)
		return err
	})
	return do, err
}

// MarkAsShipped is the single point of stock deduction for sales order deliveries. The
// order becomes SHIPPED in the same transaction.
func (s *Service) MarkAsShipped(ctx context.Context, actor shared.Actor, id int64) (DeliveryOrder, error) {
	var (
		do     DeliveryOrder
		outbox shared.Outbox
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetDeliveryOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := Transitions.Check("delivery order "+current.Number, current.Status, StatusShipped); err != nil {
			return err
		}
		if current.Source.Kind == shared.RefSalesOrder {
			so, err := tx.GetSalesOrderForUpdate(ctx, current.Source.ID)
			if err != nil {
				return err
			}
			lines := make([]orders.ShippedLine, 0, len(current.Items))
			for _, it := range current.Items {
				lines = append(lines, orders.ShippedLine{ProductID: it.ProductID, Quantity: it.QuantityShipped})
			}
			if _, err := orders.Ship(ctx, tx, actor, so, current.WarehouseID, lines, current.Ref()); err != nil {
				return err
			}
			if so, err = orders.Advance(ctx, tx, tx, actor, so.ID, orders.StatusShipped); err != nil {
				return err
			}
			outbox.Add(shared.Notification{
				UserID:   so.CreatedBy,
				Message:  fmt.Sprintf("Sales order %s has shipped on %s", so.Number, current.Number),
				Severity: shared.SeverityInfo,
				Link:     link(current.ID),
			})
		}
		at := actor.At
		current.ShippedAt = &at
		do, err = move(ctx, tx, tx, actor, current, StatusShipped)
		return err
	})
	if err != nil {
		return DeliveryOrder{}, err
	}
	outbox.Flush(ctx, s.notifier, s.logger)
	s.logger.Info("delivery order shipped", slog.Int64("id", do.ID), slog.String("number", do.Number))
	return do, nil
}

// MarkAsDelivered records per-item outcomes. The delivery order becomes DELIVERED only when
// every item is DELIVERED, and an already invoiced order then completes.
func (s *Service) MarkAsDelivered(ctx context.Context, actor shared.Actor, id int64, req ReceiveRequest) (DeliveryOrder, error) {
	verr := &shared.ValidationError{}
	for i, it := range req.Items {
		if it.QuantityDelivered < 0 {
			verr.Add(fmt.Sprintf("items.%d.quantity_delivered", i), "cannot be negative")
		}
		if it.Status != "" && !it.Status.valid() {
			verr.Add(fmt.Sprintf("items.%d.status", i), "is invalid")
		}
	}
	if err := verr.OrNil(); err != nil {
		return DeliveryOrder{}, err
	}
	var (
		do     DeliveryOrder
		outbox shared.Outbox
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetDeliveryOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Source.Kind == shared.RefWarehouseTransfer {
			return ErrTransferDelivery
		}
		if current.Status != StatusShipped {
			return fmt.Errorf("%w: delivery order %s is %s, not SHIPPED", shared.ErrInvalidTransition, current.Number, current.Status)
		}
		if err := recordOutcomes(ctx, tx, actor, &current, req.Items); err != nil {
			return err
		}
		if !current.AllDelivered() {
			current.UpdatedAt = actor.At
			do = current
			return tx.SaveDeliveryOrder(ctx, current)
		}
		at := actor.At
		current.DeliveredAt = &at
		if do, err = move(ctx, tx, tx, actor, current, StatusDelivered); err != nil {
			return err
		}
		invoiced, err := tx.OrderInvoiced(ctx, do.Source.ID)
		if err != nil {
			return err
		}
		if !invoiced {
			return nil
		}
		so, err := orders.Advance(ctx, tx, tx, actor, do.Source.ID, orders.StatusCompleted)
		if err != nil {
			return err
		}
		outbox.Add(shared.Notification{
			UserID:   so.CreatedBy,
			Message:  fmt.Sprintf("Sales order %s is completed", so.Number),
			Severity: shared.SeveritySuccess,
			Link:     "/api/sales-orders/" + strconv.FormatInt(so.ID, 10),
		})
		return nil
	})
	if err != nil {
		return DeliveryOrder{}, err
	}
	outbox.Flush(ctx, s.notifier, s.logger)
	return do, nil
}

func recordOutcomes(ctx context.Context, tx shared.ActivityStore, actor shared.Actor, do *DeliveryOrder, outcomes []DeliveredItem) error {
	if len(outcomes) == 0 {
		for i := range do.Items {
			do.Items[i].QuantityDelivered = do.Items[i].QuantityShipped
			do.Items[i].Status = ItemDelivered
		}
		return nil
	}
	index := make(map[int64]int, len(do.Items))
	for i, it := range do.Items {
		index[it.ID] = i
	}
	for _, out := range outcomes {
		i, ok := index[out.ItemID]
		if !ok {
			return fmt.Errorf("item %d: %w", out.ItemID, ErrItemNotOnOrder)
		}
		it := &do.Items[i]
		it.QuantityDelivered = out.QuantityDelivered
		it.Status = out.Status
		if it.Status == "" {
			switch {
			case out.QuantityDelivered >= it.QuantityShipped:
				it.Status = ItemDelivered
			case out.QuantityDelivered > 0:
				it.Status = ItemPartial
			default:
				it.Status = ItemPending
			}
		}
		if it.Status == ItemDamaged {
			err := shared.LogActivity(ctx, tx, actor, "delivery_order.item_damaged",
				fmt.Sprintf("Product %d arrived damaged on %s", it.ProductID, do.Number), do.Ref(), nil,
				map[string]any{"item_id": it.ID, "product_id": it.ProductID, "quantity_shipped": it.QuantityShipped, "quantity_delivered": it.QuantityDelivered})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Cancel stops a delivery order that has not shipped.
func (s *Service) Cancel(ctx context.Context, actor shared.Actor, id int64, req CancelRequest) (DeliveryOrder, error) {
	var do DeliveryOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetDeliveryOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		do, err = move(ctx, tx, tx, actor, current, StatusCancelled)
		if err != nil || req.Reason == "" {
			return err
		}
		return shared.LogActivity(ctx, tx, actor, "delivery_order.cancel_reason", req.Reason, do.Ref(), nil, map[string]any{"reason": req.Reason})
	})
	return do, err
}

func (s *Service) Get(ctx context.Context, id int64) (DeliveryOrder, error) {
	return s.repo.GetDeliveryOrder(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]DeliveryOrder, int, error) {
	filter.Page = filter.Page.Normalize()
	return s.repo.ListDeliveryOrders(ctx, filter)
}

// RenderPDF prints the delivery note.
func (s *Service) RenderPDF(ctx context.Context, id int64) ([]byte, DeliveryOrder, error) {
	do, err := s.repo.GetDeliveryOrder(ctx, id)
	if err != nil {
		return nil, DeliveryOrder{}, err
	}
	doc := documents.Document{
		Number: do.Number,
		Status: string(do.Status),
		Meta: []documents.Field{
			{Label: "Source", Value: do.Source.String()},
			{Label: "Warehouse", Value: "#" + strconv.FormatInt(do.WarehouseID, 10)},
			{Label: "Shipped", Value: documents.FormatDatePtr(do.ShippedAt)},
			{Label: "Delivered", Value: documents.FormatDatePtr(do.DeliveredAt)},
		},
		Columns: []string{"Product", "Shipped", "Delivered", "Status"},
	}
	for _, it := range do.Items {
		doc.Rows = append(doc.Rows, []string{
			"#" + strconv.FormatInt(it.ProductID, 10),
			documents.FormatQuantity(it.QuantityShipped),
			documents.FormatQuantity(it.QuantityDelivered),
			string(it.Status),
		})
	}
	pdf, err := s.renderer.RenderPDF(ctx, documents.TemplateDeliveryOrder, doc)
	if err != nil {
		return nil, DeliveryOrder{}, err
	}
	return pdf, do, nil
}

func move(ctx context.Context, tx Store, activity shared.ActivityStore, actor shared.Actor, do DeliveryOrder, to Status) (DeliveryOrder, error) {
	if err := Transitions.Check("delivery order "+do.Number, do.Status, to); err != nil {
		return DeliveryOrder{}, err
	}
	from := do.Status
	do.Status = to
	do.UpdatedAt = actor.At
	if err := tx.SaveDeliveryOrder(ctx, do); err != nil {
		return DeliveryOrder{}, fmt.Errorf("save delivery order: %w", err)
	}
	err := shared.LogActivity(ctx, activity, actor, "delivery_order.status_changed",
		fmt.Sprintf("Delivery order %s moved from %s to %s", do.Number, from, to), do.Ref(),
		map[string]any{"status": string(from)}, map[string]any{"status": string(to)})
	return do, err
}

func link(id int64) string {
	return "/api/delivery-orders/" + strconv.FormatInt(id, 10)
}
