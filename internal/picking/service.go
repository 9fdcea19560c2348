package picking

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/odyssey-erp/odyssey-distribution/internal/docnumber"
	"github.com/odyssey-erp/odyssey-distribution/internal/documents"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// Store persists picking lists inside the caller's transaction.
type Store interface {
	InsertPickingList(ctx context.Context, pl PickingList) (PickingList, error)
	GetPickingListForUpdate(ctx context.Context, id int64) (PickingList, error)
	// HasOpenPickingList reports whether the order has a list that is neither COMPLETED
	// nor CANCELLED.
	HasOpenPickingList(ctx context.Context, salesOrderID int64) (bool, error)
	// SavePickingList writes the header status and every item's picked quantity and status.
	SavePickingList(ctx context.Context, pl PickingList) error
	DeletePickingList(ctx context.Context, id int64) error
}

// TransferTx is what transfer steps need to manage their picking list.
type TransferTx interface {
	Store
	docnumber.Store
	shared.ActivityStore
}

// TxRepository is everything an order picking step touches in one transaction.
type TxRepository interface {
	TransferTx
	orders.Store
}

type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPickingList(ctx context.Context, id int64) (PickingList, error)
	ListPickingLists(ctx context.Context, filter ListFilter) ([]PickingList, int, error)
}

type Service struct {
	repo     RepositoryPort
	renderer documents.Renderer
	notifier shared.Notifier
	logger   *slog.Logger
}

func NewService(repo RepositoryPort, renderer documents.Renderer, notifier shared.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, renderer: renderer, notifier: notifier, logger: logger}
}

// CreateForOrder copies the order lines into a new PENDING list and moves the order to
// PROCESSING. Stock is not touched.
func (s *Service) CreateForOrder(ctx context.Context, actor shared.Actor, req CreateRequest) (PickingList, error) {
	if req.SalesOrderID <= 0 {
		return PickingList{}, shared.NewValidationError("sales_order_id", "is required")
	}
	var pl PickingList
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		so, err := tx.GetSalesOrderForUpdate(ctx, req.SalesOrderID)
		if err != nil {
			return err
		}
		open, err := tx.HasOpenPickingList(ctx, so.ID)
		if err != nil {
			return err
		}
		if open {
			return ErrDuplicateList
		}
		if err := orders.Transitions.Check("sales order "+so.Number, so.Status, orders.StatusProcessing); err != nil {
			return err
		}
		number, err := docnumber.Next(ctx, tx, docnumber.PickingList, so.WarehouseID, actor.At)
		if err != nil {
			return err
		}
		orderID := so.ID
		pl = PickingList{
			Number:       number,
			SalesOrderID: &orderID,
			WarehouseID:  so.WarehouseID,
			Status:       StatusPending,
			CreatedBy:    actor.UserID,
			CreatedAt:    actor.At,
			UpdatedAt:    actor.At,
		}
		for _, it := range so.Items {
			pl.Items = append(pl.Items, Item{ProductID: it.ProductID, QuantityRequired: it.Quantity, Status: ItemPending})
		}
		if pl, err = tx.InsertPickingList(ctx, pl); err != nil {
			return fmt.Errorf("insert picking list: %w", err)
		}
		if err := shared.LogActivity(ctx, tx, actor, "picking_list.created",
			fmt.Sprintf("Picking list %s created for %s", pl.Number, so.Number), pl.Ref(), nil,
			map[string]any{"status": string(pl.Status), "sales_order_id": so.ID}); err != nil {
			return err
		}
		_, err = orders.Advance(ctx, tx, tx, actor, so.ID, orders.StatusProcessing)
		return err
	})
	if err != nil {
		return PickingList{}, err
	}
	s.logger.Info("picking list created", slog.Int64("id", pl.ID), slog.String("number", pl.Number))
	return pl, nil
}

// Pick records absolute picked quantities. When the list completes, its order becomes
// READY_TO_SHIP.
func (s *Service) Pick(ctx context.Context, actor shared.Actor, id int64, req PickRequest) (PickingList, error) {
	verr := &shared.ValidationError{}
	if len(req.Items) == 0 {
		verr.Add("items", "at least one item is required")
	}
	for i, it := range req.Items {
		if it.QuantityPicked < 0 {
			verr.Add(fmt.Sprintf("items.%d.quantity_picked", i), "cannot be negative")
		}
	}
	if err := verr.OrNil(); err != nil {
		return PickingList{}, err
	}
	return s.record(ctx, actor, id, func(pl PickingList) (map[int64]int64, error) {
		picks := make(map[int64]int64, len(req.Items))
		for _, it := range req.Items {
			picks[it.ItemID] = it.QuantityPicked
		}
		for itemID := range picks {
			if !hasItem(pl, itemID) {
				return nil, fmt.Errorf("item %d: %w", itemID, ErrItemNotOnList)
			}
		}
		return picks, nil
	})
}

// Complete marks every item fully picked.
func (s *Service) Complete(ctx context.Context, actor shared.Actor, id int64) (PickingList, error) {
	return s.record(ctx, actor, id, func(pl PickingList) (map[int64]int64, error) {
		picks := make(map[int64]int64, len(pl.Items))
		for _, it := range pl.Items {
			picks[it.ID] = it.QuantityRequired
		}
		return picks, nil
	})
}

func (s *Service) record(ctx context.Context, actor shared.Actor, id int64, picksFor func(PickingList) (map[int64]int64, error)) (PickingList, error) {
	var (
		pl     PickingList
		outbox shared.Outbox
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPickingListForUpdate(ctx, id)
		if err != nil {
			return err
		}
		picks, err := picksFor(current)
		if err != nil {
			return err
		}
		if pl, err = applyPicks(ctx, tx, actor, current, picks); err != nil {
			return err
		}
		if pl.Status != StatusCompleted || pl.SalesOrderID == nil {
			return nil
		}
		so, err := orders.Advance(ctx, tx, tx, actor, *pl.SalesOrderID, orders.StatusReadyToShip)
		if err != nil {
			return err
		}
		outbox.Add(shared.Notification{
			UserID:   so.CreatedBy,
			Message:  fmt.Sprintf("Sales order %s is picked and ready to ship", so.Number),
			Severity: shared.SeverityInfo,
			Link:     "/api/sales-orders/" + strconv.FormatInt(so.ID, 10),
		})
		return nil
	})
	if err != nil {
		return PickingList{}, err
	}
	outbox.Flush(ctx, s.notifier, s.logger)
	return pl, nil
}

func applyPicks(ctx context.Context, tx TransferTx, actor shared.Actor, pl PickingList, picks map[int64]int64) (PickingList, error) {
	if pl.Status == StatusCompleted {
		return PickingList{}, ErrCompletedList
	}
	if Transitions.Terminal(pl.Status) {
		return PickingList{}, fmt.Errorf("%w: picking list %s is %s", shared.ErrInvalidTransition, pl.Number, pl.Status)
	}
	items := make([]Item, len(pl.Items))
	copy(items, pl.Items)
	for i := range items {
		if qty, ok := picks[items[i].ID]; ok {
			items[i].QuantityPicked = qty
		}
		items[i].Status = ItemStatusFor(items[i].QuantityRequired, items[i].QuantityPicked)
	}
	from := pl.Status
	to := ListStatusFor(from, items)
	if to != from {
		if err := Transitions.Check("picking list "+pl.Number, from, to); err != nil {
			return PickingList{}, err
		}
	}
	pl.Items = items
	pl.Status = to
	pl.UpdatedAt = actor.At
	if err := tx.SavePickingList(ctx, pl); err != nil {
		return PickingList{}, fmt.Errorf("save picking list: %w", err)
	}
	err := shared.LogActivity(ctx, tx, actor, "picking_list.picked",
		fmt.Sprintf("Picking list %s recorded picks", pl.Number), pl.Ref(),
		map[string]any{"status": string(from)}, map[string]any{"status": string(to), "picked": pickedTotal(items)})
	return pl, err
}

// Delete removes a sales order list that is not COMPLETED and reverts a PROCESSING order
// to PENDING. Transfer lists follow their transfer and cannot be deleted.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pl, err := tx.GetPickingListForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if pl.TransferID != nil {
			return ErrTransferList
		}
		if pl.Status == StatusCompleted {
			return ErrCompletedList
		}
		if err := tx.DeletePickingList(ctx, pl.ID); err != nil {
			return err
		}
		if err := shared.LogActivity(ctx, tx, actor, "picking_list.deleted",
			fmt.Sprintf("Picking list %s deleted", pl.Number), pl.Ref(),
			map[string]any{"status": string(pl.Status)}, nil); err != nil {
			return err
		}
		if pl.SalesOrderID == nil {
			return nil
		}
		so, err := tx.GetSalesOrderForUpdate(ctx, *pl.SalesOrderID)
		if err != nil {
			return err
		}
		if !orders.Transitions.Allows(so.Status, orders.StatusPending) {
			return nil
		}
		_, err = orders.Advance(ctx, tx, tx, actor, so.ID, orders.StatusPending)
		return err
	})
}

func (s *Service) Get(ctx context.Context, id int64) (PickingList, error) {
	return s.repo.GetPickingList(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]PickingList, int, error) {
	filter.Page = filter.Page.Normalize()
	return s.repo.ListPickingLists(ctx, filter)
}

// RenderPDF prints the list for the warehouse floor.
func (s *Service) RenderPDF(ctx context.Context, id int64) ([]byte, PickingList, error) {
	pl, err := s.repo.GetPickingList(ctx, id)
	if err != nil {
		return nil, PickingList{}, err
	}
	doc := documents.Document{
		Number:  pl.Number,
		Status:  string(pl.Status),
		Meta:    []documents.Field{{Label: "Warehouse", Value: "#" + strconv.FormatInt(pl.WarehouseID, 10)}, {Label: "Created", Value: documents.FormatDate(pl.CreatedAt)}},
		Columns: []string{"Product", "Required", "Picked", "Status"},
	}
	if pl.SalesOrderID != nil {
		doc.Meta = append(doc.Meta, documents.Field{Label: "Sales order", Value: "#" + strconv.FormatInt(*pl.SalesOrderID, 10)})
	}
	if pl.TransferID != nil {
		doc.Meta = append(doc.Meta, documents.Field{Label: "Transfer", Value: "#" + strconv.FormatInt(*pl.TransferID, 10)})
	}
	for _, it := range pl.Items {
		doc.Rows = append(doc.Rows, []string{
			"#" + strconv.FormatInt(it.ProductID, 10),
			documents.FormatQuantity(it.QuantityRequired),
			documents.FormatQuantity(it.QuantityPicked),
			string(it.Status),
		})
	}
	pdf, err := s.renderer.RenderPDF(ctx, documents.TemplatePickingList, doc)
	if err != nil {
		return nil, PickingList{}, err
	}
	return pdf, pl, nil
}

func hasItem(pl PickingList, itemID int64) bool {
	for _, it := range pl.Items {
		if it.ID == itemID {
			return true
		}
	}
	return false
}

func pickedTotal(items []Item) int64 {
	var total int64
	for _, it := range items {
		total += it.QuantityPicked
	}
	return total
}
