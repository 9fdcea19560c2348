package inventory

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const movementSheet = "Movements"

var movementHeadings = []string{"ID", "Date", "Product", "Warehouse", "Type", "Quantity Change", "Reserved Change", "Previous", "New", "Reference", "Note", "Actor"}

// ExportMovements renders the filtered ledger as an xlsx workbook.
func (s *Service) ExportMovements(ctx context.Context, filter MovementFilter) ([]byte, error) {
	moves, err := s.ListMovements(ctx, filter)
	if err != nil {
		return nil, err
	}
	return movementsWorkbook(moves)
}

func movementsWorkbook(moves []Movement) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", movementSheet); err != nil {
		return nil, err
	}
	for i, h := range movementHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(movementSheet, cell, h); err != nil {
			return nil, err
		}
	}
	for i, m := range moves {
		row := []any{
			m.ID,
			m.CreatedAt.Format("2006-01-02 15:04:05"),
			m.ProductID,
			m.WarehouseID,
			string(m.Type),
			m.QuantityChange,
			m.ReservedChange,
			m.PreviousQuantity,
			m.NewQuantity,
			m.Reference.String(),
			m.Note,
			m.ActorID,
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(movementSheet, cell, &row); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
