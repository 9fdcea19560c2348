package docnumber

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterStub struct {
	values map[string]int64
	codes  map[int64]string
}

func (s *counterStub) Increment(_ context.Context, docType DocType, warehouseID int64, period string) (int64, error) {
	key := fmt.Sprintf("%s|%d|%s", docType, warehouseID, period)
	s.values[key]++
	return s.values[key], nil
}

func (s *counterStub) WarehouseCode(_ context.Context, warehouseID int64) (string, error) {
	code, ok := s.codes[warehouseID]
	if !ok {
		return "", fmt.Errorf("missing warehouse")
	}
	return code, nil
}

func TestNextScopesByTypeWarehouseAndMonth(t *testing.T) {
	store := &counterStub{values: map[string]int64{}, codes: map[int64]string{1: "JKT", 2: "SBY"}}
	ctx := context.Background()
	march := time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)

	first, err := Next(ctx, store, SalesOrder, 1, march)
	require.NoError(t, err)
	second, err := Next(ctx, store, SalesOrder, 1, march)
	require.NoError(t, err)
	otherWarehouse, err := Next(ctx, store, SalesOrder, 2, march)
	require.NoError(t, err)
	otherType, err := Next(ctx, store, Invoice, 1, march)
	require.NoError(t, err)
	april, err := Next(ctx, store, SalesOrder, 1, march.AddDate(0, 1, 0))
	require.NoError(t, err)

	assert.Equal(t, "SO-001/JKT/03-2026", first)
	assert.Equal(t, "SO-002/JKT/03-2026", second)
	assert.Equal(t, "SO-001/SBY/03-2026", otherWarehouse)
	assert.Equal(t, "INV-001/JKT/03-2026", otherType)
	assert.Equal(t, "SO-001/JKT/04-2026", april)

	_, err = Next(ctx, store, SalesOrder, 99, march)
	require.Error(t, err)
}

func TestFormatGrowsPastThreeDigits(t *testing.T) {
	at := time.Date(2026, time.December, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "DO-1204/WH1/12-2026", Format(DeliveryOrder, 1204, "WH1", at))
}
