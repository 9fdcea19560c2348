package shared

import (
	"fmt"
	"strconv"
	"strings"
)

// RefKind tags the document a reference points at.
type RefKind string

const (
	RefQuotation         RefKind = "QUOTATION"
	RefSalesOrder        RefKind = "SALES_ORDER"
	RefPickingList       RefKind = "PICKING_LIST"
	RefDeliveryOrder     RefKind = "DELIVERY_ORDER"
	RefInvoice           RefKind = "INVOICE"
	RefPayment           RefKind = "PAYMENT"
	RefWarehouseTransfer RefKind = "WAREHOUSE_TRANSFER"
	RefSalesReturn       RefKind = "SALES_RETURN"
	RefCreditNote        RefKind = "CREDIT_NOTE"
	RefStockAdjustment   RefKind = "STOCK_ADJUSTMENT"
)

var refKinds = []RefKind{
	RefQuotation,
	RefSalesOrder,
	RefPickingList,
	RefDeliveryOrder,
	RefInvoice,
	RefPayment,
	RefWarehouseTransfer,
	RefSalesReturn,
	RefCreditNote,
	RefStockAdjustment,
}

// ParseRefKind validates a kind string.
func ParseRefKind(raw string) (RefKind, error) {
	kind := RefKind(strings.ToUpper(strings.TrimSpace(raw)))
	for _, k := range refKinds {
		if k == kind {
			return kind, nil
		}
	}
	return "", fmt.Errorf("%w: unknown reference kind %q", ErrValidation, raw)
}

// Ref is a typed pointer to a document.
type Ref struct {
	Kind RefKind `json:"kind"`
	ID   int64   `json:"id"`
}

// NewRef builds a reference.
func NewRef(kind RefKind, id int64) Ref {
	return Ref{Kind: kind, ID: id}
}

// IsZero reports whether the reference is unset.
func (r Ref) IsZero() bool {
	return r.Kind == "" && r.ID == 0
}

func (r Ref) String() string {
	if r.IsZero() {
		return ""
	}
	return string(r.Kind) + ":" + strconv.FormatInt(r.ID, 10)
}

// ParseRef parses the KIND:ID form produced by String.
func ParseRef(raw string) (Ref, error) {
	kindPart, idPart, ok := strings.Cut(raw, ":")
	if !ok {
		return Ref{}, fmt.Errorf("%w: malformed reference %q", ErrValidation, raw)
	}
	kind, err := ParseRefKind(kindPart)
	if err != nil {
		return Ref{}, err
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return Ref{}, fmt.Errorf("%w: malformed reference id %q", ErrValidation, idPart)
	}
	return Ref{Kind: kind, ID: id}, nil
}
