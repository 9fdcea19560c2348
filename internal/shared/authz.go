package shared

// Order-to-cash permissions declared for RBAC.
const (
	PermQuotationView    = "sales.quotation.view"
	PermQuotationCreate  = "sales.quotation.create"
	PermQuotationEdit    = "sales.quotation.edit"
	PermQuotationApprove = "sales.quotation.approve"
	PermQuotationConvert = "sales.quotation.convert"

	PermSalesOrderView   = "sales.order.view"
	PermSalesOrderCreate = "sales.order.create"
	PermSalesOrderEdit   = "sales.order.edit"
	PermSalesOrderCancel = "sales.order.cancel"

	PermPickingView   = "warehouse.picking.view"
	PermPickingManage = "warehouse.picking.manage"

	PermDeliveryOrderView   = "delivery.order.view"
	PermDeliveryOrderCreate = "delivery.order.create"
	PermDeliveryOrderShip   = "delivery.order.ship"
	PermDeliveryOrderCancel = "delivery.order.cancel"

	PermInvoiceView   = "finance.invoice.view"
	PermInvoiceCreate = "finance.invoice.create"
	PermInvoiceEdit   = "finance.invoice.edit"
	PermPaymentRecord = "finance.payment.record"

	PermReturnView    = "sales.return.view"
	PermReturnCreate  = "sales.return.create"
	PermReturnApprove = "sales.return.approve"

	PermTransferView    = "warehouse.transfer.view"
	PermTransferRequest = "warehouse.transfer.request"
	PermTransferApprove = "warehouse.transfer.approve"
	PermTransferExecute = "warehouse.transfer.execute"

	PermStockView   = "inventory.stock.view"
	PermStockAdjust = "inventory.stock.adjust"
)

// RoleApprover is the notification audience for pending approvals.
const RoleApprover = "approver"

// SalesScopes lists all permissions related to the sales module.
func SalesScopes() []string {
	return []string{
		PermQuotationView,
		PermQuotationCreate,
		PermQuotationEdit,
		PermQuotationApprove,
		PermQuotationConvert,
		PermSalesOrderView,
		PermSalesOrderCreate,
		PermSalesOrderEdit,
		PermSalesOrderCancel,
		PermReturnView,
		PermReturnCreate,
		PermReturnApprove,
	}
}

// WarehouseScopes lists picking, delivery, transfer and stock permissions.
func WarehouseScopes() []string {
	return []string{
		PermPickingView,
		PermPickingManage,
		PermDeliveryOrderView,
		PermDeliveryOrderCreate,
		PermDeliveryOrderShip,
		PermDeliveryOrderCancel,
		PermTransferView,
		PermTransferRequest,
		PermTransferApprove,
		PermTransferExecute,
		PermStockView,
		PermStockAdjust,
	}
}

// FinanceScopes lists invoicing permissions.
func FinanceScopes() []string {
	return []string{
		PermInvoiceView,
		PermInvoiceCreate,
		PermInvoiceEdit,
		PermPaymentRecord,
	}
}
