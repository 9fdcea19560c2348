package rbac

import (
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// Role names carried in access token claims.
const (
	RoleAdmin     = "admin"
	RoleSales     = "sales"
	RoleWarehouse = "warehouse"
	RoleFinance   = "finance"
	RoleApprover  = shared.RoleApprover
)

// Catalog maps a role to the permissions it grants.
type Catalog map[string][]string

// DefaultCatalog returns the built-in role to permission mapping.
func DefaultCatalog() Catalog {
	all := append(append(shared.SalesScopes(), shared.WarehouseScopes()...), shared.FinanceScopes()...)
	return Catalog{
		RoleAdmin:     all,
		RoleSales:     withView(shared.SalesScopes(), shared.PermStockView, shared.PermDeliveryOrderView, shared.PermInvoiceView),
		RoleWarehouse: withView(shared.WarehouseScopes(), shared.PermSalesOrderView),
		RoleFinance:   withView(shared.FinanceScopes(), shared.PermSalesOrderView, shared.PermDeliveryOrderView, shared.PermReturnView),
		RoleApprover: {
			shared.PermQuotationView,
			shared.PermQuotationApprove,
			shared.PermReturnView,
			shared.PermReturnApprove,
			shared.PermTransferView,
			shared.PermTransferApprove,
		},
	}
}

func withView(scopes []string, extra ...string) []string {
	return append(scopes, extra...)
}

// Permissions expands roles plus direct grants into a sorted, de-duplicated list.
func (c Catalog) Permissions(roles, direct []string) []string {
	set := make(map[string]struct{})
	for _, role := range roles {
		for _, p := range c[strings.ToLower(strings.TrimSpace(role))] {
			set[strings.ToLower(p)] = struct{}{}
		}
	}
	for _, p := range direct {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			set[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// KnownPermissions lists every permission any role can grant.
func (c Catalog) KnownPermissions() []string {
	roles := make([]string, 0, len(c))
	for role := range c {
		roles = append(roles, role)
	}
	return c.Permissions(roles, nil)
}
