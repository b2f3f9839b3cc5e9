package config

import (
	"context"
	"strings"

	"github.com/mmdatafocus/barledger_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TenantGuardPlugin enforces multi-tenant isolation by automatically scoping
// queries/updates/deletes to the request's business_id (and, when present,
// location_id) when the model carries those columns.
//
// NOTE:
// - This does NOT apply to Raw SQL queries. Those must include business_id manually.
// - Admin/internal bypass is explicit via context flags.
type TenantGuardPlugin struct{}

func NewTenantGuardPlugin() *TenantGuardPlugin { return &TenantGuardPlugin{} }

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("tenant_guard:query", tenantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("tenant_guard:row", tenantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("tenant_guard:update", tenantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("tenant_guard:delete", tenantGuardCallback); err != nil {
		return err
	}
	return nil
}

func tenantGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	if shouldBypassTenantScope(ctx) {
		return
	}
	if db.Statement.Schema == nil {
		return
	}

	if businessID := businessIdFromContext(ctx); businessID != "" {
		applyTenantColumn(db, "business_id", businessID)
	}
	if locationID := locationIdFromContext(ctx); locationID != "" {
		applyTenantColumn(db, "location_id", locationID)
	}
}

// applyTenantColumn adds `table.col = value` unless the model lacks the column
// or the query already filters it explicitly.
func applyTenantColumn(db *gorm.DB, col string, value string) {
	hasCol := false
	for _, f := range db.Statement.Schema.Fields {
		if strings.EqualFold(f.DBName, col) {
			hasCol = true
			break
		}
	}
	if !hasCol {
		return
	}
	if whereHasColumn(db.Statement.Clauses["WHERE"], col) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: col},
				Value:  value,
			},
		},
	})
}

func businessIdFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(appctx.ContextKeyBusinessId).(string); ok && v != "" {
		return v
	}
	return ""
}

func locationIdFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(appctx.ContextKeyLocationId).(string); ok && v != "" {
		return v
	}
	return ""
}

func shouldBypassTenantScope(ctx context.Context) bool {
	if v, ok := ctx.Value(appctx.ContextKeySkipTenantScope).(bool); ok && v {
		return true
	}
	if v, ok := ctx.Value(appctx.ContextKeyIsAdmin).(bool); ok && v {
		return true
	}
	return false
}

func whereHasColumn(c clause.Clause, col string) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasColumn(e, col) {
			return true
		}
	}
	return false
}

func exprHasColumn(e clause.Expression, col string) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colMatches(v.Column, col)
	case clause.Neq:
		return colMatches(v.Column, col)
	case clause.Gt:
		return colMatches(v.Column, col)
	case clause.Gte:
		return colMatches(v.Column, col)
	case clause.Lt:
		return colMatches(v.Column, col)
	case clause.Lte:
		return colMatches(v.Column, col)
	case clause.IN:
		return colMatches(v.Column, col)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasColumn(x, col) {
				return true
			}
		}
		return false
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasColumn(x, col) {
				return true
			}
		}
		return false
	case clause.Expr:
		// Best-effort for raw expressions.
		return strings.Contains(strings.ToLower(v.SQL), col)
	default:
		return false
	}
}

func colMatches(c any, col string) bool {
	switch v := c.(type) {
	case string:
		return strings.EqualFold(v, col)
	case clause.Column:
		return strings.EqualFold(v.Name, col)
	default:
		return false
	}
}
