// Package tenant confines GORM statements to one tenant's rows.
//
//	db.WithContext(ctx).Scopes(tenant.Scope(tenantID)).Find(&households)
//
// RegisterGuard adds callbacks that fail update and delete statements on
// tenant tables that carry no tenant condition.
package tenant

import (
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Column is the tenant discriminator column on every tenant table
const Column = "tenant_id"

var (
	// ErrTenantIDRequired is returned when a scope is built without a tenant id
	ErrTenantIDRequired = errors.New("tenant: tenant id is required")
	// ErrUnscopedWrite is returned for an update or delete with no tenant condition
	ErrUnscopedWrite = errors.New("tenant: write to a tenant table without a tenant condition")
)

// Scope restricts a statement to tenantID's rows. A blank id fails the
// statement with ErrTenantIDRequired.
func Scope(tenantID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if strings.TrimSpace(tenantID) == "" {
			_ = db.AddError(ErrTenantIDRequired)
			return db
		}
		return db.Where(clause.Eq{
			Column: clause.Column{Table: clause.CurrentTable, Name: Column},
			Value:  tenantID,
		})
	}
}
