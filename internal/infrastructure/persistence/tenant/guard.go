package tenant

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	guardUpdate = "tenant:guard_update"
	guardDelete = "tenant:guard_delete"
)

// RegisterGuard installs the write guard on db. Calling it again is a no-op.
// Reads are not guarded since association preloads select by primary key.
func RegisterGuard(db *gorm.DB) error {
	if db.Callback().Update().Get(guardUpdate) == nil {
		if err := db.Callback().Update().Before("gorm:update").Register(guardUpdate, guard); err != nil {
			return err
		}
	}
	if db.Callback().Delete().Get(guardDelete) == nil {
		if err := db.Callback().Delete().Before("gorm:delete").Register(guardDelete, guard); err != nil {
			return err
		}
	}
	return nil
}

func guard(db *gorm.DB) {
	stmt := db.Statement
	if db.Error != nil || stmt.Unscoped || stmt.Schema == nil {
		return
	}
	if _, ok := stmt.Schema.FieldsByDBName[Column]; !ok {
		return
	}
	if !hasTenantCondition(stmt) {
		_ = db.AddError(ErrUnscopedWrite)
	}
}

func hasTenantCondition(stmt *gorm.Statement) bool {
	c, ok := stmt.Clauses["WHERE"]
	if !ok {
		return false
	}
	where, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	found := false
	for _, expr := range where.Exprs {
		// a top-level OR joins every condition, so none of them confines the statement
		if _, ok := expr.(clause.OrConditions); ok {
			return false
		}
		found = found || mentionsTenant(expr)
	}
	return found
}

func mentionsTenant(expr clause.Expression) bool {
	switch e := expr.(type) {
	case clause.Eq:
		return isTenantColumn(e.Column)
	case clause.IN:
		return isTenantColumn(e.Column)
	case clause.Expr:
		return strings.Contains(e.SQL, Column)
	case clause.NamedExpr:
		return strings.Contains(e.SQL, Column)
	case clause.AndConditions:
		for _, cond := range e.Exprs {
			if mentionsTenant(cond) {
				return true
			}
		}
	}
	return false
}

func isTenantColumn(col any) bool {
	switch c := col.(type) {
	case clause.Column:
		return c.Name == Column
	case string:
		return c == Column
	}
	return false
}
