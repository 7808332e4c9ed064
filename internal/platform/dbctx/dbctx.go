package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context threads a request-scoped context.Context alongside an optional
// open transaction through the repo layer. Repos fall back to their own
// connection/pool when Tx is nil.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// Background returns a Context with no transaction, suitable for
// fire-and-forget calls outside a request's lifetime.
func Background() Context {
	return Context{Ctx: context.Background()}
}

// WithTx returns a copy of dbc bound to tx.
func (dbc Context) WithTx(tx *gorm.DB) Context {
	dbc.Tx = tx
	return dbc
}
