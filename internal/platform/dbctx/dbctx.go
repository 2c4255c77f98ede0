// Package dbctx bundles a context.Context with the *gorm.DB transaction
// handle it must be executed against, so call stacks don't need a
// separate parameter for each.
package dbctx

import (
	"context"

	"gorm.io/gorm"
)

type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}
