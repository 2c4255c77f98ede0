package store

import (
	"gorm.io/gorm"

	"github.com/arcwelder/bpmengine/internal/domain/workflow"
	"github.com/arcwelder/bpmengine/internal/platform/dbctx"
)

// CASGuard implements the token-guarded conditional update that is the
// compare-and-swap witness behind every activity transition
// (spec.md section 4.2 step 5 / section 5: "Token-guarded conditional
// updates ... serve as the compare-and-swap that makes state transitions
// linearizable per row").
type CASGuard struct {
	db *gorm.DB
}

func NewCASGuard(db *gorm.DB) CASGuard {
	return CASGuard{db: db}
}

func (g CASGuard) baseDB(dbc dbctx.Context) (*gorm.DB, error) {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx), nil
	}
	if g.db != nil {
		return g.db.WithContext(dbc.Ctx), nil
	}
	return nil, workflow.NewError(workflow.CodeValidation, "store.CASGuard", "missing db transaction context", nil)
}

// UpdateByToken updates a row only when id+token_code match, the direct
// realization of "_transit"'s `WHERE pk=? AND token_code=?` conditional
// update. A zero-rows-affected result is the expected shape of a lost
// race under concurrent retries (spec.md section 4.2 step 5), not an
// error — callers decide what that means for them via RequireCASSuccess.
func (g CASGuard) UpdateByToken(dbc dbctx.Context, table string, id int64, expectedToken string, updates map[string]any) (bool, error) {
	db, err := g.baseDB(dbc)
	if err != nil {
		return false, err
	}
	if table == "" || id == 0 {
		return false, workflow.NewError(workflow.CodeValidation, "store.UpdateByToken", "table and id are required", nil)
	}
	res := db.Table(table).
		Where("id = ? AND token_code = ?", id, expectedToken).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateByTokenNotNull updates a row only when id matches and token_code
// is non-null, without pinning it to a specific token value. This is
// `_appoint`'s guard: it may race with a concurrent transition rotating
// the token, but it never needs to know which token is current.
func (g CASGuard) UpdateByTokenNotNull(dbc dbctx.Context, table string, id int64, updates map[string]any) (bool, error) {
	db, err := g.baseDB(dbc)
	if err != nil {
		return false, err
	}
	if table == "" || id == 0 {
		return false, workflow.NewError(workflow.CodeValidation, "store.UpdateByTokenNotNull", "table and id are required", nil)
	}
	res := db.Table(table).
		Where("id = ? AND token_code IS NOT NULL", id).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RequireCASSuccess converts a failed compare-and-set into a typed
// conflict error for callers that treat a lost race as fatal (most
// _transit callers instead treat it as a quiet false).
func RequireCASSuccess(ok bool, message string) error {
	if ok {
		return nil
	}
	return workflow.NewError(workflow.CodeConflict, "store.CAS", message, nil)
}
