// Package activitystore implements the durable activity row and the
// _transit/_appoint/_lazy_transit primitive that is the only path by
// which an activity changes state (spec.md section 4.2).
package activitystore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/arcwelder/bpmengine/internal/domain/workflow"
	"github.com/arcwelder/bpmengine/internal/platform/dbctx"
	"github.com/arcwelder/bpmengine/internal/platform/logger"
	"github.com/arcwelder/bpmengine/internal/store"
)

// Store is the activity repository: CRUD plus the guarded transition
// primitives. It owns no in-memory state beyond its db handle.
type Store struct {
	db  *gorm.DB
	cas store.CASGuard
	tx  store.TxRunner
	log *logger.Logger
}

func New(db *gorm.DB, log *logger.Logger) *Store {
	return &Store{
		db:  db,
		cas: store.NewCASGuard(db),
		tx:  store.NewGormTxRunner(db),
		log: log.With("component", "activitystore"),
	}
}

// Get loads an activity row by id.
func (s *Store) Get(ctx context.Context, id int64) (*workflow.Activity, error) {
	var act workflow.Activity
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&act).Error; err != nil {
		return nil, store.MapError("activitystore.Get", err)
	}
	return &act, nil
}

// GetLive loads the live (non-superseded) row for an identifier_code,
// enforcing invariant I3 by construction: at most one row can match.
func (s *Store) GetLive(ctx context.Context, identifierCode string) (*workflow.Activity, error) {
	var act workflow.Activity
	err := s.db.WithContext(ctx).
		Where("identifier_code = ? AND token_code IS NOT NULL", identifierCode).
		First(&act).Error
	if err != nil {
		return nil, store.MapError("activitystore.GetLive", err)
	}
	return &act, nil
}

// Parent returns the activity at relationship distance 1, or nil for a
// root activity (invariant I4: every non-root activity has exactly one
// relationship row at distance=1).
func (s *Store) Parent(ctx context.Context, descendantID int64) (*workflow.Activity, error) {
	var rel workflow.ActivityRelationship
	err := s.db.WithContext(ctx).
		Where("descendant_id = ? AND distance = 1", descendantID).
		First(&rel).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, store.MapError("activitystore.Parent", err)
	}
	return s.Get(ctx, rel.AncestorID)
}

// Children returns the direct children of parentID (relationship
// distance=1), the set a Process's ActivityHandler registry watches.
func (s *Store) Children(ctx context.Context, parentID int64) ([]workflow.Activity, error) {
	var rels []workflow.ActivityRelationship
	if err := s.db.WithContext(ctx).Where("ancestor_id = ? AND distance = 1", parentID).Find(&rels).Error; err != nil {
		return nil, store.MapError("activitystore.Children", err)
	}
	if len(rels) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(rels))
	for _, r := range rels {
		ids = append(ids, r.DescendantID)
	}
	var acts []workflow.Activity
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&acts).Error; err != nil {
		return nil, store.MapError("activitystore.Children", err)
	}
	return acts, nil
}

// LoadInputs decodes the (args, kwargs) blob an activity was created
// with, or (nil, nil) if it was created without arguments.
func (s *Store) LoadInputs(ctx context.Context, inputsID int64) (args any, kwargs any, err error) {
	var in workflow.ActivityInputs
	if err := s.db.WithContext(ctx).Where("id = ?", inputsID).First(&in).Error; err != nil {
		return nil, nil, store.MapError("activitystore.LoadInputs", err)
	}
	args, err = workflow.DecodeJSONBlob(in.Args)
	if err != nil {
		return nil, nil, err
	}
	kwargs, err = workflow.DecodeJSONBlob(in.Kwargs)
	if err != nil {
		return nil, nil, err
	}
	return args, kwargs, nil
}

// LoadOutputs decodes the (data, ex_data) blob an archived activity
// produced.
func (s *Store) LoadOutputs(ctx context.Context, outputsID int64) (data any, exData any, err error) {
	var out workflow.ActivityOutputs
	if err := s.db.WithContext(ctx).Where("id = ?", outputsID).First(&out).Error; err != nil {
		return nil, nil, store.MapError("activitystore.LoadOutputs", err)
	}
	data, err = workflow.DecodeJSONBlob(out.Data)
	if err != nil {
		return nil, nil, err
	}
	exData, err = workflow.DecodeJSONBlob(out.ExData)
	if err != nil {
		return nil, nil, err
	}
	return data, exData, nil
}

// LoadSnapshot returns the raw serialized runtime object bytes for an
// activity that still has one (non-archived).
func (s *Store) LoadSnapshot(ctx context.Context, snapshotID int64) ([]byte, error) {
	var snap workflow.ActivitySnapshot
	if err := s.db.WithContext(ctx).Where("id = ?", snapshotID).First(&snap).Error; err != nil {
		return nil, store.MapError("activitystore.LoadSnapshot", err)
	}
	return snap.Data, nil
}

// Descendants returns every non-archived descendant of id (used by
// Appoint to propagate pause()/revoke() down a subtree).
func (s *Store) Descendants(ctx context.Context, ancestorID int64) ([]workflow.Activity, error) {
	var rels []workflow.ActivityRelationship
	if err := s.db.WithContext(ctx).Where("ancestor_id = ?", ancestorID).Find(&rels).Error; err != nil {
		return nil, store.MapError("activitystore.Descendants", err)
	}
	if len(rels) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(rels))
	for _, r := range rels {
		ids = append(ids, r.DescendantID)
	}
	var acts []workflow.Activity
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&acts).Error; err != nil {
		return nil, store.MapError("activitystore.Descendants", err)
	}
	return acts, nil
}

// CreateInput is the (name, parent, args, kwargs) triple create_model
// takes in original_source/modbpm/models.py.
type CreateInput struct {
	Name     string
	ParentID *int64
	Args     map[string]any
	Kwargs   map[string]any
}

// Create inserts a new activity row in state CREATED and, if ParentID is
// set, wires the ancestor/descendant transitive closure in the same
// transaction (invariants I4 and I7). The caller is responsible for
// emitting the activity_created signal only after Create returns
// successfully, since by then the transaction has already committed.
func (s *Store) Create(ctx context.Context, in CreateInput) (*workflow.Activity, error) {
	if in.Name == "" {
		return nil, workflow.NewError(workflow.CodeValidation, "activitystore.Create", "name is required", nil)
	}

	identifierCode := workflow.NewIdentifierCode()
	tokenCode := workflow.NewTokenCode()

	act := &workflow.Activity{
		Name:           in.Name,
		IdentifierCode: identifierCode,
		TokenCode:      &tokenCode,
		State:          workflow.Created,
	}

	err := s.tx.InTx(ctx, func(dbc dbctx.Context) error {
		tx := dbc.Tx

		if len(in.Args) > 0 || len(in.Kwargs) > 0 {
			argsBlob, err := workflow.EncodeJSONBlob(in.Args)
			if err != nil {
				return err
			}
			kwargsBlob, err := workflow.EncodeJSONBlob(in.Kwargs)
			if err != nil {
				return err
			}
			inputs := &workflow.ActivityInputs{Args: argsBlob, Kwargs: kwargsBlob}
			if err := tx.Create(inputs).Error; err != nil {
				return err
			}
			act.InputsID = &inputs.ID
		}

		if err := tx.Create(act).Error; err != nil {
			return err
		}

		if in.ParentID != nil {
			rels := []workflow.ActivityRelationship{{AncestorID: *in.ParentID, DescendantID: act.ID, Distance: 1}}

			var ancestorRels []workflow.ActivityRelationship
			if err := tx.Where("descendant_id = ?", *in.ParentID).Find(&ancestorRels).Error; err != nil {
				return err
			}
			for _, r := range ancestorRels {
				rels = append(rels, workflow.ActivityRelationship{
					AncestorID:   r.AncestorID,
					DescendantID: act.ID,
					Distance:     r.Distance + 1,
				})
			}
			if err := tx.Create(&rels).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, store.MapError("activitystore.Create", err)
	}
	return act, nil
}

// Outcome carries the optional data produced by a transition: the
// archival payload (Data/ExData/StatusCode) or a fresh runtime snapshot.
type Outcome struct {
	Data       any
	ExData     any
	StatusCode *int
	Snapshot   []byte
}

// Transit is the `_transit` primitive (spec.md section 4.2). It mutates
// act in place only if the guarded update actually applies, and returns
// (reached, signaled, err):
//   - reached is true iff the activity reached the state the caller
//     requested (false when an appointment override took over, or when
//     the conditional update lost a race).
//   - signaled is the state actually transitioned to, used by the caller
//     to pick which activity_<state> signal to emit; it is empty when no
//     transition happened at all.
func (s *Store) Transit(ctx context.Context, act *workflow.Activity, toState workflow.State, outcome Outcome) (bool, workflow.State, error) {
	if !workflow.IsTransitable(toState) {
		return false, "", workflow.NewError(workflow.CodeInvariantViolation, "activitystore.Transit",
			fmt.Sprintf("cannot transit to non-transitable state %s", toState), nil)
	}
	if act == nil {
		return false, "", workflow.NewError(workflow.CodeValidation, "activitystore.Transit", "activity is nil", nil)
	}

	before := act.State

	// Appointment reconciliation (spec.md section 4.2 step 2).
	appointmentFlag := 0
	if act.Appointment != workflow.NoAppointment {
		appt := workflow.State(act.Appointment)
		if !workflow.IsAppointable(appt) || workflow.IsArchived(toState) {
			appointmentFlag = 1 // consumed but ignored
		} else if workflow.LowerPriority(toState, appt) && workflow.CanTransit(before, appt) {
			toState = appt
			appointmentFlag = 2 // overridden
		}
	}

	// Step 3: silently refuse an inapplicable transition. This is the
	// normal shape of a lost race, never an error — and it is also where
	// the source's unassigned `original_state` guard lives: we never
	// read a before-transition snapshot on this branch because there is
	// nothing to compare against.
	if act.TokenCode == nil || !workflow.CanTransit(before, toState) {
		return false, "", nil
	}
	expectedToken := *act.TokenCode

	update := map[string]any{
		"token_code": workflow.NewTokenCode(),
		"state":      string(toState),
	}
	if appointmentFlag != 0 {
		update["appointment"] = ""
	}
	if outcome.StatusCode != nil {
		update["status_code"] = *outcome.StatusCode
	}

	archived := workflow.IsArchived(toState)
	var oldSnapshotID *int64

	applied := false
	txErr := s.tx.InTx(ctx, func(dbc dbctx.Context) error {
		tx := dbc.Tx

		if archived {
			if outcome.Data != nil || outcome.ExData != nil {
				dataBlob, err := workflow.EncodeJSONBlob(outcome.Data)
				if err != nil {
					return err
				}
				exBlob, err := workflow.EncodeJSONBlob(outcome.ExData)
				if err != nil {
					return err
				}
				outputs := &workflow.ActivityOutputs{Data: dataBlob, ExData: exBlob}
				if err := tx.Create(outputs).Error; err != nil {
					return err
				}
				update["outputs_id"] = outputs.ID
			}
			if act.SnapshotID != nil {
				oldSnapshotID = act.SnapshotID
				update["snapshot_id"] = nil
			}
			update["date_archived"] = time.Now().UTC()
		} else if len(outcome.Snapshot) > 0 {
			if act.SnapshotID != nil {
				if err := tx.Model(&workflow.ActivitySnapshot{}).
					Where("id = ?", *act.SnapshotID).
					Update("data", outcome.Snapshot).Error; err != nil {
					return err
				}
			} else {
				snap := &workflow.ActivitySnapshot{Data: outcome.Snapshot}
				if err := tx.Create(snap).Error; err != nil {
					return err
				}
				update["snapshot_id"] = snap.ID
			}
		}

		if err := tx.SavePoint("transit").Error; err != nil {
			return err
		}

		ok, err := s.cas.UpdateByToken(dbc, workflow.Activity{}.TableName(), act.ID, expectedToken, update)
		if err != nil {
			return err
		}
		if !ok {
			// Expected under concurrent retries: another worker already
			// moved this row. Roll back to the savepoint, not the whole
			// transaction — any blob rows created above still need to be
			// committed/cleaned up by the caller's retry, but nothing
			// here has mutated shared state outside this tx.
			return tx.RollbackTo("transit").Error
		}

		if oldSnapshotID != nil {
			if err := tx.Where("id = ?", *oldSnapshotID).Delete(&workflow.ActivitySnapshot{}).Error; err != nil {
				return err
			}
		}

		applied = true
		return nil
	})
	if txErr != nil {
		return false, "", store.MapError("activitystore.Transit", txErr)
	}
	if !applied {
		return false, "", nil
	}

	for k, v := range update {
		switch k {
		case "token_code":
			tok := v.(string)
			act.TokenCode = &tok
		case "state":
			act.State = toState
		case "appointment":
			act.Appointment = workflow.NoAppointment
		case "status_code":
			code := v.(int)
			act.StatusCode = &code
		case "outputs_id":
			id := v.(int64)
			act.OutputsID = &id
		case "snapshot_id":
			if v == nil {
				act.SnapshotID = nil
			} else {
				id := v.(int64)
				act.SnapshotID = &id
			}
		case "date_archived":
			now := v.(time.Time)
			act.DateArchived = &now
		}
	}

	s.log.Debug("activity transitioned", "activity_id", act.ID, "from", before, "to", toState, "requested_override", appointmentFlag == 2)

	return appointmentFlag != 2, toState, nil
}

// Appoint writes the appointment field on act and all non-archived
// descendants, guarded by a token-not-null check (spec.md section 4.2,
// "_appoint"). It is how pause()/revoke() propagate down a subtree
// without racing in-flight transitions.
func (s *Store) Appoint(ctx context.Context, act *workflow.Activity, to workflow.Appointment) (bool, error) {
	if !workflow.IsAppointable(workflow.State(to)) {
		return false, workflow.NewError(workflow.CodeInvariantViolation, "activitystore.Appoint",
			fmt.Sprintf("cannot appoint to state %s", to), nil)
	}
	if act.TokenCode == nil {
		return false, nil
	}

	ok, err := s.cas.UpdateByTokenNotNull(asDBC(ctx, s.db), workflow.Activity{}.TableName(), act.ID, map[string]any{"appointment": string(to)})
	if err != nil {
		return false, store.MapError("activitystore.Appoint", err)
	}
	if !ok {
		return false, nil
	}
	act.Appointment = to

	descendants, err := s.Descendants(ctx, act.ID)
	if err != nil {
		return true, err
	}
	for _, d := range descendants {
		if workflow.IsArchived(d.State) || d.TokenCode == nil {
			continue
		}
		if err := s.db.WithContext(ctx).
			Table(workflow.Activity{}.TableName()).
			Where("id = ? AND token_code IS NOT NULL", d.ID).
			Update("appointment", string(to)).Error; err != nil {
			return true, store.MapError("activitystore.Appoint", err)
		}
	}
	return true, nil
}

func asDBC(ctx context.Context, db *gorm.DB) dbctx.Context {
	return dbctx.Context{Ctx: ctx, Tx: db}
}

// IncrementAcknowledgment atomically bumps acknowledgment by one (source
// models.py's `_ack`/`_acknowledge`, SUPPLEMENTED FEATURES #2: an atomic
// `F("acknowledgment") + 1` update, not a read-modify-write, so two
// concurrent wake-up retries for the same child can never clobber one
// another's increment).
func (s *Store) IncrementAcknowledgment(ctx context.Context, activityID int64) error {
	err := s.db.WithContext(ctx).
		Model(&workflow.Activity{}).
		Where("id = ?", activityID).
		Update("acknowledgment", gorm.Expr("acknowledgment + 1")).Error
	if err != nil {
		return store.MapError("activitystore.IncrementAcknowledgment", err)
	}
	return nil
}

// Resume clears a subtree's SUSPENDED state: it transits act itself
// (SUSPENDED -> READY), and for every descendant that is SUSPENDED purely
// because of appointment-reconciliation (its own state is unchanged but it
// was waiting for the appointment to be applied), clears the appointment
// so the next lazy transit picks READY rather than SUSPENDED (source
// models.py `ActivityModel.resume`, SUPPLEMENTED FEATURES #1).
func (s *Store) Resume(ctx context.Context, act *workflow.Activity) (bool, error) {
	reached, _, err := s.Transit(ctx, act, workflow.Ready, Outcome{})
	if err != nil {
		return false, err
	}
	if !reached {
		return false, nil
	}
	descendants, err := s.Descendants(ctx, act.ID)
	if err != nil {
		return true, err
	}
	for _, d := range descendants {
		if workflow.IsArchived(d.State) || d.Appointment != workflow.AppointSuspended {
			continue
		}
		if err := s.db.WithContext(ctx).
			Table(workflow.Activity{}.TableName()).
			Where("id = ? AND token_code IS NOT NULL", d.ID).
			Update("appointment", "").Error; err != nil {
			return true, store.MapError("activitystore.Resume", err)
		}
	}
	return true, nil
}

// Retry supersedes a FAILED row and inserts a fresh CREATED row under the
// same identifier_code, so the engine can re-run a logical activity from
// scratch without losing its place in the ancestry tree (source
// models.py `ActivityModelManager._supersede`/`retry_activity`,
// SUPPLEMENTED FEATURES #3). Only a FAILED activity may be retried; the
// old row's token is cleared so invariant I3 (at most one live row per
// identifier_code) keeps holding with the new row as the live incarnation.
func (s *Store) Retry(ctx context.Context, act *workflow.Activity) (*workflow.Activity, error) {
	if act.State != workflow.Failed {
		return nil, workflow.NewError(workflow.CodeInvariantViolation, "activitystore.Retry",
			fmt.Sprintf("cannot retry activity in state %s", act.State), nil)
	}
	if act.TokenCode == nil {
		return nil, workflow.NewError(workflow.CodeInvariantViolation, "activitystore.Retry", "activity already superseded", nil)
	}

	var parentID *int64
	if parent, err := s.Parent(ctx, act.ID); err != nil {
		return nil, err
	} else if parent != nil {
		parentID = &parent.ID
	}

	var fresh *workflow.Activity
	err := s.tx.InTx(ctx, func(dbc dbctx.Context) error {
		tx := dbc.Tx

		ok, err := s.cas.UpdateByToken(dbc, workflow.Activity{}.TableName(), act.ID, *act.TokenCode,
			map[string]any{"token_code": nil})
		if err != nil {
			return err
		}
		if !ok {
			return workflow.NewError(workflow.CodeConflict, "activitystore.Retry", "activity was concurrently superseded", nil)
		}

		tokenCode := workflow.NewTokenCode()
		fresh = &workflow.Activity{
			Name:           act.Name,
			IdentifierCode: act.IdentifierCode,
			TokenCode:      &tokenCode,
			InputsID:       act.InputsID,
			State:          workflow.Created,
		}
		if err := tx.Create(fresh).Error; err != nil {
			return err
		}

		if parentID != nil {
			rels := []workflow.ActivityRelationship{{AncestorID: *parentID, DescendantID: fresh.ID, Distance: 1}}
			var ancestorRels []workflow.ActivityRelationship
			if err := tx.Where("descendant_id = ?", *parentID).Find(&ancestorRels).Error; err != nil {
				return err
			}
			for _, r := range ancestorRels {
				rels = append(rels, workflow.ActivityRelationship{
					AncestorID:   r.AncestorID,
					DescendantID: fresh.ID,
					Distance:     r.Distance + 1,
				})
			}
			if err := tx.Create(&rels).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, store.MapError("activitystore.Retry", err)
	}
	act.TokenCode = nil
	return fresh, nil
}
