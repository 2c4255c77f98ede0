package workflow

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewIdentifierCode returns a 32 lowercase-hex-character opaque id, stable
// across retries of the same logical activity. A v4 UUID with its dashes
// stripped is exactly 32 hex characters — the Go-native realization of
// the source's uuid3(uuid1(), uuid4().hex) scheme (see SPEC_FULL.md).
func NewIdentifierCode() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

const tokenAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewTokenCode returns a 6-character random token, matching
// original_source/modbpm/utils/random.randstr's alphabet and length.
func NewTokenCode() string {
	return randAlphaNum(6)
}

// Activity is one row per activity instance (spec.md section 3).
type Activity struct {
	ID             int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string     `gorm:"size:255;not null" json:"name"`
	IdentifierCode string     `gorm:"size:32;not null;index:idx_activity_identifier_token,unique" json:"identifier_code"`
	TokenCode      *string    `gorm:"size:6;index:idx_activity_identifier_token,unique" json:"token_code"`
	InputsID       *int64     `json:"inputs_id"`
	OutputsID      *int64     `json:"outputs_id"`
	SnapshotID     *int64     `json:"snapshot_id"`
	State          State      `gorm:"size:16;not null;default:CREATED" json:"state"`
	Appointment    Appointment `gorm:"size:16" json:"appointment"`
	StatusCode     *int       `json:"status_code"`
	Acknowledgment uint32     `gorm:"not null;default:0" json:"acknowledgment"`
	DateCreated    time.Time  `gorm:"autoCreateTime" json:"date_created"`
	DateArchived   *time.Time `json:"date_archived"`
}

func (Activity) TableName() string { return "bpm_activities" }

// IsLive reports whether this row is the live incarnation of its
// identifier_code (I3: at most one row per identifier_code has a
// non-null token_code).
func (a *Activity) IsLive() bool { return a.TokenCode != nil && *a.TokenCode != "" }

// ActivityRelationship is a transitive-closure edge of the ancestry tree
// (spec.md section 3, invariant I4).
type ActivityRelationship struct {
	AncestorID   int64 `gorm:"primaryKey;autoIncrement:false;index:idx_rel_ancestor_descendant,unique,priority:1" json:"ancestor_id"`
	DescendantID int64 `gorm:"primaryKey;autoIncrement:false;index:idx_rel_ancestor_descendant,unique,priority:2;index:idx_rel_descendant_distance,unique,priority:1" json:"descendant_id"`
	Distance     int   `gorm:"not null;index:idx_rel_descendant_distance,unique,priority:2" json:"distance"`
}

func (ActivityRelationship) TableName() string { return "bpm_activity_relationships" }

// ActivityInputs is an immutable blob row holding an activity's (args,
// kwargs), set at creation and never mutated.
type ActivityInputs struct {
	ID     int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Args   []byte `json:"-"`
	Kwargs []byte `json:"-"`
}

func (ActivityInputs) TableName() string { return "bpm_activity_inputs" }

// ActivityOutputs is an immutable blob row holding an activity's (data,
// ex_data), set only on archival transition.
type ActivityOutputs struct {
	ID     int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Data   []byte `json:"-"`
	ExData []byte `json:"-"`
}

func (ActivityOutputs) TableName() string { return "bpm_activity_outputs" }

// ActivitySnapshot is the single mutable blob row holding the serialized
// runtime object; at most one per activity, cleared on archival.
type ActivitySnapshot struct {
	ID   int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Data []byte `json:"-"`
}

func (ActivitySnapshot) TableName() string { return "bpm_activity_snapshots" }
