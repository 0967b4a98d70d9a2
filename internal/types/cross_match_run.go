package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// CrossMatchRun is one invocation of the cross-match engine. Immutable once
// it reaches a terminal status. At most one run may be in "running" state;
// the partial unique index added in db.AutoMigrateAll enforces that.
type CrossMatchRun struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"run_id"`
	RadiusArcsec   float64    `gorm:"column:radius_arcsec;not null" json:"radius_arcsec"`
	Status         string     `gorm:"column:status;not null;default:'running'" json:"status"`
	RecordsScanned int        `gorm:"column:records_scanned;not null;default:0" json:"records_scanned"`
	RecordsSkipped int        `gorm:"column:records_skipped;not null;default:0" json:"records_skipped"`
	GroupsCreated  int        `gorm:"column:groups_created;not null;default:0" json:"groups_created"`
	GroupsMerged   int        `gorm:"column:groups_merged;not null;default:0" json:"groups_merged"`
	GroupsSplit    int        `gorm:"column:groups_split;not null;default:0" json:"groups_split"`
	LargeGroups    int        `gorm:"column:large_groups;not null;default:0" json:"large_groups"`
	Error          string     `gorm:"column:error" json:"error,omitempty"`
	StartedAt      time.Time  `gorm:"column:started_at;not null" json:"started_at"`
	CompletedAt    *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (CrossMatchRun) TableName() string { return "cross_match_run" }

// Duration returns the wall time of a finished run, zero while running.
func (r *CrossMatchRun) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
