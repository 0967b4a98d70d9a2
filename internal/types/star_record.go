package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// StarRecord is one point source as reported by a single catalog. Records are
// immutable after ingestion except for FusionGroupID, which only the
// cross-match engine writes.
type StarRecord struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RaDeg         float64        `gorm:"column:ra_deg;not null;index:idx_star_record_ra" json:"ra_deg"`
	DecDeg        float64        `gorm:"column:dec_deg;not null;index:idx_star_record_dec" json:"dec_deg"`
	Magnitude     *float64       `gorm:"column:magnitude" json:"magnitude,omitempty"`
	SourceCatalog string         `gorm:"column:source_catalog;not null;index" json:"source_catalog"`
	FusionGroupID *uuid.UUID     `gorm:"column:fusion_group_id;type:uuid;index" json:"fusion_group_id,omitempty"`
	Metadata      datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
}

func (StarRecord) TableName() string { return "star_record" }
