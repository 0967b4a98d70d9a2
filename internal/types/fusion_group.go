package types

import (
	"time"

	"github.com/google/uuid"
)

// FusionGroup is the set of records believed to represent one physical star.
// A retired group keeps its row with CanonicalID pointing at the surviving
// group; aliases are never chained, so one hop always resolves.
type FusionGroup struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"group_id"`
	CentroidRa     float64    `gorm:"column:centroid_ra;not null" json:"centroid_ra"`
	CentroidDec    float64    `gorm:"column:centroid_dec;not null" json:"centroid_dec"`
	MemberCount    int        `gorm:"column:member_count;not null" json:"member_count"`
	CanonicalID    *uuid.UUID `gorm:"column:canonical_id;type:uuid;index" json:"canonical_id,omitempty"`
	LastComputedAt time.Time  `gorm:"column:last_computed_at;not null" json:"last_computed_at"`
	CreatedAt      time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"not null" json:"updated_at"`
}

func (FusionGroup) TableName() string { return "fusion_group" }

// Retired reports whether this group has been merged away.
func (g *FusionGroup) Retired() bool { return g.CanonicalID != nil }

// FusionStats is the aggregate view exposed by the query service. Field names
// follow the external API contract.
type FusionStats struct {
	TotalStars         int64 `json:"total_stars"`
	UniqueFusionGroups int64 `json:"unique_fusion_groups"`
	StarsInFusionGroup int64 `json:"stars_in_fusion_groups"`
	IsolatedStars      int64 `json:"isolated_stars"`
}
