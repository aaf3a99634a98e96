package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// LeadEvent is an immutable business fact recorded against a lead.
// Meta is stored byte for byte as the caller sent it.
type LeadEvent struct {
	ID        string         `json:"id" gorm:"column:id;type:uuid;primaryKey"`
	LeadID    string         `json:"lead_id" gorm:"column:lead_id;type:uuid;not null;index"`
	Type      LeadEventType  `json:"type" gorm:"column:type;size:32;not null;index"`
	Revenue   *float64       `json:"revenue" gorm:"column:revenue;type:numeric(14,2)"`
	Meta      datatypes.JSON `json:"meta" gorm:"column:meta;type:text"`
	CreatedAt time.Time      `json:"createdAt" gorm:"column:created_at;not null;index"`

	Lead *Lead `json:"-" gorm:"foreignKey:LeadID;constraint:OnDelete:CASCADE"`
}

func (LeadEvent) TableName(namer schema.Namer) string {
	return namer.TableName("lead_events")
}
