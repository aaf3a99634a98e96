package model

import (
	"time"

	"gorm.io/gorm/schema"
)

// Conversation is one line of the running chat transcript kept per lead.
type Conversation struct {
	ID      string    `json:"id" gorm:"column:id;type:uuid;primaryKey"`
	LeadID  string    `json:"lead_id" gorm:"column:lead_id;type:uuid;not null;index"`
	Mensaje string    `json:"mensaje" gorm:"column:mensaje;type:text;not null"`
	Rol     string    `json:"rol" gorm:"column:rol;size:32;not null"`
	Fecha   time.Time `json:"fecha" gorm:"column:fecha;not null;index"`

	Lead *Lead `json:"-" gorm:"foreignKey:LeadID;constraint:OnDelete:CASCADE"`
}

func (Conversation) TableName(namer schema.Namer) string {
	return namer.TableName("conversations")
}
