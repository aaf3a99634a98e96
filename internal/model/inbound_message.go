package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// InboundMessage is one delivery from an external messaging channel. The
// external message id is the idempotency key and is unique across owners.
type InboundMessage struct {
	ID                string         `json:"id" gorm:"column:id;type:uuid;primaryKey"`
	OwnerUserID       string         `json:"owner_user_id" gorm:"column:owner_user_id;not null;index"`
	LeadID            *string        `json:"lead_id" gorm:"column:lead_id;type:uuid;index"`
	From              string         `json:"from" gorm:"column:from_phone;size:20;not null"`
	ExternalMessageID string         `json:"external_message_id" gorm:"column:external_message_id;size:255;not null;uniqueIndex:idx_inbound_messages_external_id"`
	Body              string         `json:"body" gorm:"column:body;type:text;not null"`
	ReceivedAt        time.Time      `json:"received_at" gorm:"column:received_at;not null;index"`
	Raw               datatypes.JSON `json:"raw" gorm:"column:raw;type:text"`
	LeadCreated       bool           `json:"lead_created" gorm:"column:lead_created;not null"`
	CreatedAt         time.Time      `json:"createdAt" gorm:"column:created_at;not null"`

	Lead *Lead `json:"-" gorm:"foreignKey:LeadID;constraint:OnDelete:SET NULL"`
}

func (InboundMessage) TableName(namer schema.Namer) string {
	return namer.TableName("inbound_messages")
}
