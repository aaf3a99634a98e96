package model

import (
	"time"

	"gorm.io/gorm/schema"
)

// WebhookLogEntry audits a raw call to an ingestion surface. Payload holds
// the request body as received, valid JSON or not.
type WebhookLogEntry struct {
	ID          string    `json:"id" gorm:"column:id;type:uuid;primaryKey"`
	Origen      string    `json:"origen" gorm:"column:origen;size:64;not null;index"`
	OwnerUserID string    `json:"owner_user_id" gorm:"column:owner_user_id;index"`
	Payload     string    `json:"payload" gorm:"column:payload;type:text;not null"`
	Fecha       time.Time `json:"fecha" gorm:"column:fecha;not null;index"`
}

func (WebhookLogEntry) TableName(namer schema.Namer) string {
	return namer.TableName("webhook_logs")
}

const DefaultWebhookLogLimit = 50
