package model

import (
	"time"

	"gorm.io/gorm/schema"
)

// Lead is a sales prospect owned by a single user account.
type Lead struct {
	ID                 string     `json:"id" gorm:"column:id;type:uuid;primaryKey"`
	OwnerUserID        string     `json:"owner_user_id" gorm:"column:owner_user_id;not null;index"`
	Name               string     `json:"name" gorm:"column:name;size:255;not null"`
	Phone              *string    `json:"phone" gorm:"column:phone;size:20"`
	PhoneDigits        *string    `json:"-" gorm:"column:phone_digits;size:20"` // unique per owner, see storage indexes
	Email              *string    `json:"email" gorm:"column:email;size:255"`
	Source             string     `json:"source" gorm:"column:source;size:100;not null"`
	Status             LeadStatus `json:"status" gorm:"column:status;size:20;not null;index"`
	Etapa              Etapa      `json:"etapa" gorm:"column:etapa;size:32;not null;index"`
	ProbabilidadCierre int        `json:"probabilidad_cierre" gorm:"column:probabilidad_cierre;not null"`
	Ciudad             *string    `json:"ciudad" gorm:"column:ciudad;size:255"`
	Interes            *string    `json:"interes" gorm:"column:interes;size:500"`
	AgenteID           *string    `json:"agente_id" gorm:"column:agente_id;index"`
	CreatedAt          time.Time  `json:"createdAt" gorm:"column:created_at;not null;index"`
	UpdatedAt          time.Time  `json:"updatedAt" gorm:"column:updated_at;not null"`
}

// TableName specifies the base table name for GORM, respecting the Namer.
func (Lead) TableName(namer schema.Namer) string {
	return namer.TableName("leads")
}

// ApplyEtapa sets the stage and its derived probability together.
func (l *Lead) ApplyEtapa(e Etapa) {
	l.Etapa = e
	l.ProbabilidadCierre = e.Probability()
}

// LeadFilter narrows ListLeads. Zero values mean "no filter".
type LeadFilter struct {
	Status LeadStatus
	Etapa  Etapa
	Ciudad string
	Search string
	Limit  int
	Offset int
}

const (
	DefaultLeadListLimit = 100
	MaxLeadListLimit     = 500
)

// LeadDetail is a lead with its recent related records.
type LeadDetail struct {
	Lead          *Lead             `json:"lead"`
	Events        []*LeadEvent      `json:"events"`
	Messages      []*InboundMessage `json:"messages"`
	Conversations []*Conversation   `json:"conversations"`
}

const (
	DetailMessagesLimit      = 20
	DetailConversationsLimit = 50
)

// PipelineStageStat aggregates the leads sitting in one stage.
type PipelineStageStat struct {
	Etapa                  Etapa   `json:"etapa"`
	Count                  int64   `json:"count"`
	AvgProbabilidad        float64 `json:"avgProbabilidad"`
	ProbabilidadPorDefecto int     `json:"probabilidadPorDefecto"`
}
