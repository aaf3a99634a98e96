package model

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"gitlab.com/timkado/api/lead-pipeline-core/pkg/utils"
)

func init() {
	gofakeit.Seed(time.Now().UnixNano())
}

// FakePhone returns a normalized phone and its digit-only form.
func FakePhone() (phone string, digits string) {
	digits = gofakeit.Numerify("549##########")
	return "+" + digits, digits
}

// NewLead creates a Lead with fake data. Non-zero fields of the optional
// override replace the generated ones.
func NewLead(overrideDefaults ...*Lead) *Lead {
	phone, digits := FakePhone()
	email := gofakeit.Email()
	ciudad := gofakeit.City()
	etapa := Etapas()[gofakeit.Number(0, len(Etapas())-1)]
	created := utils.Now().Add(-time.Duration(gofakeit.Number(1, 720)) * time.Hour)

	base := &Lead{
		ID:          uuid.NewString(),
		OwnerUserID: "owner_" + gofakeit.LetterN(8),
		Name:        gofakeit.Name(),
		Phone:       &phone,
		PhoneDigits: &digits,
		Email:       &email,
		Source:      DefaultSource,
		Status:      DefaultStatus,
		Ciudad:      &ciudad,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	base.ApplyEtapa(etapa)

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.OwnerUserID != "" {
			base.OwnerUserID = ovr.OwnerUserID
		}
		if ovr.Name != "" {
			base.Name = ovr.Name
		}
		if ovr.Phone != nil {
			base.Phone = ovr.Phone
			base.PhoneDigits = ovr.PhoneDigits
		}
		if ovr.Source != "" {
			base.Source = ovr.Source
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
		if ovr.Etapa != "" {
			base.ApplyEtapa(ovr.Etapa)
		}
		if !ovr.CreatedAt.IsZero() {
			base.CreatedAt = ovr.CreatedAt
			base.UpdatedAt = ovr.CreatedAt
		}
	}
	return base
}

// NewLeadEvent creates a LeadEvent for leadID with fake data.
func NewLeadEvent(leadID string, eventType LeadEventType) *LeadEvent {
	ev := &LeadEvent{
		ID:        uuid.NewString(),
		LeadID:    leadID,
		Type:      eventType,
		CreatedAt: utils.Now(),
	}
	if eventType == EventPurchase {
		revenue := float64(gofakeit.Number(1000, 50000)) / 100
		ev.Revenue = &revenue
	}
	return ev
}

// InboundPayload is the wire shape of an inbound channel message, as sent by
// the messaging provider bridge.
type InboundPayload struct {
	From      string      `json:"from"`
	MessageID string      `json:"messageId"`
	Text      string      `json:"text,omitempty"`
	Timestamp interface{} `json:"timestamp,omitempty"`
	Raw       interface{} `json:"raw,omitempty"`
	Ciudad    string      `json:"ciudad,omitempty"`
	Interes   string      `json:"interes,omitempty"`
}

// NewInboundPayload creates a fake inbound payload.
func NewInboundPayload() *InboundPayload {
	phone, _ := FakePhone()
	return &InboundPayload{
		From:      phone,
		MessageID: "wamid." + gofakeit.LetterN(24),
		Text:      gofakeit.Sentence(8),
		Timestamp: utils.Now().Unix(),
		Raw: map[string]interface{}{
			"pushName": gofakeit.FirstName(),
			"device":   gofakeit.RandomString([]string{"android", "ios", "web"}),
		},
	}
}
