package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLeadKeepsProbabilityInSync(t *testing.T) {
	for i := 0; i < 20; i++ {
		l := NewLead()
		assert.Equal(t, l.Etapa.Probability(), l.ProbabilidadCierre)
		assert.Equal(t, "+"+*l.PhoneDigits, *l.Phone)
	}

	l := NewLead(&Lead{OwnerUserID: "owner-1", Etapa: EtapaCerrada})
	assert.Equal(t, "owner-1", l.OwnerUserID)
	assert.Equal(t, 100, l.ProbabilidadCierre)
}

func TestNewInboundPayload(t *testing.T) {
	p := NewInboundPayload()
	assert.True(t, strings.HasPrefix(p.From, "+549"))
	assert.True(t, strings.HasPrefix(p.MessageID, "wamid."))

	ev := NewLeadEvent("lead-1", EventPurchase)
	if assert.NotNil(t, ev.Revenue) {
		assert.GreaterOrEqual(t, *ev.Revenue, 10.0)
	}
	assert.Nil(t, NewLeadEvent("lead-1", EventContacted).Revenue)
}
