package main

import (
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/utils"
)

const (
	kindNew       = "new"
	kindDuplicate = "duplicate"

	recentWindow = 256
)

// outboundMessage is one publish: the body plus the stream de-dup id.
type outboundMessage struct {
	Body    []byte
	MsgID   string
	Kind    string
	OwnerID string
}

// generator produces inbound payloads. A share of them repeat a recent
// messageId so the consumer's replay path gets exercised, and senders are
// drawn from a bounded phone pool so placeholder leads get matched again.
type generator struct {
	mu             sync.Mutex
	rnd            *rand.Rand
	duplicateRatio float64
	phonePool      int
	phones         []string
	recent         [][]byte
}

func newGenerator(phonePool int, duplicateRatio float64, seed int64) *generator {
	return &generator{
		rnd:            rand.New(rand.NewSource(seed)),
		duplicateRatio: min(max(duplicateRatio, 0), 1),
		phonePool:      phonePool,
	}
}

// next builds the message for owner. Duplicates get a fresh stream id so
// JetStream's own de-dup window does not swallow them before ingestion.
func (g *generator) next(owner string) outboundMessage {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.recent) > 0 && g.rnd.Float64() < g.duplicateRatio {
		body := g.recent[g.rnd.Intn(len(g.recent))]
		return outboundMessage{Body: body, MsgID: "dup-" + uuid.NewString(), Kind: kindDuplicate, OwnerID: owner}
	}

	payload := model.NewInboundPayload()
	if phone := g.pickPhone(); phone != "" {
		payload.From = phone
	}
	body := utils.MustMarshalJSON(payload)

	if len(g.recent) < recentWindow {
		g.recent = append(g.recent, body)
	} else {
		g.recent[g.rnd.Intn(recentWindow)] = body
	}
	return outboundMessage{Body: body, MsgID: payload.MessageID, Kind: kindNew, OwnerID: owner}
}

// pickPhone returns "" when the pool is disabled, letting every message
// come from a new sender.
func (g *generator) pickPhone() string {
	if g.phonePool <= 0 {
		return ""
	}
	if len(g.phones) < g.phonePool {
		phone, _ := model.FakePhone()
		g.phones = append(g.phones, phone)
		return phone
	}
	return g.phones[g.rnd.Intn(len(g.phones))]
}
