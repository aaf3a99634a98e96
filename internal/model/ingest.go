package model

import "time"

// IngestOutcome says how an inbound message was attached to a lead.
type IngestOutcome string

const (
	OutcomeCreated   IngestOutcome = "created"   // a placeholder lead was created
	OutcomeMatched   IngestOutcome = "matched"   // an existing lead was found by phone
	OutcomeUnmatched IngestOutcome = "unmatched" // stored without a lead
	OutcomeReplayed  IngestOutcome = "replayed"  // message id seen before, nothing written
)

// IngestCommand is a validated inbound message ready for the coordinator.
type IngestCommand struct {
	From              string
	ExternalMessageID string
	Body              string
	ReceivedAt        time.Time // zero means "now"
	Raw               []byte
	AutoCreateLead    bool
	Source            string

	// Optional enrichment merged into blank fields of a matched lead.
	Ciudad  *string
	Interes *string
	Etapa   *Etapa
}

// IngestResult is returned for first deliveries and replays alike. On a
// replay Created reports what the first delivery did.
type IngestResult struct {
	Message *InboundMessage `json:"message"`
	Lead    *Lead           `json:"lead"`
	Created bool            `json:"created"`
	Outcome IngestOutcome   `json:"outcome"`
}
