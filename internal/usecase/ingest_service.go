package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/apperrors"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/identity"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/observer"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/validator"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/logger"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/utils"
)

// errAlreadyIngested aborts the ingestion transaction when another delivery
// of the same message id committed first.
var errAlreadyIngested = errors.New("message already ingested")

// IngestRaw audits body under origen, then parses it and ingests it. The
// audit entry is written before anything else looks at the body, so
// malformed deliveries are recorded too. A failed audit write is logged and
// does not block ingestion.
func (s *LeadService) IngestRaw(ctx context.Context, origen string, body []byte, autoCreateLead bool) (*model.IngestResult, error) {
	log := logger.FromContext(ctx)
	origen = strings.ToLower(strings.TrimSpace(origen))

	entry := &model.WebhookLogEntry{Origen: origen, Payload: string(body)}
	if err := s.repo.SaveWebhookLog(ctx, entry); err != nil {
		observer.IncWebhookLogFailure(origen)
		log.Warn("Failed to write webhook audit entry",
			zap.String("origen", origen),
			zap.Int("payload_bytes", len(body)),
			zap.Error(err),
		)
	}

	cmd, err := validator.ParseInbound(body)
	if err != nil {
		observer.IncIngestOutcome(origen, "invalid")
		log.Info("Rejected inbound payload", zap.String("origen", origen), zap.Error(err))
		return nil, err
	}
	cmd.AutoCreateLead = autoCreateLead
	cmd.Source = strings.ToUpper(origen)

	result, err := s.Ingest(ctx, cmd)
	if err != nil {
		observer.IncIngestOutcome(origen, "error")
		return nil, err
	}
	observer.IncIngestOutcome(origen, string(result.Outcome))
	return result, nil
}

// Ingest attaches an inbound message to a lead of the context owner and
// stores it once per external message id. Redeliveries and concurrent
// duplicates get the stored result back with OutcomeReplayed.
func (s *LeadService) Ingest(ctx context.Context, cmd model.IngestCommand) (*model.IngestResult, error) {
	log := logger.FromContext(ctx).With(zap.String("external_message_id", cmd.ExternalMessageID))

	from, ok := identity.NormalizePhone(cmd.From)
	if !ok {
		return nil, apperrors.NewFieldError("from", "must contain at least one digit")
	}
	cmd.From = from
	cmd.ExternalMessageID = strings.TrimSpace(cmd.ExternalMessageID)
	if cmd.ExternalMessageID == "" {
		return nil, apperrors.NewFieldError("messageId", "is required")
	}
	if cmd.Source == "" {
		cmd.Source = model.SourceWhatsApp
	}
	if cmd.ReceivedAt.IsZero() {
		cmd.ReceivedAt = utils.Now()
	}

	if result, err := s.replay(ctx, cmd.ExternalMessageID); err != nil || result != nil {
		return result, err
	}

	var result *model.IngestResult
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		lead, created, err := s.findOrCreateLead(ctx, cmd)
		if err != nil {
			return err
		}

		msg := &model.InboundMessage{
			ID:                uuid.NewString(),
			From:              cmd.From,
			ExternalMessageID: cmd.ExternalMessageID,
			Body:              cmd.Body,
			ReceivedAt:        cmd.ReceivedAt,
			LeadCreated:       created,
			CreatedAt:         utils.Now(),
		}
		if cmd.Raw != nil {
			msg.Raw = datatypes.JSON(cmd.Raw)
		}
		if lead != nil {
			msg.LeadID = &lead.ID
		}

		inserted, err := s.repo.InsertInboundMessageIfAbsent(ctx, msg)
		if err != nil {
			return err
		}
		if !inserted {
			return errAlreadyIngested
		}

		if lead != nil && strings.TrimSpace(cmd.Body) != "" {
			conv := &model.Conversation{
				LeadID:  lead.ID,
				Mensaje: strings.TrimSpace(cmd.Body),
				Rol:     model.ConversationRolUser,
				Fecha:   cmd.ReceivedAt,
			}
			if err := s.repo.SaveConversation(ctx, conv); err != nil {
				return err
			}
		}

		result = &model.IngestResult{Message: msg, Lead: lead, Created: created, Outcome: outcomeOf(lead, created)}
		return nil
	})

	if errors.Is(err, errAlreadyIngested) {
		log.Info("Concurrent duplicate delivery, returning stored message")
		replayed, rerr := s.replay(ctx, cmd.ExternalMessageID)
		if rerr != nil {
			return nil, rerr
		}
		if replayed == nil {
			return nil, apperrors.ErrConflict
		}
		return replayed, nil
	}
	if err != nil {
		log.Warn("Failed to ingest inbound message", zap.Error(err))
		return nil, err
	}

	leadID := ""
	if result.Lead != nil {
		leadID = result.Lead.ID
	}
	log.Info("Inbound message ingested",
		zap.String("lead_id", leadID),
		zap.String("outcome", string(result.Outcome)),
	)
	return result, nil
}

// replay returns the stored result for externalID, or nil when the id was
// never ingested.
func (s *LeadService) replay(ctx context.Context, externalID string) (*model.IngestResult, error) {
	msg, err := s.repo.FindInboundMessageByExternalID(ctx, externalID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	result := &model.IngestResult{Message: msg, Created: msg.LeadCreated, Outcome: model.OutcomeReplayed}
	if msg.LeadID != nil {
		lead, err := s.repo.FindLeadByID(ctx, *msg.LeadID)
		switch {
		case err == nil:
			result.Lead = lead
		case !errors.Is(err, apperrors.ErrNotFound):
			return nil, err
		}
	}
	return result, nil
}

// findOrCreateLead resolves cmd.From to a lead. Unknown senders get a
// placeholder lead when cmd.AutoCreateLead is set; otherwise the lead is nil.
func (s *LeadService) findOrCreateLead(ctx context.Context, cmd model.IngestCommand) (*model.Lead, bool, error) {
	lead, err := s.resolver.ResolveLeadByPhone(ctx, cmd.From)
	if err != nil {
		return nil, false, err
	}
	if lead != nil {
		lead, err = s.mergeBlankFields(ctx, lead, cmd)
		return lead, false, err
	}
	if !cmd.AutoCreateLead {
		return nil, false, nil
	}

	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, false, err
	}
	digits := identity.Digits(cmd.From)
	phone := cmd.From
	now := utils.Now()
	candidate := &model.Lead{
		ID:          uuid.NewString(),
		OwnerUserID: owner,
		Name:        identity.PlaceholderName(cmd.From),
		Phone:       &phone,
		PhoneDigits: &digits,
		Source:      cmd.Source,
		Status:      model.DefaultStatus,
		Ciudad:      cmd.Ciudad,
		Interes:     cmd.Interes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	candidate.ApplyEtapa(model.DefaultEtapa)
	if cmd.Etapa != nil {
		candidate.ApplyEtapa(*cmd.Etapa)
	}

	created, err := s.repo.CreateLeadIfPhoneAbsent(ctx, candidate)
	if err != nil {
		return nil, false, err
	}
	if created {
		return candidate, true, nil
	}

	// Another writer created the lead between resolution and insert.
	winner, err := s.repo.FindLeadByExactPhoneDigits(ctx, digits)
	if err != nil {
		return nil, false, err
	}
	winner, err = s.mergeBlankFields(ctx, winner, cmd)
	return winner, false, err
}

// mergeBlankFields fills ciudad, interes and etapa of a matched lead from
// cmd where the lead has no value yet. The name is never touched.
func (s *LeadService) mergeBlankFields(ctx context.Context, lead *model.Lead, cmd model.IngestCommand) (*model.Lead, error) {
	var ciudad, interes *string
	var etapa *model.Etapa
	if cmd.Ciudad != nil && blank(lead.Ciudad) {
		ciudad = cmd.Ciudad
	}
	if cmd.Interes != nil && blank(lead.Interes) {
		interes = cmd.Interes
	}
	if cmd.Etapa != nil && *cmd.Etapa != model.DefaultEtapa && lead.Etapa == model.DefaultEtapa {
		etapa = cmd.Etapa
	}
	if ciudad == nil && interes == nil && etapa == nil {
		return lead, nil
	}
	return s.repo.FillBlankLeadFields(ctx, lead.ID, ciudad, interes, etapa)
}

func blank(v *string) bool {
	return v == nil || strings.TrimSpace(*v) == ""
}

func outcomeOf(lead *model.Lead, created bool) model.IngestOutcome {
	switch {
	case lead == nil:
		return model.OutcomeUnmatched
	case created:
		return model.OutcomeCreated
	default:
		return model.OutcomeMatched
	}
}
