package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/apperrors"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/identity"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/storage"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/tenant"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/utils"
)

// memRepo is an in-memory storage.Repository enforcing the same unique
// indexes as the Postgres schema. Transactions are serialized and roll back
// by restoring a snapshot.
type memRepo struct {
	txMu sync.Mutex
	mu   sync.Mutex

	leads         map[string]*model.Lead
	events        []*model.LeadEvent
	messages      map[string]*model.InboundMessage // by external id
	conversations []*model.Conversation
	webhookLogs   []*model.WebhookLogEntry

	failWebhookLog error
}

type memTxKey struct{}

type memSnapshot struct {
	leads         map[string]*model.Lead
	events        []*model.LeadEvent
	messages      map[string]*model.InboundMessage
	conversations []*model.Conversation
}

var _ storage.Repository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{
		leads:    map[string]*model.Lead{},
		messages: map[string]*model.InboundMessage{},
	}
}

func (r *memRepo) owner(ctx context.Context) (string, error) {
	owner, err := tenant.FromContext(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}
	return owner, nil
}

func cloneLead(l *model.Lead) *model.Lead {
	c := *l
	return &c
}

func notFound(what string) error {
	return fmt.Errorf("%w: %s", apperrors.ErrNotFound, what)
}

func (r *memRepo) snapshot() memSnapshot {
	s := memSnapshot{
		leads:         make(map[string]*model.Lead, len(r.leads)),
		events:        append([]*model.LeadEvent(nil), r.events...),
		messages:      make(map[string]*model.InboundMessage, len(r.messages)),
		conversations: append([]*model.Conversation(nil), r.conversations...),
	}
	for k, v := range r.leads {
		s.leads[k] = cloneLead(v)
	}
	for k, v := range r.messages {
		s.messages[k] = v
	}
	return s
}

func (r *memRepo) restore(s memSnapshot) {
	r.leads, r.events, r.messages, r.conversations = s.leads, s.events, s.messages, s.conversations
}

func (r *memRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.Lock()
	snap := r.snapshot()
	r.mu.Unlock()

	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		r.mu.Lock()
		r.restore(snap)
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *memRepo) Ping(context.Context) error  { return nil }
func (r *memRepo) Close(context.Context) error { return nil }

func (r *memRepo) phoneTaken(owner string, digits *string) bool {
	if digits == nil {
		return false
	}
	for _, l := range r.leads {
		if l.OwnerUserID == owner && l.PhoneDigits != nil && *l.PhoneDigits == *digits {
			return true
		}
	}
	return false
}

func (r *memRepo) insertLead(ctx context.Context, lead *model.Lead) (bool, error) {
	owner, err := r.owner(ctx)
	if err != nil {
		return false, err
	}
	if lead.OwnerUserID == "" {
		lead.OwnerUserID = owner
	}
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = utils.Now()
		lead.UpdatedAt = lead.CreatedAt
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phoneTaken(owner, lead.PhoneDigits) {
		return false, nil
	}
	r.leads[lead.ID] = cloneLead(lead)
	return true, nil
}

func (r *memRepo) CreateLead(ctx context.Context, lead *model.Lead) error {
	ok, err := r.insertLead(ctx, lead)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: phone already used", apperrors.ErrDuplicate)
	}
	return nil
}

func (r *memRepo) CreateLeadIfPhoneAbsent(ctx context.Context, lead *model.Lead) (bool, error) {
	return r.insertLead(ctx, lead)
}

func (r *memRepo) FindLeadByID(ctx context.Context, id string) (*model.Lead, error) {
	owner, err := r.owner(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok || l.OwnerUserID != owner {
		return nil, notFound("lead " + id)
	}
	return cloneLead(l), nil
}

func (r *memRepo) ownedLeads(owner string) []*model.Lead {
	var out []*model.Lead
	for _, l := range r.leads {
		if l.OwnerUserID == owner {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *memRepo) FindLeadByPhoneDigits(ctx context.Context, digits string) (*model.Lead, error) {
	owner, err := r.owner(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.ownedLeads(owner) {
		if l.PhoneDigits != nil && identity.Matches(*l.PhoneDigits, digits) {
			return cloneLead(l), nil
		}
	}
	return nil, notFound("phone " + digits)
}

func (r *memRepo) FindLeadByExactPhoneDigits(ctx context.Context, digits string) (*model.Lead, error) {
	owner, err := r.owner(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.ownedLeads(owner) {
		if l.PhoneDigits != nil && *l.PhoneDigits == digits {
			return cloneLead(l), nil
		}
	}
	return nil, notFound("phone " + digits)
}

func (r *memRepo) ListLeads(ctx context.Context, filter model.LeadFilter) ([]*model.Lead, error) {
	owner, err := r.owner(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Lead
	owned := r.ownedLeads(owner)
	for i := len(owned) - 1; i >= 0; i-- {
		l := owned[i]
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		if filter.Etapa != "" && l.Etapa != filter.Etapa {
			continue
		}
		out = append(out, cloneLead(l))
	}
	return out, nil
}

func (r *memRepo) mutateLead(ctx context.Context, id string, fn func(l *model.Lead) error) (*model.Lead, error) {
	owner, err := r.owner(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok || l.OwnerUserID != owner {
		return nil, notFound("lead " + id)
	}
	next := cloneLead(l)
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = utils.Now()
	r.leads[id] = next
	return cloneLead(next), nil
}

func (r *memRepo) UpdateLead(ctx context.Context, id string, patch model.LeadPatch) (*model.Lead, error) {
	return r.mutateLead(ctx, id, func(l *model.Lead) error {
		if patch.Name != nil {
			l.Name = *patch.Name
		}
		if patch.Status != nil {
			l.Status = *patch.Status
		}
		if patch.Etapa != nil {
			l.ApplyEtapa(*patch.Etapa)
		}
		if patch.Ciudad.Set {
			l.Ciudad = patch.Ciudad.Value
		}
		if patch.Interes.Set {
			l.Interes = patch.Interes.Value
		}
		return nil
	})
}

func (r *memRepo) SetLeadStage(ctx context.Context, id string, etapa model.Etapa) (*model.Lead, error) {
	return r.mutateLead(ctx, id, func(l *model.Lead) error {
		l.ApplyEtapa(etapa)
		return nil
	})
}

func (r *memRepo) SetLeadStatus(ctx context.Context, id string, status model.LeadStatus) (*model.Lead, error) {
	return r.mutateLead(ctx, id, func(l *model.Lead) error {
		l.Status = status
		return nil
	})
}

func (r *memRepo) FillBlankLeadFields(ctx context.Context, id string, ciudad, interes *string, etapa *model.Etapa) (*model.Lead, error) {
	return r.mutateLead(ctx, id, func(l *model.Lead) error {
		if ciudad != nil && blank(l.Ciudad) {
			l.Ciudad = ciudad
		}
		if interes != nil && blank(l.Interes) {
			l.Interes = interes
		}
		if etapa != nil && l.Etapa == model.DefaultEtapa {
			l.ApplyEtapa(*etapa)
		}
		return nil
	})
}

func (r *memRepo) LeadPipelineStats(ctx context.Context) ([]model.PipelineStageStat, error) {
	owner, err := r.owner(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	byEtapa := map[model.Etapa]*model.PipelineStageStat{}
	var order []model.Etapa
	for _, l := range r.ownedLeads(owner) {
		stat, ok := byEtapa[l.Etapa]
		if !ok {
			stat = &model.PipelineStageStat{Etapa: l.Etapa}
			byEtapa[l.Etapa] = stat
			order = append(order, l.Etapa)
		}
		stat.AvgProbabilidad = (stat.AvgProbabilidad*float64(stat.Count) + float64(l.ProbabilidadCierre)) / float64(stat.Count+1)
		stat.Count++
	}
	out := make([]model.PipelineStageStat, 0, len(order))
	for _, e := range order {
		out = append(out, *byEtapa[e])
	}
	return out, nil
}

func (r *memRepo) RecordLeadEvent(ctx context.Context, event *model.LeadEvent) (*model.Lead, error) {
	var lead *model.Lead
	err := r.WithTx(ctx, func(ctx context.Context) error {
		r.mu.Lock()
		_, exists := r.leads[event.LeadID]
		if exists {
			r.events = append(r.events, event)
		}
		r.mu.Unlock()
		if !exists {
			return notFound("lead " + event.LeadID)
		}

		var err error
		lead, err = r.SetLeadStatus(ctx, event.LeadID, event.Type.ProjectedStatus())
		return err
	})
	return lead, err
}

func (r *memRepo) FindLeadEvents(ctx context.Context, leadID string) ([]*model.LeadEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.LeadEvent
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].LeadID == leadID {
			out = append(out, r.events[i])
		}
	}
	return out, nil
}

func (r *memRepo) FindInboundMessageByExternalID(_ context.Context, externalID string) (*model.InboundMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[externalID]
	if !ok {
		return nil, notFound("message " + externalID)
	}
	return msg, nil
}

func (r *memRepo) InsertInboundMessageIfAbsent(ctx context.Context, msg *model.InboundMessage) (bool, error) {
	owner, err := r.owner(ctx)
	if err != nil {
		return false, err
	}
	if msg.OwnerUserID == "" {
		msg.OwnerUserID = owner
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[msg.ExternalMessageID]; ok {
		return false, nil
	}
	r.messages[msg.ExternalMessageID] = msg
	return true, nil
}

func (r *memRepo) FindInboundMessagesByLead(_ context.Context, leadID string, limit int) ([]*model.InboundMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.InboundMessage
	for _, m := range r.messages {
		if m.LeadID != nil && *m.LeadID == leadID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) SaveWebhookLog(ctx context.Context, entry *model.WebhookLogEntry) error {
	if r.failWebhookLog != nil {
		return r.failWebhookLog
	}
	entry.OwnerUserID, _ = tenant.FromContext(ctx)
	entry.Fecha = utils.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.webhookLogs = append(r.webhookLogs, entry)
	return nil
}

func (r *memRepo) FindWebhookLogs(_ context.Context, origen string, limit int) ([]*model.WebhookLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.WebhookLogEntry
	for i := len(r.webhookLogs) - 1; i >= 0 && len(out) < limit; i-- {
		if origen == "" || r.webhookLogs[i].Origen == origen {
			out = append(out, r.webhookLogs[i])
		}
	}
	return out, nil
}

func (r *memRepo) SaveConversation(_ context.Context, conv *model.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations = append(r.conversations, conv)
	return nil
}

func (r *memRepo) FindConversationsByLead(_ context.Context, leadID string, limit int) ([]*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Conversation
	for i := len(r.conversations) - 1; i >= 0 && len(out) < limit; i-- {
		if r.conversations[i].LeadID == leadID {
			out = append(out, r.conversations[i])
		}
	}
	return out, nil
}

func (r *memRepo) FindKPIEventsInRange(ctx context.Context, from, to time.Time) ([]model.KPIEventRow, error) {
	owner, err := r.owner(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.KPIEventRow
	for _, ev := range r.events {
		l, ok := r.leads[ev.LeadID]
		if !ok || l.OwnerUserID != owner || ev.CreatedAt.Before(from) || ev.CreatedAt.After(to) {
			continue
		}
		out = append(out, model.KPIEventRow{LeadID: ev.LeadID, Type: ev.Type, Revenue: ev.Revenue})
	}
	return out, nil
}

func (r *memRepo) FindContactedLeadIDs(ctx context.Context, to time.Time) ([]string, error) {
	owner, err := r.owner(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, l := range r.ownedLeads(owner) {
		if l.CreatedAt.After(to) {
			continue
		}
		for _, s := range model.ContactedStatuses() {
			if l.Status == s {
				out = append(out, l.ID)
				break
			}
		}
	}
	return out, nil
}

// counts returns the number of stored leads, messages and conversations.
func (r *memRepo) counts() (leads, messages, conversations int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.leads), len(r.messages), len(r.conversations)
}
