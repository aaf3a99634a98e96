package usecase

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/apperrors"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
	storagemock "gitlab.com/timkado/api/lead-pipeline-core/internal/storage/mock"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/validator"
)

func TestCreateLeadDefaults(t *testing.T) {
	svc, _, ctx := newTestService(t)

	lead, err := svc.CreateLead(ctx, validator.LeadCreateRequest{Name: "  Ana Pérez ", Phone: "+52 (55) 1234-5678"})
	require.NoError(t, err)

	assert.Equal(t, "Ana Pérez", lead.Name)
	assert.Equal(t, testOwner, lead.OwnerUserID)
	assert.Equal(t, model.DefaultSource, lead.Source)
	assert.Equal(t, model.StatusNew, lead.Status)
	assert.Equal(t, model.EtapaNuevoCliente, lead.Etapa)
	assert.Equal(t, 25, lead.ProbabilidadCierre)
	require.NotNil(t, lead.Phone)
	assert.Equal(t, "+525512345678", *lead.Phone)
}

func TestCreateLeadDuplicatePhone(t *testing.T) {
	svc, _, ctx := newTestService(t)

	_, err := svc.CreateLead(ctx, validator.LeadCreateRequest{Name: "Ana", Phone: "+5215512345678"})
	require.NoError(t, err)
	_, err = svc.CreateLead(ctx, validator.LeadCreateRequest{Name: "Otra", Phone: "+5215512345678"})
	assert.ErrorIs(t, err, apperrors.ErrDuplicate)

	// Another owner may hold the same phone.
	_, err = svc.CreateLead(ownerCtx(t, "owner-2"), validator.LeadCreateRequest{Name: "Ana", Phone: "+5215512345678"})
	assert.NoError(t, err)
}

func TestCreateLeadValidation(t *testing.T) {
	svc, repo, ctx := newTestService(t)

	_, err := svc.CreateLead(ctx, validator.LeadCreateRequest{Name: "  ", Etapa: "GANADA"})
	require.ErrorIs(t, err, apperrors.ErrValidation)
	fields := apperrors.Fields(err)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "etapa")

	leads, _, _ := repo.counts()
	assert.Zero(t, leads)
}

func TestSetStage(t *testing.T) {
	testCases := []struct {
		raw         string
		etapa       model.Etapa
		probability int
	}{
		{raw: "NUEVO_CLIENTE", etapa: model.EtapaNuevoCliente, probability: 25},
		{raw: "cotizacion_enviada", etapa: model.EtapaCotizacionEnviada, probability: 50},
		{raw: " INTERES_AVANZADO ", etapa: model.EtapaInteresAvanzado, probability: 75},
		{raw: "Cerrada", etapa: model.EtapaCerrada, probability: 100},
		{raw: "RECHAZADA", etapa: model.EtapaRechazada, probability: 0},
	}

	svc, repo, ctx := newTestService(t)
	lead := seedLead(t, repo, testOwner, "5215500000001")

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := svc.SetStage(ctx, lead.ID, tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.etapa, got.Etapa)
			assert.Equal(t, tc.probability, got.ProbabilidadCierre)

			again, err := svc.SetStage(ctx, lead.ID, tc.raw)
			require.NoError(t, err)
			assert.Equal(t, got.Etapa, again.Etapa)
			assert.Equal(t, got.ProbabilidadCierre, again.ProbabilidadCierre)
		})
	}
}

func TestSetStageErrors(t *testing.T) {
	svc, repo, ctx := newTestService(t)
	lead := seedLead(t, repo, testOwner, "5215500000002")

	_, err := svc.SetStage(ctx, lead.ID, "GANADA")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	stored, err := repo.FindLeadByID(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EtapaNuevoCliente, stored.Etapa, "a rejected stage must not be written")

	_, err = svc.SetStage(ctx, "6f1c8f5e-3a47-4c1e-9a8e-2b4c1d0e9f11", "CERRADA")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = svc.SetStage(ownerCtx(t, "owner-2"), lead.ID, "CERRADA")
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "another owner's lead is not found")
}

func TestUpdateLeadStageRecomputesProbability(t *testing.T) {
	svc, repo, ctx := newTestService(t)
	lead := seedLead(t, repo, testOwner, "5215500000003")

	got, err := svc.UpdateLead(ctx, lead.ID, validator.LeadUpdateRequest{
		Etapa:  validator.OptionalString{Set: true, Value: "INTERES_AVANZADO"},
		Ciudad: validator.OptionalString{Set: true, Value: "Puebla"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.EtapaInteresAvanzado, got.Etapa)
	assert.Equal(t, 75, got.ProbabilidadCierre)
	require.NotNil(t, got.Ciudad)
	assert.Equal(t, "Puebla", *got.Ciudad)
}

func TestGetLeadDetail(t *testing.T) {
	svc, repo, ctx := newTestService(t)
	lead := seedLead(t, repo, testOwner, "5215500000004")

	_, _, err := svc.RecordEvent(ctx, lead.ID, validator.EventCreateRequest{Type: "CONTACTED"})
	require.NoError(t, err)

	detail, err := svc.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, lead.ID, detail.Lead.ID)
	assert.Len(t, detail.Events, 1)
	assert.NotNil(t, detail.Messages)
	assert.NotNil(t, detail.Conversations)

	_, err = svc.GetLead(ctx, "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPipelineStatsFillsEveryStage(t *testing.T) {
	svc, repo, ctx := newTestService(t)
	seedLead(t, repo, testOwner, "5215500000005")
	seedLead(t, repo, testOwner, "5215500000006")
	closed := seedLead(t, repo, testOwner, "5215500000007")
	_, err := svc.SetStage(ctx, closed.ID, "CERRADA")
	require.NoError(t, err)

	stats, err := svc.PipelineStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, len(model.Etapas()))

	for i, etapa := range model.Etapas() {
		assert.Equal(t, etapa, stats[i].Etapa)
		assert.Equal(t, etapa.Probability(), stats[i].ProbabilidadPorDefecto)
	}
	assert.Equal(t, int64(2), stats[0].Count)
	assert.Equal(t, 25.0, stats[0].AvgProbabilidad)
	assert.Equal(t, int64(0), stats[1].Count)
	assert.Equal(t, int64(1), stats[3].Count)
	assert.Equal(t, 100.0, stats[3].AvgProbabilidad)
}

func TestListWebhookLogsNormalizesOrigen(t *testing.T) {
	repo := new(storagemock.RepositoryMock)
	svc := NewLeadService(repo)
	ctx := ownerCtx(t, testOwner)

	repo.On("FindWebhookLogs", mock.Anything, "whatsapp", model.DefaultWebhookLogLimit).
		Return([]*model.WebhookLogEntry(nil), nil).Once()

	entries, err := svc.ListWebhookLogs(ctx, " WhatsApp ", 0)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
	repo.AssertExpectations(t)
}

func TestListMessagesRequiresOwnedLead(t *testing.T) {
	repo := new(storagemock.RepositoryMock)
	svc := NewLeadService(repo)
	ctx := ownerCtx(t, testOwner)
	id := "6f1c8f5e-3a47-4c1e-9a8e-2b4c1d0e9f11"

	repo.On("FindLeadByID", mock.Anything, id).Return(nil, apperrors.ErrNotFound).Once()

	_, err := svc.ListMessages(ctx, id)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	repo.AssertNotCalled(t, "FindInboundMessagesByLead", mock.Anything, mock.Anything, mock.Anything)
}

func TestListLeadsStoreError(t *testing.T) {
	repo := new(storagemock.RepositoryMock)
	svc := NewLeadService(repo)
	ctx := ownerCtx(t, testOwner)
	storeErr := errors.Join(apperrors.ErrDatabase, errors.New("conn reset"))

	repo.On("ListLeads", mock.Anything, mock.AnythingOfType("model.LeadFilter")).Return(nil, storeErr).Once()

	_, err := svc.ListLeads(ctx, validator.LeadListQuery{})
	assert.ErrorIs(t, err, apperrors.ErrDatabase)
}
