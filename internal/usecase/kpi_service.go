package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/apperrors"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/observer"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/logger"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/utils"
)

// ComputeKPIs returns funnel metrics for the owner over [from, to]. A nil
// to means now and a nil from means 30 days before now, whatever to is.
func (s *LeadService) ComputeKPIs(ctx context.Context, from, to *time.Time) (*model.KPIResult, error) {
	start := utils.Now()
	defer func() { observer.ObserveKPIComputation(time.Since(start)) }()

	now := utils.Now()
	rng := model.DateRange{From: now.Add(-model.DefaultKPIWindow), To: now}
	if to != nil {
		rng.To = to.UTC()
	}
	if from != nil {
		rng.From = from.UTC()
	}
	if rng.To.Before(rng.From) {
		return nil, apperrors.NewFieldError("to", "must not be before from")
	}

	var (
		events    []model.KPIEventRow
		contacted []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(utils.WrapWithRecovery(func() error {
		var err error
		events, err = s.repo.FindKPIEventsInRange(gctx, rng.From, rng.To)
		return err
	}))
	g.Go(utils.WrapWithRecovery(func() error {
		var err error
		contacted, err = s.repo.FindContactedLeadIDs(gctx, rng.To)
		return err
	}))
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := computeKPIs(events, contacted)
	logger.FromContext(ctx).Debug("KPIs computed",
		zap.Time("from", rng.From),
		zap.Time("to", rng.To),
		zap.Int("events", len(events)),
		zap.Int("leads_contactados", report.LeadsContactados),
	)
	return &model.KPIResult{KPIs: report, DateRange: rng}, nil
}

// computeKPIs folds range events and the ids of leads whose status counts as
// contacted into a report. Every lead is counted at most once per metric.
func computeKPIs(events []model.KPIEventRow, contactedLeadIDs []string) model.KPIReport {
	contactados := make(map[string]struct{}, len(contactedLeadIDs))
	calificados := map[string]struct{}{}
	convertidos := map[string]struct{}{}
	var revenue float64

	for _, id := range contactedLeadIDs {
		contactados[id] = struct{}{}
	}
	for _, ev := range events {
		switch {
		case ev.Type == model.EventContacted:
			contactados[ev.LeadID] = struct{}{}
		case ev.Type == model.EventQualified:
			calificados[ev.LeadID] = struct{}{}
		case ev.Type.IsConversion():
			convertidos[ev.LeadID] = struct{}{}
		}
		if ev.Type == model.EventPurchase && ev.Revenue != nil {
			revenue += *ev.Revenue
		}
	}

	report := model.KPIReport{
		LeadsContactados: len(contactados),
		LeadsCalificados: len(calificados),
		LeadsConvertidos: len(convertidos),
		Revenue:          round2(revenue),
		Recipients:       len(contactados),
	}
	if report.LeadsContactados > 0 {
		report.TasaConversion = round2(float64(report.LeadsConvertidos) / float64(report.LeadsContactados) * 100)
	}
	if report.Recipients > 0 {
		report.RPR = round2(revenue / float64(report.Recipients))
	}
	return report
}
