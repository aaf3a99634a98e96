package validator

import (
	"strconv"
	"strings"
	"time"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/apperrors"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/utils"
)

// LeadListQuery holds the raw query string of a lead listing.
type LeadListQuery struct {
	Status string
	Etapa  string
	Ciudad string
	Search string
	Limit  string
	Offset string
}

// ParseLeadFilter validates a listing query. Limit defaults to 100 and is
// capped at 500.
func ParseLeadFilter(q LeadListQuery) (model.LeadFilter, error) {
	var errs fieldErrors
	filter := model.LeadFilter{
		Ciudad: strings.TrimSpace(q.Ciudad),
		Search: strings.TrimSpace(q.Search),
		Limit:  model.DefaultLeadListLimit,
	}

	if strings.TrimSpace(q.Status) != "" {
		status, err := ParseStatus(q.Status)
		errs.add(err)
		filter.Status = status
	}
	if strings.TrimSpace(q.Etapa) != "" {
		etapa, err := ParseEtapa(q.Etapa)
		errs.add(err)
		filter.Etapa = etapa
	}
	if q.Limit != "" {
		n, err := strconv.Atoi(q.Limit)
		if err != nil || n <= 0 {
			errs.add(apperrors.NewFieldError("limit", "must be a positive integer"))
		} else {
			filter.Limit = min(n, model.MaxLeadListLimit)
		}
	}
	if q.Offset != "" {
		n, err := strconv.Atoi(q.Offset)
		if err != nil || n < 0 {
			errs.add(apperrors.NewFieldError("skip", "must be a non-negative integer"))
		} else {
			filter.Offset = n
		}
	}

	if err := errs.err(); err != nil {
		return model.LeadFilter{}, err
	}
	return filter, nil
}

// ParseDateRange parses optional range bounds. A date-only "to" covers the
// whole day.
func ParseDateRange(fromRaw, toRaw string) (from, to *time.Time, err error) {
	var errs fieldErrors
	if strings.TrimSpace(fromRaw) != "" {
		t, perr := utils.ParseTimestamp(fromRaw)
		if perr != nil {
			errs.add(apperrors.NewFieldError("from", "must be a date or RFC 3339 timestamp"))
		} else {
			from = &t
		}
	}
	if strings.TrimSpace(toRaw) != "" {
		t, perr := utils.ParseTimestamp(toRaw)
		if perr != nil {
			errs.add(apperrors.NewFieldError("to", "must be a date or RFC 3339 timestamp"))
		} else {
			if isDateOnly(toRaw) {
				t = utils.EndOfDay(t)
			}
			to = &t
		}
	}
	if err := errs.err(); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func isDateOnly(raw string) bool {
	_, err := time.Parse(time.DateOnly, strings.TrimSpace(raw))
	return err == nil
}
