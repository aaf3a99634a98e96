package validator

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/apperrors"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
)

// OptionalString distinguishes an absent JSON field from an explicit null.
type OptionalString struct {
	Set   bool
	Null  bool
	Value string
}

func (o *OptionalString) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Null = true
		return nil
	}
	return json.Unmarshal(b, &o.Value)
}

// LeadCreateRequest is the body of a lead creation call.
type LeadCreateRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Source   string `json:"source"`
	Status   string `json:"status"`
	Etapa    string `json:"etapa"`
	Ciudad   string `json:"ciudad"`
	Interes  string `json:"interes"`
	AgenteID string `json:"agente_id" validate:"omitempty,uuid"`
}

// LeadUpdateRequest is the body of a partial lead update. An explicit null
// clears nullable fields. probabilidad_cierre is accepted and ignored.
type LeadUpdateRequest struct {
	Name     OptionalString `json:"name"`
	Phone    OptionalString `json:"phone"`
	Email    OptionalString `json:"email"`
	Source   OptionalString `json:"source"`
	Status   OptionalString `json:"status"`
	Etapa    OptionalString `json:"etapa"`
	Ciudad   OptionalString `json:"ciudad"`
	Interes  OptionalString `json:"interes"`
	AgenteID OptionalString `json:"agente_id"`

	ProbabilidadCierre json.RawMessage `json:"probabilidad_cierre"`
}

// fieldErrors accumulates per-field failures so a request reports all of them.
type fieldErrors apperrors.ValidationErrors

func (f *fieldErrors) add(err error) {
	if err == nil {
		return
	}
	var fe *apperrors.FieldError
	if errors.As(err, &fe) {
		*f = append(*f, fe)
		return
	}
	var many apperrors.ValidationErrors
	if errors.As(err, &many) {
		*f = append(*f, many...)
		return
	}
	*f = append(*f, &apperrors.FieldError{Field: "body", Message: err.Error()})
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return apperrors.ValidationErrors(f)
}

// ParseLeadCreate builds a new lead for ownerID from req. Etapa defaults to
// NUEVO_CLIENTE, status to NEW, source to MANUAL.
func ParseLeadCreate(ownerID string, req LeadCreateRequest) (*model.Lead, error) {
	var errs fieldErrors
	errs.add(Validate(req))

	lead := &model.Lead{
		ID:          uuid.NewString(),
		OwnerUserID: ownerID,
		Source:      ParseSource(req.Source),
		Status:      model.DefaultStatus,
		Ciudad:      ParseCiudad(req.Ciudad),
		Interes:     ParseInteres(req.Interes),
	}
	lead.ApplyEtapa(model.DefaultEtapa)

	name, err := ParseName(req.Name)
	errs.add(err)
	lead.Name = name

	if phone := ParsePhone(req.Phone); phone != nil {
		digits := strings.TrimPrefix(*phone, "+")
		lead.Phone, lead.PhoneDigits = phone, &digits
	}

	email, err := ParseEmail(req.Email)
	errs.add(err)
	lead.Email = email

	if strings.TrimSpace(req.Status) != "" {
		status, err := ParseStatus(req.Status)
		errs.add(err)
		lead.Status = status
	}
	if strings.TrimSpace(req.Etapa) != "" {
		etapa, err := ParseEtapa(req.Etapa)
		errs.add(err)
		lead.ApplyEtapa(etapa)
	}
	if req.AgenteID != "" {
		agente := req.AgenteID
		lead.AgenteID = &agente
	}

	if err := errs.err(); err != nil {
		return nil, err
	}
	return lead, nil
}

// ParseLeadUpdate turns req into a patch using the same field parsers as
// ParseLeadCreate. Name, source, status and etapa cannot be cleared.
func ParseLeadUpdate(req LeadUpdateRequest) (model.LeadPatch, error) {
	var errs fieldErrors
	var patch model.LeadPatch

	if req.Name.Set {
		name, err := ParseName(req.Name.Value)
		errs.add(err)
		patch.Name = &name
	}
	if req.Phone.Set {
		patch.Phone = model.Nullable[string]{Set: true, Value: ParsePhone(req.Phone.Value)}
	}
	if req.Email.Set {
		email, err := ParseEmail(req.Email.Value)
		errs.add(err)
		patch.Email = model.Nullable[string]{Set: true, Value: email}
	}
	if req.Source.Set {
		source := ParseSource(req.Source.Value)
		patch.Source = &source
	}
	if req.Status.Set {
		status, err := ParseStatus(req.Status.Value)
		errs.add(err)
		patch.Status = &status
	}
	if req.Etapa.Set {
		etapa, err := ParseEtapa(req.Etapa.Value)
		errs.add(err)
		patch.Etapa = &etapa
	}
	if req.Ciudad.Set {
		patch.Ciudad = model.Nullable[string]{Set: true, Value: ParseCiudad(req.Ciudad.Value)}
	}
	if req.Interes.Set {
		patch.Interes = model.Nullable[string]{Set: true, Value: ParseInteres(req.Interes.Value)}
	}
	if req.AgenteID.Set {
		patch.AgenteID = model.Nullable[string]{Set: true}
		if !req.AgenteID.Null && req.AgenteID.Value != "" {
			errs.add(ValidateVar("agente_id", req.AgenteID.Value, "uuid"))
			agente := req.AgenteID.Value
			patch.AgenteID.Value = &agente
		}
	}

	if err := errs.err(); err != nil {
		return model.LeadPatch{}, err
	}
	return patch, nil
}
