package validator

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/apperrors"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/identity"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/utils"
)

// InboundRequest is the wire shape of an inbound channel message.
type InboundRequest struct {
	From      string          `json:"from" validate:"required"`
	MessageID string          `json:"messageId" validate:"required,max=255"`
	Text      string          `json:"text"`
	Timestamp json.RawMessage `json:"timestamp"`
	Raw       json.RawMessage `json:"raw"`
	Ciudad    string          `json:"ciudad"`
	Interes   string          `json:"interes"`
	Etapa     string          `json:"etapa"`
}

// ParseInbound decodes and validates an inbound body. The returned command
// still needs AutoCreateLead and Source set by the caller.
func ParseInbound(body []byte) (model.IngestCommand, error) {
	var req InboundRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&req); err != nil {
		return model.IngestCommand{}, apperrors.NewFieldError("body", "must be a JSON object: %v", err)
	}

	req.From = strings.TrimSpace(req.From)
	req.MessageID = strings.TrimSpace(req.MessageID)
	if err := Validate(req); err != nil {
		return model.IngestCommand{}, err
	}

	var errs fieldErrors
	from, ok := identity.NormalizePhone(req.From)
	if !ok {
		errs.add(apperrors.NewFieldError("from", "must contain at least one digit"))
	}

	receivedAt, err := ParseMessageTimestamp(req.Timestamp)
	errs.add(err)

	cmd := model.IngestCommand{
		From:              from,
		ExternalMessageID: req.MessageID,
		Body:              req.Text,
		ReceivedAt:        receivedAt,
		Ciudad:            ParseCiudad(req.Ciudad),
		Interes:           ParseInteres(req.Interes),
	}
	if !utils.IsJSONNull(req.Raw) {
		cmd.Raw = append([]byte(nil), req.Raw...)
	}
	if strings.TrimSpace(req.Etapa) != "" {
		etapa, err := ParseEtapa(req.Etapa)
		errs.add(err)
		cmd.Etapa = &etapa
	}

	if err := errs.err(); err != nil {
		return model.IngestCommand{}, err
	}
	return cmd, nil
}

// ParseMessageTimestamp reads a JSON number (unix seconds below 1e11,
// milliseconds otherwise) or a string timestamp. Absent or null yields zero.
func ParseMessageTimestamp(raw json.RawMessage) (time.Time, error) {
	if utils.IsJSONNull(raw) {
		return time.Time{}, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if v, err := n.Int64(); err == nil && v > 0 {
			return utils.UnixAutoToTime(v), nil
		}
		if f, err := n.Float64(); err == nil && f > 0 {
			return utils.UnixAutoToTime(int64(f)), nil
		}
		return time.Time{}, apperrors.NewFieldError("timestamp", "must be a positive unix time")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		t, err := utils.ParseTimestamp(s)
		if err != nil {
			return time.Time{}, apperrors.NewFieldError("timestamp", "must be RFC 3339 or unix time")
		}
		return t, nil
	}
	return time.Time{}, apperrors.NewFieldError("timestamp", "must be a number or a string")
}
