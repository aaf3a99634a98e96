package model

import "strings"

// Etapa is a pipeline stage. The set is closed and each stage carries a
// fixed closing probability.
type Etapa string

const (
	EtapaNuevoCliente      Etapa = "NUEVO_CLIENTE"
	EtapaCotizacionEnviada Etapa = "COTIZACION_ENVIADA"
	EtapaInteresAvanzado   Etapa = "INTERES_AVANZADO"
	EtapaCerrada           Etapa = "CERRADA"
	EtapaRechazada         Etapa = "RECHAZADA"

	DefaultEtapa = EtapaNuevoCliente
)

var etapaProbability = map[Etapa]int{
	EtapaNuevoCliente:      25,
	EtapaCotizacionEnviada: 50,
	EtapaInteresAvanzado:   75,
	EtapaCerrada:           100,
	EtapaRechazada:         0,
}

// Etapas lists every stage in funnel order.
func Etapas() []Etapa {
	return []Etapa{EtapaNuevoCliente, EtapaCotizacionEnviada, EtapaInteresAvanzado, EtapaCerrada, EtapaRechazada}
}

// Valid reports whether e is a known stage.
func (e Etapa) Valid() bool {
	_, ok := etapaProbability[e]
	return ok
}

// Probability returns the closing probability for e, or 0 for unknown stages.
func (e Etapa) Probability() int {
	return etapaProbability[e]
}

// ParseEtapa upper-cases and trims raw and checks it against the stage set.
func ParseEtapa(raw string) (Etapa, bool) {
	e := Etapa(strings.ToUpper(strings.TrimSpace(raw)))
	return e, e.Valid()
}

// LeadStatus is the legacy lead signal, kept independent from Etapa.
type LeadStatus string

const (
	StatusNew       LeadStatus = "NEW"
	StatusContacted LeadStatus = "CONTACTED"
	StatusQualified LeadStatus = "QUALIFIED"
	StatusConverted LeadStatus = "CONVERTED"

	DefaultStatus = StatusNew
)

func (s LeadStatus) Valid() bool {
	switch s {
	case StatusNew, StatusContacted, StatusQualified, StatusConverted:
		return true
	}
	return false
}

// ParseLeadStatus upper-cases and trims raw and checks it against the status set.
func ParseLeadStatus(raw string) (LeadStatus, bool) {
	s := LeadStatus(strings.ToUpper(strings.TrimSpace(raw)))
	return s, s.Valid()
}

// ContactedStatuses are the statuses that count a lead as contacted in KPIs.
func ContactedStatuses() []LeadStatus {
	return []LeadStatus{StatusContacted, StatusQualified, StatusConverted}
}

// LeadEventType names a business fact recorded against a lead.
type LeadEventType string

const (
	EventContacted    LeadEventType = "CONTACTED"
	EventQualified    LeadEventType = "QUALIFIED"
	EventConverted    LeadEventType = "CONVERTED"
	EventPurchase     LeadEventType = "PURCHASE"
	EventRegistration LeadEventType = "REGISTRATION"
	EventReservation  LeadEventType = "RESERVATION"
)

var eventProjection = map[LeadEventType]LeadStatus{
	EventContacted:    StatusContacted,
	EventQualified:    StatusQualified,
	EventConverted:    StatusConverted,
	EventPurchase:     StatusConverted,
	EventRegistration: StatusConverted,
	EventReservation:  StatusQualified,
}

func (t LeadEventType) Valid() bool {
	_, ok := eventProjection[t]
	return ok
}

// ProjectedStatus is the status a lead takes when an event of type t is recorded.
func (t LeadEventType) ProjectedStatus() LeadStatus {
	return eventProjection[t]
}

// IsConversion reports whether t counts toward converted leads.
func (t LeadEventType) IsConversion() bool {
	return t == EventConverted || t == EventPurchase || t == EventRegistration
}

// ParseLeadEventType upper-cases and trims raw and checks it against the event type set.
func ParseLeadEventType(raw string) (LeadEventType, bool) {
	t := LeadEventType(strings.ToUpper(strings.TrimSpace(raw)))
	return t, t.Valid()
}

// LeadEventTypes lists every event type.
func LeadEventTypes() []LeadEventType {
	return []LeadEventType{EventContacted, EventQualified, EventConverted, EventPurchase, EventRegistration, EventReservation}
}

const (
	DefaultSource  = "MANUAL"
	SourceWhatsApp = "WHATSAPP"

	// ConversationRolUser marks a conversation line written by the lead.
	ConversationRolUser = "user"
)
