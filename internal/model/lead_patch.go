package model

import "strings"

// DigitsOf returns the digit-only form of a normalized phone, the value
// stored in phone_digits.
func DigitsOf(phone string) string {
	return strings.TrimPrefix(phone, "+")
}

// Nullable is a PATCH field. Set=false leaves the column untouched,
// Set=true with a nil Value clears it.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

// NullableOf returns a set Nullable holding v.
func NullableOf[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Value: &v}
}

// LeadPatch is a parsed partial lead update. probabilidad_cierre is never
// part of a patch; it follows Etapa.
type LeadPatch struct {
	Name     *string
	Phone    Nullable[string]
	Email    Nullable[string]
	Source   *string
	Status   *LeadStatus
	Etapa    *Etapa
	Ciudad   Nullable[string]
	Interes  Nullable[string]
	AgenteID Nullable[string]
}

// Empty reports whether the patch changes nothing.
func (p LeadPatch) Empty() bool {
	return len(p.Columns()) == 0
}

// Columns returns the column values to write.
func (p LeadPatch) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if p.Name != nil {
		cols["name"] = *p.Name
	}
	if p.Phone.Set {
		cols["phone"] = p.Phone.Value
		var digits *string
		if p.Phone.Value != nil {
			d := DigitsOf(*p.Phone.Value)
			digits = &d
		}
		cols["phone_digits"] = digits
	}
	if p.Email.Set {
		cols["email"] = p.Email.Value
	}
	if p.Source != nil {
		cols["source"] = *p.Source
	}
	if p.Status != nil {
		cols["status"] = *p.Status
	}
	if p.Etapa != nil {
		cols["etapa"] = *p.Etapa
		cols["probabilidad_cierre"] = p.Etapa.Probability()
	}
	if p.Ciudad.Set {
		cols["ciudad"] = p.Ciudad.Value
	}
	if p.Interes.Set {
		cols["interes"] = p.Interes.Value
	}
	if p.AgenteID.Set {
		cols["agente_id"] = p.AgenteID.Value
	}
	return cols
}

// ApplyTo writes the patch onto l in memory.
func (p LeadPatch) ApplyTo(l *Lead) {
	if p.Name != nil {
		l.Name = *p.Name
	}
	if p.Phone.Set {
		l.Phone = p.Phone.Value
		l.PhoneDigits = nil
		if p.Phone.Value != nil {
			d := DigitsOf(*p.Phone.Value)
			l.PhoneDigits = &d
		}
	}
	if p.Email.Set {
		l.Email = p.Email.Value
	}
	if p.Source != nil {
		l.Source = *p.Source
	}
	if p.Status != nil {
		l.Status = *p.Status
	}
	if p.Etapa != nil {
		l.ApplyEtapa(*p.Etapa)
	}
	if p.Ciudad.Set {
		l.Ciudad = p.Ciudad.Value
	}
	if p.Interes.Set {
		l.Interes = p.Interes.Value
	}
	if p.AgenteID.Set {
		l.AgenteID = p.AgenteID.Value
	}
}
