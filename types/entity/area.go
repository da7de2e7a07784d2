package entity

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Upstream field names. They are also the wire names of the pushed payload.
const (
	FieldAreaName = "area_nm"
	FieldLevel    = "area_congest_lvl"
	FieldForecast = "fcst_ppltn"
)

var ErrMissingField = errors.New("missing field")

// Area is the congestion status of one area for one observation.
type Area struct {
	Name  string
	Level Level

	// Extra holds upstream fields passed through untouched. Read-only once
	// the area is part of a Snapshot.
	Extra map[string]json.RawMessage
}

// Snapshot is the ordered per-area listing of one cycle or of the cache content.
type Snapshot []Area

// AlertSet is the subset of a Snapshot whose transition is alert-worthy.
type AlertSet []Area

func (a Area) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(a.Extra)+2)
	for k, v := range a.Extra {
		out[k] = v
	}

	name, err := json.Marshal(a.Name)
	if err != nil {
		return nil, err
	}

	level, err := a.Level.MarshalJSON()
	if err != nil {
		return nil, err
	}

	out[FieldAreaName] = name
	out[FieldLevel] = level

	return json.Marshal(out)
}

func (a *Area) UnmarshalJSON(payload []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return err
	}

	rawName, ok := fields[FieldAreaName]
	if !ok {
		return fmt.Errorf("%w: %v", ErrMissingField, FieldAreaName)
	}
	rawLevel, ok := fields[FieldLevel]
	if !ok {
		return fmt.Errorf("%w: %v", ErrMissingField, FieldLevel)
	}

	var name string
	if err := json.Unmarshal(rawName, &name); err != nil {
		return err
	}

	var level Level
	if err := level.UnmarshalJSON(rawLevel); err != nil {
		return err
	}

	delete(fields, FieldAreaName)
	delete(fields, FieldLevel)
	if len(fields) == 0 {
		fields = nil
	}

	a.Name = name
	a.Level = level
	a.Extra = fields
	return nil
}

// WithoutForecast returns a copy of the area without the forecast field.
func (a Area) WithoutForecast() Area {
	if _, ok := a.Extra[FieldForecast]; !ok {
		return a
	}

	extra := make(map[string]json.RawMessage, len(a.Extra)-1)
	for k, v := range a.Extra {
		if k == FieldForecast {
			continue
		}
		extra[k] = v
	}
	a.Extra = extra
	return a
}

// Clone returns a copy of the snapshot that shares the read-only Extra maps.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	copy(out, s)
	return out
}

// FirstSeenAlerts evaluates the alert policy for every area as if it had
// never been observed before.
func (s Snapshot) FirstSeenAlerts() AlertSet {
	alerts := make(AlertSet, 0)
	for _, area := range s {
		if ShouldAlert(0, false, area.Level) {
			alerts = append(alerts, area.WithoutForecast())
		}
	}
	return alerts
}
