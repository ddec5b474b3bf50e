package persistence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EventType classifies a calendar entry.
type EventType string

const (
	// EventTypeAppointment is a one-to-one booking with a professional.
	EventTypeAppointment EventType = "appointment"
	// EventTypeClass is a group session; the only type that consumes credits.
	EventTypeClass EventType = "class"
	// EventTypeVacation blocks a professional's calendar.
	EventTypeVacation EventType = "vacation"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeAppointment, EventTypeClass, EventTypeVacation:
		return true
	}
	return false
}

// Role identifies the kind of profile.
type Role string

const (
	RoleClient       Role = "client"
	RoleProfessional Role = "professional"
)

// Event is a concrete calendar entry. Datetime uses the
// YYYY-MM-DDTHH:MM:SS±HH:MM form produced by datemath.Format.
type Event struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	Datetime     string    `json:"datetime"`
	Duration     int       `json:"duration"`
	Client       []string  `json:"client"`
	Professional []string  `json:"professional"`
	Company      string    `json:"company"`
	Notes        string    `json:"notes,omitempty"`
	TemplateID   string    `json:"template_id,omitempty"`
}

// IsClass reports whether the event consumes class credits.
func (e Event) IsClass() bool {
	return e.Type == EventTypeClass
}

// Clone returns a deep copy of the event.
func (e Event) Clone() Event {
	clone := e
	clone.Client = append([]string(nil), e.Client...)
	clone.Professional = append([]string(nil), e.Professional...)
	return clone
}

// ClassTemplate is one weekly recurring class slot. Day takes precedence over
// Datetime; both 0 and 7 denote Sunday.
type ClassTemplate struct {
	ID           string `json:"id"`
	Company      string `json:"company,omitempty"`
	Day          *int   `json:"day,omitempty"`
	Datetime     string `json:"datetime,omitempty"`
	Time         string `json:"time,omitempty"`
	Duration     int    `json:"duration,omitempty"`
	Client       IDList `json:"client"`
	Professional IDList `json:"professional"`
	Notes        string `json:"notes,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler. Day may arrive as a number or a
// numeric string; anything else leaves Day nil so the weekday falls back to
// Datetime.
func (t *ClassTemplate) UnmarshalJSON(data []byte) error {
	type plain ClassTemplate
	aux := struct {
		*plain
		Day json.RawMessage `json:"day,omitempty"`
	}{plain: (*plain)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t.Day = templateDay(aux.Day)
	return nil
}

func templateDay(raw json.RawMessage) *int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil
		}
		text = strings.TrimSpace(text)
	}

	n, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsInf(n, 0) || n != math.Trunc(n) {
		return nil
	}
	day := int(n)
	return &day
}

// Company carries the business hours used to bound bookable slots.
type Company struct {
	ID                         string `json:"id"`
	Name                       string `json:"name,omitempty"`
	OpenTime                   string `json:"open_time"`
	CloseTime                  string `json:"close_time"`
	DefaultAppointmentDuration int    `json:"default_appointment_duration"`
}

// Profile is a client or professional attached to a company. ClassCredits is
// nil when the column was never set.
type Profile struct {
	ID           string `json:"id"`
	User         string `json:"user"`
	Company      string `json:"company,omitempty"`
	Role         Role   `json:"role"`
	Name         string `json:"name,omitempty"`
	ClassCredits *int   `json:"class_credits"`
}

// Credits returns the credit balance with null treated as zero.
func (p Profile) Credits() int {
	if p.ClassCredits == nil {
		return 0
	}
	return *p.ClassCredits
}

// IDList is a list of profile ids that also accepts a bare scalar id or null
// when decoded, since templates may store either form.
type IDList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *IDList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}

	switch data[0] {
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		out := make([]string, 0, len(raw))
		for _, item := range raw {
			id, err := scalarID(item)
			if err != nil {
				return err
			}
			if id != "" {
				out = append(out, id)
			}
		}
		*l = out
		return nil
	default:
		id, err := scalarID(data)
		if err != nil {
			return err
		}
		if id == "" {
			*l = nil
			return nil
		}
		*l = IDList{id}
		return nil
	}
}

// Strings returns the ids as a fresh slice, never nil.
func (l IDList) Strings() []string {
	out := make([]string, 0, len(l))
	return append(out, l...)
}

func scalarID(data []byte) (string, error) {
	if bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("persistence: unsupported id value %s", string(data))
}
