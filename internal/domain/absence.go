package domain

import (
	"fmt"
	"strings"
	"time"
)

// AlertConsecutiveAbsences is the alert type emitted when a member has
// missed their expected services in a row.
const AlertConsecutiveAbsences = "faltas_consecutivas"

// absenceAlertThreshold is the number of consecutive missed expected
// services that triggers an alert.
const absenceAlertThreshold = 2

// absenceWindowDays bounds how far back expected services are examined,
// matching the 60-day horizon of the attendance read views.
const absenceWindowDays = 60

// AbsenceAlert flags a member who has missed consecutive services they
// declared they would attend.
type AbsenceAlert struct {
	MemberID          MemberID `json:"miembro_id"`
	Name              string   `json:"nombre"`
	Rut               Rut      `json:"rut"`
	DeclaredFrequency string   `json:"frecuencia_declarada"`
	ConsecutiveMisses int      `json:"faltas_consecutivas"`
	AlertType         string   `json:"tipo_alerta"`
	Detail            string   `json:"detalle"`
	LastDates         []string `json:"ultimas_fechas"`
}

// ExpectedServiceDays maps a declared frequency onto the weekdays the member
// is expected to attend. "ocasional" and unrecognized values expect nothing.
func ExpectedServiceDays(frequency string) []time.Weekday {
	lower := strings.ToLower(strings.TrimSpace(frequency))
	if lower == "" || lower == "ocasional" {
		return nil
	}
	if lower == "todos" {
		return []time.Weekday{time.Sunday, time.Wednesday, time.Friday}
	}

	var out []time.Weekday
	for _, part := range strings.Split(lower, "/") {
		switch strings.TrimSpace(part) {
		case "domingo":
			out = append(out, time.Sunday)
		case "miércoles", "miercoles":
			out = append(out, time.Wednesday)
		case "viernes":
			out = append(out, time.Friday)
		}
	}
	return out
}

// ComputeAbsenceAlerts recomputes the consecutive-absence view. attended maps
// rut -> attended service dates (YYYY-MM-DD). Only services strictly before
// today count: today's service may simply not have been registered yet.
// Misses are counted from the most recent expected service backwards until an
// attended one is found, within the 60-day window.
func ComputeAbsenceAlerts(members []Member, attended map[Rut]map[string]bool, now time.Time, loc *time.Location) []AbsenceAlert {
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	var alerts []AbsenceAlert
	for _, m := range members {
		if !m.IsActive {
			continue
		}
		expected := ExpectedServiceDays(m.DeclaredFrequency)
		if len(expected) == 0 {
			continue
		}

		misses := 0
		var missedDates []string
		for back := 1; back <= absenceWindowDays; back++ {
			d := today.AddDate(0, 0, -back)
			if !weekdayIn(d.Weekday(), expected) {
				continue
			}
			key := d.Format("2006-01-02")
			if attended[m.Rut][key] {
				break
			}
			misses++
			missedDates = append(missedDates, key)
		}

		if misses < absenceAlertThreshold {
			continue
		}
		if len(missedDates) > 5 {
			missedDates = missedDates[:5]
		}
		alerts = append(alerts, AbsenceAlert{
			MemberID:          m.ID,
			Name:              m.Name,
			Rut:               m.Rut,
			DeclaredFrequency: m.DeclaredFrequency,
			ConsecutiveMisses: misses,
			AlertType:         AlertConsecutiveAbsences,
			Detail:            fmt.Sprintf("No asiste desde hace %d cultos seguidos (último esperado: %s)", misses, missedDates[0]),
			LastDates:         missedDates,
		})
	}
	return alerts
}

func weekdayIn(w time.Weekday, set []time.Weekday) bool {
	for _, s := range set {
		if s == w {
			return true
		}
	}
	return false
}
