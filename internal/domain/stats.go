package domain

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Category literals used by the active/new member heuristics. These match
// the vocabulary of the upstream form fields; if the form answers change,
// these are the only place to touch.
const (
	activeAllDays       = "todos"
	activeFridaySunday  = "viernes y domingo"
	newTenureMonths     = "mes"
	newTenureTwoToFive  = "2-5"
	newTenureOneToThree = "1-3"
)

// notSpecified labels histogram buckets for members who left a field blank.
const notSpecified = "No especificado"

// GenderSplit counts members whose gender text matches masculino/femenino.
// Ambiguous or blank answers land in neither bucket.
type GenderSplit struct {
	Male   int `json:"masculino"`
	Female int `json:"femenino"`
}

// AgeBucket is one of the seven fixed age ranges.
type AgeBucket struct {
	Range string `json:"rango"`
	Count int    `json:"cantidad"`
}

// FrequencyCount is one attendance-days histogram bucket.
type FrequencyCount struct {
	Type  string `json:"tipo"`
	Count int    `json:"cantidad"`
}

// CommuneCount is one residence-commune histogram bucket.
type CommuneCount struct {
	Commune string `json:"comuna"`
	Count   int    `json:"cantidad"`
}

// TenureCount is one attendance-tenure histogram bucket.
type TenureCount struct {
	Tenure string `json:"tiempo"`
	Count  int    `json:"cantidad"`
}

// Birthday is a member whose birthday falls within the upcoming week.
type Birthday struct {
	Name      string `json:"nombre"`
	BirthDate string `json:"fechaNacimiento"`
	Age       int    `json:"edad"`
	Weekday   string `json:"dia"`

	occurrence time.Time
}

// UpcomingBirthday is the display variant of Birthday: ordered by occurrence
// and flagged when the occurrence is today (already celebrated or underway).
type UpcomingBirthday struct {
	Birthday
	IsPast bool `json:"isPast"`
}

// Metrics holds every dashboard aggregate, recomputed in full from a roster
// snapshot. Each histogram's bucket counts sum to the size of the subset it
// describes.
type Metrics struct {
	TotalMembers         int              `json:"totalMiembros"`
	GenderSplit          GenderSplit      `json:"distribucionGenero"`
	AgeDistribution      []AgeBucket      `json:"distribucionEdad"`
	GroupParticipants    int              `json:"participantesGrupos"`
	RegularAttendance    []FrequencyCount `json:"asistenciaRegular"`
	TechAccessRate       float64          `json:"tasaAccesoTecnologia"`
	CommuneDistribution  []CommuneCount   `json:"distribucionComuna"`
	AttendanceTenure     []TenureCount    `json:"tiempoAsistencia"`
	MembersWithTransport int              `json:"miembrosConTransporte"`
	ActiveMembers        int              `json:"miembrosActivos"`
	NewMembers           int              `json:"miembrosNuevos"`
	WeekBirthdays        []Birthday       `json:"cumpleanosSemana"`
}

var ageRanges = []struct {
	label    string
	min, max int
}{
	{"0-10", 0, 10},
	{"11-20", 11, 20},
	{"21-30", 21, 30},
	{"31-40", 31, 40},
	{"41-50", 41, 50},
	{"51-60", 51, 60},
	{"61+", 61, 999},
}

var spanishWeekdays = [...]string{
	"Domingo", "Lunes", "Martes", "Miércoles", "Jueves", "Viernes", "Sábado",
}

// ComputeMetrics derives every dashboard aggregate from the roster. It is a
// total function: the empty roster yields zero counts and a zero access rate
// rather than a division by zero. today anchors the birthday window.
func ComputeMetrics(members []RosterMember, today time.Time) Metrics {
	m := Metrics{
		TotalMembers:    len(members),
		AgeDistribution: make([]AgeBucket, 0, len(ageRanges)),
	}

	for _, r := range ageRanges {
		count := 0
		for _, member := range members {
			if member.Age >= r.min && member.Age <= r.max {
				count++
			}
		}
		m.AgeDistribution = append(m.AgeDistribution, AgeBucket{Range: r.label, Count: count})
	}

	frequency := newOrderedCounter()
	tenure := newOrderedCounter()
	commune := newOrderedCounter()

	withTech := 0
	for _, member := range members {
		gender := strings.ToLower(member.Gender)
		if strings.Contains(gender, "masculino") {
			m.GenderSplit.Male++
		}
		if strings.Contains(gender, "femenino") {
			m.GenderSplit.Female++
		}

		if strings.Contains(strings.ToLower(member.GroupParticipation), "si") {
			m.GroupParticipants++
		}
		if member.ComputerAccess == FlagYes {
			withTech++
		}
		if member.HasTransport == FlagYes {
			m.MembersWithTransport++
		}

		days := strings.ToLower(member.AttendanceDays)
		if strings.Contains(days, activeAllDays) || strings.Contains(days, activeFridaySunday) {
			m.ActiveMembers++
		}

		t := strings.ToLower(member.Tenure)
		if strings.Contains(t, newTenureMonths) ||
			strings.Contains(t, newTenureTwoToFive) ||
			strings.Contains(t, newTenureOneToThree) {
			m.NewMembers++
		}

		frequency.add(orDefault(member.AttendanceDays))
		tenure.add(orDefault(member.Tenure))
		commune.add(orDefault(member.Commune))
	}

	if m.TotalMembers > 0 {
		m.TechAccessRate = float64(withTech) / float64(m.TotalMembers) * 100
	}

	for _, e := range frequency.entries() {
		m.RegularAttendance = append(m.RegularAttendance, FrequencyCount{Type: e.key, Count: e.count})
	}
	for _, e := range tenure.entries() {
		m.AttendanceTenure = append(m.AttendanceTenure, TenureCount{Tenure: e.key, Count: e.count})
	}
	communes := commune.entries()
	sort.SliceStable(communes, func(i, j int) bool { return communes[i].count > communes[j].count })
	for _, e := range communes {
		m.CommuneDistribution = append(m.CommuneDistribution, CommuneCount{Commune: e.key, Count: e.count})
	}

	m.WeekBirthdays = WeekBirthdays(members, today)
	return m
}

// WeekBirthdays returns the members whose next birthday occurrence falls
// within [today, today+7 days] inclusive, at date granularity. Birth dates
// are DD/MM/YYYY; malformed entries are skipped. The result is unordered;
// see SortedWeekBirthdays for the display variant.
func WeekBirthdays(members []RosterMember, today time.Time) []Birthday {
	todayDate := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	windowEnd := todayDate.AddDate(0, 0, 7)

	out := make([]Birthday, 0)
	for _, member := range members {
		birth := strings.TrimSpace(member.BirthDate)
		if birth == "" {
			continue
		}
		parts := strings.Split(birth, "/")
		if len(parts) != 3 {
			continue
		}
		day, errD := strconv.Atoi(strings.TrimSpace(parts[0]))
		month, errM := strconv.Atoi(strings.TrimSpace(parts[1]))
		if errD != nil || errM != nil || month < 1 || month > 12 || day < 1 || day > 31 {
			continue
		}

		occurrence := time.Date(todayDate.Year(), time.Month(month), day, 0, 0, 0, 0, todayDate.Location())
		if occurrence.Before(todayDate) {
			occurrence = occurrence.AddDate(1, 0, 0)
		}
		if occurrence.After(windowEnd) {
			continue
		}

		out = append(out, Birthday{
			Name:       member.Name,
			BirthDate:  member.BirthDate,
			Age:        member.Age,
			Weekday:    spanishWeekdays[int(occurrence.Weekday())],
			occurrence: occurrence,
		})
	}
	return out
}

// SortedWeekBirthdays is the display variant of WeekBirthdays: ascending by
// occurrence date, with IsPast set for occurrences that are today (the
// celebration may already have happened earlier in the day).
func SortedWeekBirthdays(members []RosterMember, today time.Time) []UpcomingBirthday {
	todayDate := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())

	base := WeekBirthdays(members, today)
	sort.SliceStable(base, func(i, j int) bool { return base[i].occurrence.Before(base[j].occurrence) })

	out := make([]UpcomingBirthday, 0, len(base))
	for _, b := range base {
		out = append(out, UpcomingBirthday{
			Birthday: b,
			IsPast:   !b.occurrence.After(todayDate),
		})
	}
	return out
}

func orDefault(s string) string {
	if strings.TrimSpace(s) == "" {
		return notSpecified
	}
	return s
}

// orderedCounter counts occurrences preserving first-seen insertion order.
type orderedCounter struct {
	keys  []string
	index map[string]int
}

type counterEntry struct {
	key   string
	count int
}

func newOrderedCounter() *orderedCounter {
	return &orderedCounter{index: make(map[string]int)}
}

func (c *orderedCounter) add(key string) {
	if _, ok := c.index[key]; !ok {
		c.index[key] = 0
		c.keys = append(c.keys, key)
	}
	c.index[key]++
}

func (c *orderedCounter) entries() []counterEntry {
	out := make([]counterEntry, 0, len(c.keys))
	for _, k := range c.keys {
		out = append(out, counterEntry{key: k, count: c.index[k]})
	}
	return out
}
