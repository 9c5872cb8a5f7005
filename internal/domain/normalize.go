package domain

import "strings"

// NormalizeHumanName trims leading/trailing whitespace and collapses internal
// whitespace runs. It is used for member name normalization.
func NormalizeHumanName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Flag is the tri-state classification of the sheet's free-text si/no fields.
type Flag int

const (
	FlagUnknown Flag = iota
	FlagYes
	FlagNo
)

// ParseFlag classifies a free-text si/no cell. The upstream form answers are
// inconsistent ("Si", "si tiene", "SÍ por whatsapp"), so this is a substring
// match, with "si" taking precedence over "no".
func ParseFlag(s string) Flag {
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "si"):
		return FlagYes
	case strings.Contains(lower, "no"):
		return FlagNo
	default:
		return FlagUnknown
	}
}

// DeclaredFrequencies is the fixed vocabulary for a member's self-reported
// attendance pattern.
var DeclaredFrequencies = []string{
	"domingo",
	"miércoles",
	"viernes",
	"domingo/miércoles",
	"domingo/viernes",
	"miércoles/viernes",
	"domingo/miércoles/viernes",
	"todos",
	"ocasional",
}

// IsValidDeclaredFrequency reports whether v belongs to DeclaredFrequencies.
func IsValidDeclaredFrequency(v string) bool {
	for _, f := range DeclaredFrequencies {
		if f == v {
			return true
		}
	}
	return false
}

// ValidMinistries are the canonical ministry names recognized in the sheet's
// "participa en grupos" column.
var ValidMinistries = []string{"Jóvenes", "Dorcas", "Varones", "Escuela Dominical"}

// NormalizeMinistries maps the comma-separated free text of the group
// participation column onto canonical ministry names. Stray answers such as
// "si" or "no" are dropped.
func NormalizeMinistries(groupParticipation string) []string {
	if strings.TrimSpace(groupParticipation) == "" {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	for _, part := range strings.Split(groupParticipation, ",") {
		lower := strings.ToLower(strings.TrimSpace(part))
		switch {
		case strings.Contains(lower, "joven") || strings.Contains(lower, "jóven"):
			add("Jóvenes")
		case strings.Contains(lower, "dorcas"):
			add("Dorcas")
		case strings.Contains(lower, "varon") || strings.Contains(lower, "varón"):
			add("Varones")
		case strings.Contains(lower, "escuela") && strings.Contains(lower, "dominical"):
			add("Escuela Dominical")
		}
	}
	return out
}
