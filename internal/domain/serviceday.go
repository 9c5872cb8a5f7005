package domain

import "time"

// ServiceDay is the weekday label of a service occurrence, in the
// congregation's locale.
type ServiceDay string

const (
	ServiceSunday    ServiceDay = "domingo"
	ServiceWednesday ServiceDay = "miércoles"
	ServiceFriday    ServiceDay = "viernes"
)

// ServiceInfo is a resolved service occurrence: the date attendance rows
// should be stamped with, its weekday label, and the registration timestamp.
type ServiceInfo struct {
	// Date is pinned to noon local time on the service date so that
	// date-only serialization never drifts across a day boundary.
	Date         time.Time
	Day          ServiceDay
	RegisteredAt time.Time
}

// DateString returns the service date as YYYY-MM-DD.
func (s ServiceInfo) DateString() string {
	return s.Date.Format("2006-01-02")
}

// ResolveService maps "now" onto the current service occurrence. Services are
// held Sunday, Wednesday and Friday; on any other weekday the most recent
// past service wins, so late data entry still targets that service's date.
// The result never lies in the future.
func ResolveService(now time.Time, loc *time.Location) ServiceInfo {
	local := now.In(loc)

	var (
		offset int
		day    ServiceDay
	)
	switch local.Weekday() {
	case time.Sunday:
		offset, day = 0, ServiceSunday
	case time.Monday:
		offset, day = -1, ServiceSunday
	case time.Tuesday:
		offset, day = -2, ServiceSunday
	case time.Wednesday:
		offset, day = 0, ServiceWednesday
	case time.Thursday:
		offset, day = -1, ServiceWednesday
	case time.Friday:
		offset, day = 0, ServiceFriday
	case time.Saturday:
		offset, day = -1, ServiceFriday
	default:
		// Unreachable under calendar semantics; keep the zero-offset Sunday
		// fallback rather than panicking inside date math.
		offset, day = 0, ServiceSunday
	}

	target := time.Date(local.Year(), local.Month(), local.Day()+offset, 12, 0, 0, 0, loc)

	return ServiceInfo{
		Date:         target,
		Day:          day,
		RegisteredAt: local,
	}
}
