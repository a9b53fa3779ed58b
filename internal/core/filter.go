package core

import (
	"fmt"
	"strings"
	"time"
)

// ReportFilter narrows reports and listings. Semester and Year match the values
// stamped on bills and allocations; Date and Month apply to the bill date only.
type ReportFilter struct {
	DepartmentID string
	Semester     Semester
	Year         string
	Date         Date
	Month        string // YYYY-MM
}

// ParseReportFilter validates raw query values. Empty values mean "no filter".
func ParseReportFilter(semester, year, date, month string) (ReportFilter, error) {
	var f ReportFilter
	if s := strings.TrimSpace(semester); s != "" {
		sem, err := ParseSemester(s)
		if err != nil {
			return f, InvalidInput("%v", err)
		}
		f.Semester = sem
	}
	f.Year = strings.TrimSpace(year)
	if d := strings.TrimSpace(date); d != "" {
		parsed, err := time.Parse(dateLayout, d)
		if err != nil {
			return f, InvalidInput("invalid date %q: want YYYY-MM-DD", d)
		}
		f.Date = Date{Time: parsed}
	}
	if m := strings.TrimSpace(month); m != "" {
		if _, err := time.Parse("2006-01", m); err != nil {
			return f, InvalidInput("invalid month %q: want YYYY-MM", m)
		}
		f.Month = m
	}
	return f, nil
}

// BillDateRange returns the half-open [from, to) bill date interval selected by
// Date or Month, evaluated in loc. Date takes precedence over Month.
func (f ReportFilter) BillDateRange(loc *time.Location) (from, to time.Time, ok bool) {
	if loc == nil {
		loc = time.UTC
	}
	switch {
	case !f.Date.IsZero():
		from = time.Date(f.Date.Year(), f.Date.Month(), f.Date.Day(), 0, 0, 0, 0, loc)
		return from, from.AddDate(0, 0, 1), true
	case f.Month != "":
		m, err := time.Parse("2006-01", f.Month)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		from = time.Date(m.Year(), m.Month(), 1, 0, 0, 0, 0, loc)
		return from, from.AddDate(0, 1, 0), true
	}
	return time.Time{}, time.Time{}, false
}

func (f ReportFilter) String() string {
	var parts []string
	if f.DepartmentID != "" {
		parts = append(parts, "department="+f.DepartmentID)
	}
	if f.Semester != "" {
		parts = append(parts, "semester="+string(f.Semester))
	}
	if f.Year != "" {
		parts = append(parts, "year="+f.Year)
	}
	if !f.Date.IsZero() {
		parts = append(parts, "date="+f.Date.String())
	} else if f.Month != "" {
		parts = append(parts, "month="+f.Month)
	}
	if len(parts) == 0 {
		return "all"
	}
	return strings.Join(parts, ", ")
}

// Label is a short human title for exported reports.
func (f ReportFilter) Label() string {
	if s := f.String(); s != "all" {
		return fmt.Sprintf("Filters: %s", s)
	}
	return "Filters: none"
}
