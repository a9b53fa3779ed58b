package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	RoleAdmin       Role = "admin"
	RoleHOD         Role = "hod"
	RoleCoordinator Role = "coordinator"
)

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
	// StatusAllocated only marks synthetic ledger rows, never a stored bill.
	StatusAllocated Status = "allocated"
)

const dateLayout = "2006-01-02"

type (
	Role   string
	Status string

	// Semester is the academic term an allocation or bill belongs to.
	// Only the numeric vocabulary "1".."8" is accepted.
	Semester string

	// Date is a calendar day, always held at UTC midnight.
	Date struct {
		time.Time
	}

	Allocation struct {
		ID        int64     `json:"id"`
		Amount    Money     `json:"amount"`
		Semester  Semester  `json:"semester"`
		Year      string    `json:"year"`
		StartDate Date      `json:"startDate"`
		EndDate   Date      `json:"endDate"`
		CreatedAt time.Time `json:"createdAt"`
	}

	Department struct {
		ID                string       `json:"id"`
		Name              string       `json:"name"`
		Description       string       `json:"description"`
		AllocatedFund     Money        `json:"allocatedFund"`
		UtilizedFund      Money        `json:"utilizedFund"`
		HODUserID         string       `json:"hodUser,omitempty"`
		CoordinatorUserID string       `json:"coordinatorUser,omitempty"`
		Allocations       []Allocation `json:"fundAllocations"`
		CreatedAt         time.Time    `json:"createdAt"`
	}

	Transaction struct {
		ID            string    `json:"id"`
		TransactionID string    `json:"transactionId"`
		DepartmentID  string    `json:"department"`
		Amount        Money     `json:"amount"`
		BillNo        string    `json:"billNo"`
		BillDate      time.Time `json:"billDate"`
		Purpose       string    `json:"purpose"`
		Semester      Semester  `json:"semester"`
		Year          string    `json:"year"`
		Documents     []string  `json:"documents"`
		Status        Status    `json:"status"`
		CreatedBy     string    `json:"createdBy"`
		CreatedAt     time.Time `json:"createdAt"`
	}

	User struct {
		ID           string    `json:"id"`
		Name         string    `json:"name"`
		Email        string    `json:"email"`
		PasswordHash string    `json:"-"`
		Role         Role      `json:"role"`
		DepartmentID string    `json:"department,omitempty"`
		CreatedAt    time.Time `json:"createdAt"`
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidSemester  = errors.New("semester must be one of 1..8")
	ErrEmptyYear        = errors.New("empty year")
	ErrInvalidWindow    = errors.New("start date must not be after end date")
	ErrEmptyPurpose     = errors.New("empty purpose")
	ErrInvalidDecision  = errors.New("status must be verified or rejected")
	ErrEmptyName        = errors.New("empty name")
	ErrInvalidEmail     = errors.New("invalid email")
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleHOD, RoleCoordinator:
		return true
	}
	return false
}

// ParseDecision accepts only the two outcomes an HOD may choose.
func ParseDecision(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusVerified, StatusRejected:
		return st, nil
	}
	return "", ErrInvalidDecision
}

// CanTransition reports whether a bill in status s may move to target.
// pending is the only non-terminal state.
func (s Status) CanTransition(target Status) bool {
	return s == StatusPending && (target == StatusVerified || target == StatusRejected)
}

// CountsAgainstBudget reports whether a bill in this status consumes allocation headroom.
func (s Status) CountsAgainstBudget() bool {
	return s == StatusPending || s == StatusVerified
}

func ParseSemester(s string) (Semester, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 8 || s != strconv.Itoa(n) {
		return "", ErrInvalidSemester
	}
	return Semester(s), nil
}

func (s Semester) Validate() error {
	_, err := ParseSemester(string(s))
	return err
}

// UnmarshalJSON accepts both "3" and 3; the allocation form sends a number.
func (s *Semester) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var str string
	switch v := raw.(type) {
	case string:
		str = v
	case float64:
		str = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ErrInvalidSemester
	}
	parsed, err := ParseSemester(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t as observed in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return NewDate(y, int(m), d)
}

// ParseDate accepts YYYY-MM-DD as well as full RFC 3339 timestamps (date inputs
// serialised by browsers); only the calendar day is kept.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return NewDate(t.Year(), int(t.Month()), t.Day()), nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Validate checks amount, semester, year and the window ordering.
func (a Allocation) Validate() error {
	if err := a.Amount.Validate(); err != nil {
		return err
	}
	if err := a.Semester.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(a.Year) == "" {
		return ErrEmptyYear
	}
	if a.StartDate.IsZero() || a.EndDate.IsZero() {
		return errors.New("start and end dates are required")
	}
	if a.StartDate.After(a.EndDate.Time) {
		return ErrInvalidWindow
	}
	return nil
}

// Contains reports whether day falls inside the inclusive [StartDate, EndDate] window.
func (a Allocation) Contains(day Date) bool {
	return !day.Before(a.StartDate.Time) && !day.After(a.EndDate.Time)
}

// Matches applies semester/year filters; empty filters match everything.
func (a Allocation) Matches(semester Semester, year string) bool {
	if semester != "" && a.Semester != semester {
		return false
	}
	if year != "" && a.Year != year {
		return false
	}
	return true
}

// CurrentAllocation finds the allocation for semester whose window contains today.
// An empty semester matches any. When windows overlap the most recently created
// allocation wins, ties broken by the higher id.
func (d Department) CurrentAllocation(semester Semester, today Date) (Allocation, bool) {
	var (
		best  Allocation
		found bool
	)
	for _, a := range d.Allocations {
		if semester != "" && a.Semester != semester {
			continue
		}
		if !a.Contains(today) {
			continue
		}
		if !found || a.CreatedAt.After(best.CreatedAt) || (a.CreatedAt.Equal(best.CreatedAt) && a.ID > best.ID) {
			best, found = a, true
		}
	}
	return best, found
}

// AllocatedFor sums allocations matching the semester/year filters.
func (d Department) AllocatedFor(semester Semester, year string) Money {
	var total Money
	for _, a := range d.Allocations {
		if a.Matches(semester, year) {
			total = total.Add(a.Amount)
		}
	}
	return total
}

// HasCoordinator reports whether userID is the department's current Coordinator.
func (d Department) HasCoordinator(userID string) bool {
	return d.CoordinatorUserID != "" && d.CoordinatorUserID == userID
}

func (u User) Validate() error {
	if strings.TrimSpace(u.Name) == "" {
		return ErrEmptyName
	}
	if !ValidEmail(u.Email) {
		return ErrInvalidEmail
	}
	if !u.Role.Valid() {
		return fmt.Errorf("invalid role %q", u.Role)
	}
	if u.Role != RoleAdmin && u.DepartmentID == "" {
		return errors.New("department is required for hod and coordinator users")
	}
	return nil
}

// ValidEmail is a shape check only; uniqueness is enforced by storage.
func ValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\r\n")
}

// ValidatePassword enforces the minimum length for new or reset passwords.
func ValidatePassword(p string) error {
	if len(p) < 6 {
		return ErrPasswordTooShort
	}
	return nil
}
