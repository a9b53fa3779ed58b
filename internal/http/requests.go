package http

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"deptfunds/internal/core"
)

type (
	createDepartmentRequest struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		HODName     string `json:"hodName"`
		Email       string `json:"email"`
		Password    string `json:"password"`
	}

	updateDepartmentRequest struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}

	emailRequest struct {
		Email string `json:"email"`
	}

	passwordRequest struct {
		Password string `json:"password"`
	}

	coordinatorRequest struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	allocateRequest struct {
		Amount    core.Money    `json:"amount"`
		Semester  core.Semester `json:"semester"`
		Year      looseString   `json:"year"`
		StartDate core.Date     `json:"startDate"`
		EndDate   core.Date     `json:"endDate"`
	}

	verifyRequest struct {
		Status string `json:"status"`
	}
)

// looseString accepts a JSON string or number; forms send the year either way.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		*s = looseString(strings.TrimSpace(v))
	case float64:
		*s = looseString(strconv.FormatFloat(v, 'f', -1, 64))
	case nil:
		*s = ""
	default:
		return fmt.Errorf("expected string or number, got %T", raw)
	}
	return nil
}

// parseFilter reads semester, year, date and month. withDepartment also reads
// the admin-only department parameter.
func parseFilter(c *gin.Context, withDepartment bool) (core.ReportFilter, error) {
	f, err := core.ParseReportFilter(c.Query("semester"), c.Query("year"), c.Query("date"), c.Query("month"))
	if err != nil {
		return f, err
	}
	if withDepartment {
		f.DepartmentID = strings.TrimSpace(c.Query("department"))
	}
	return f, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// attachment sets a download disposition with a filesystem-safe name.
func attachment(c *gin.Context, name string) {
	name = strings.Trim(unsafeFilenameChars.ReplaceAllString(name, "_"), "_")
	if name == "" {
		name = "download"
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
}
