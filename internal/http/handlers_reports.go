package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"deptfunds/internal/core"
	"deptfunds/internal/export"
)

func (s *Server) handleAdminReport(c *gin.Context) {
	f, err := parseFilter(c, true)
	if err != nil {
		s.fail(c, err, "Invalid filter")
		return
	}
	rep, err := s.svc.Reports.Admin(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err, "Report failed")
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) handleAdminReportPDF(c *gin.Context) {
	f, err := parseFilter(c, true)
	if err != nil {
		s.fail(c, err, "Invalid filter")
		return
	}
	rep, err := s.svc.Reports.Admin(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err, "Export failed")
		return
	}
	sets := make([][]core.LedgerRow, 0, len(rep.Departments))
	for _, d := range rep.Departments {
		sets = append(sets, d.Transactions)
	}
	s.sendPDF(c, "transactions_report.pdf", export.Report{
		Title:    "Department Fund Report",
		Subtitle: "All departments",
		Filters:  f,
		Summary:  rep.Totals,
		Rows:     core.MergeLedger(sets...),
	})
}

func (s *Server) handleHODReport(c *gin.Context) {
	rep, _, ok := s.hodReport(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) handleHODReportPDF(c *gin.Context) {
	rep, f, ok := s.hodReport(c)
	if !ok {
		return
	}
	s.sendPDF(c, "hod_transactions_report.pdf", departmentLedger(rep.Department+" Fund Report", rep, f))
}

func (s *Server) handleCoordinatorReport(c *gin.Context) {
	f, err := parseFilter(c, false)
	if err != nil {
		s.fail(c, err, "Invalid filter")
		return
	}
	rep, err := s.svc.Reports.Coordinator(c.Request.Context(), currentUser(c), f)
	if err != nil {
		s.fail(c, err, "Report failed")
		return
	}
	c.JSON(http.StatusOK, rep)
}
