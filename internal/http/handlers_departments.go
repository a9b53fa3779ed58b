package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"deptfunds/internal/core"
	"deptfunds/internal/export"
	"deptfunds/internal/services"
)

const (
	mimePDF  = "application/pdf"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func (s *Server) handleCreateDepartment(c *gin.Context) {
	var req createDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	ctx := c.Request.Context()
	d, err := s.svc.Departments.Create(ctx, services.NewDepartment{
		Name:        req.Name,
		Description: req.Description,
		HODName:     req.HODName,
		HODEmail:    req.Email,
		HODPassword: req.Password,
	})
	if err != nil {
		s.fail(c, err, "Failed to create department")
		return
	}
	hod, err := s.users.GetUser(ctx, d.HODUserID)
	if err != nil {
		s.fail(c, err, "Failed to create department")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"department": d, "user": hod})
}

func (s *Server) handleListDepartments(c *gin.Context) {
	depts, err := s.svc.Departments.List(c.Request.Context())
	if err != nil {
		s.fail(c, err, "Failed to fetch departments")
		return
	}
	c.JSON(http.StatusOK, depts)
}

func (s *Server) handleUpdateDepartment(c *gin.Context) {
	var req updateDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	d, err := s.svc.Departments.Update(c.Request.Context(), c.Param("id"), req.Name, req.Description)
	if err != nil {
		s.fail(c, err, "Failed to update department")
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) handleDeleteDepartment(c *gin.Context) {
	if err := s.svc.Departments.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err, "Failed to delete department")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleUpdateHODEmail(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if err := s.svc.Departments.UpdateHODEmail(c.Request.Context(), c.Param("id"), req.Email); err != nil {
		s.fail(c, err, "Failed to update HOD email")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleResetHODPassword(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if err := s.svc.Departments.ResetHODPassword(c.Request.Context(), c.Param("id"), req.Password); err != nil {
		s.fail(c, err, "Failed to reset HOD password")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleAllocate(c *gin.Context) {
	var req allocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid allocation: "+err.Error())
		return
	}
	d, err := s.svc.Allocations.Allocate(c.Request.Context(), services.AllocationRequest{
		DepartmentID: c.Param("id"),
		Amount:       req.Amount,
		Semester:     req.Semester,
		Year:         string(req.Year),
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
	})
	if err != nil {
		s.fail(c, err, "Failed to allocate fund")
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) handleDepartmentReport(c *gin.Context) {
	f, err := parseFilter(c, false)
	if err != nil {
		s.fail(c, err, "Invalid filter")
		return
	}
	rep, err := s.svc.Reports.Department(c.Request.Context(), c.Param("id"), f)
	if err != nil {
		s.fail(c, err, "Report failed")
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) handleDepartmentReportPDF(c *gin.Context) {
	f, err := parseFilter(c, false)
	if err != nil {
		s.fail(c, err, "Invalid filter")
		return
	}
	rep, err := s.svc.Reports.Department(c.Request.Context(), c.Param("id"), f)
	if err != nil {
		s.fail(c, err, "Failed to generate PDF")
		return
	}
	s.sendPDF(c, rep.Department+"_report.pdf", departmentLedger(rep.Department+" Fund Report", rep, f))
}

func (s *Server) handleHODStatementPDF(c *gin.Context) {
	rep, f, ok := s.hodReport(c)
	if !ok {
		return
	}
	s.sendPDF(c, rep.Department+"_statement.pdf", departmentLedger(rep.Department+" Statement", rep, f))
}

func (s *Server) handleHODStatementExcel(c *gin.Context) {
	rep, _, ok := s.hodReport(c)
	if !ok {
		return
	}
	data, err := export.StatementWorkbook(rep.Transactions)
	if err != nil {
		s.fail(c, err, "Failed to generate Excel")
		return
	}
	attachment(c, rep.Department+"_statement.xlsx")
	c.Data(http.StatusOK, mimeXLSX, data)
}

// departmentLedgerSubtitle describes the rows of a department ledger: bills of
// every status are listed while utilized counts verified bills only.
const departmentLedgerSubtitle = "Allocations and bills of every status; utilized counts verified bills"

func departmentLedger(title string, rep core.DepartmentReport, f core.ReportFilter) export.Report {
	return export.Report{
		Title:    title,
		Subtitle: departmentLedgerSubtitle,
		Filters:  f,
		Summary:  rep.FundSummary,
		Rows:     rep.Transactions,
	}
}

func (s *Server) hodReport(c *gin.Context) (core.DepartmentReport, core.ReportFilter, bool) {
	f, err := parseFilter(c, false)
	if err != nil {
		s.fail(c, err, "Invalid filter")
		return core.DepartmentReport{}, f, false
	}
	rep, err := s.svc.Reports.HOD(c.Request.Context(), currentUser(c), f)
	if err != nil {
		s.fail(c, err, "Report failed")
		return core.DepartmentReport{}, f, false
	}
	return rep, f, true
}

func (s *Server) handleSaveCoordinator(c *gin.Context) {
	var req coordinatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	u, err := s.svc.Departments.SaveCoordinator(c.Request.Context(), currentUser(c), services.CoordinatorDetails{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		s.fail(c, err, "Failed to add/update Coordinator")
		return
	}
	c.JSON(http.StatusOK, gin.H{"coordinator": u})
}

func (s *Server) handleGetCoordinator(c *gin.Context) {
	u, err := s.svc.Departments.Coordinator(c.Request.Context(), currentUser(c))
	if err != nil {
		s.fail(c, err, "Failed to fetch coordinator")
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": u.Name, "email": u.Email})
}

func (s *Server) handleRemoveCoordinator(c *gin.Context) {
	if err := s.svc.Departments.RemoveCoordinator(c.Request.Context(), currentUser(c)); err != nil {
		s.fail(c, err, "Failed to delete coordinator")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) sendPDF(c *gin.Context, filename string, rep export.Report) {
	rep.GeneratedAt = s.now().In(s.opts.Location)
	data, err := export.LedgerPDF(rep)
	if err != nil {
		s.fail(c, err, "Failed to generate PDF")
		return
	}
	attachment(c, filename)
	c.Data(http.StatusOK, mimePDF, data)
}
