package http

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"deptfunds/internal/core"
	"deptfunds/internal/export"
	"deptfunds/internal/pdfmerge"
	"deptfunds/internal/services"
)

const billsField = "bills"

// handleUploadBill serves both the legacy and the coordinator upload route.
func (s *Server) handleUploadBill(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"message": "Upload exceeds the size limit"})
			return
		}
		badRequest(c, "Expected a multipart form")
		return
	}

	amount, err := core.ParseMoney(c.PostForm("amount"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	semester, err := core.ParseSemester(c.PostForm("semester"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	files, err := readFiles(form.File[billsField])
	if err != nil {
		badRequest(c, "Could not read uploaded files")
		return
	}

	tx, err := s.svc.Submissions.Submit(c.Request.Context(), currentUser(c), services.BillSubmission{
		Purpose:  c.PostForm("purpose"),
		Amount:   amount,
		Semester: semester,
		Files:    files,
	})
	if err != nil {
		s.fail(c, err, "Upload failed")
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func readFiles(headers []*multipart.FileHeader) ([]pdfmerge.File, error) {
	files := make([]pdfmerge.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, pdfmerge.File{Name: fh.Filename, Data: data})
	}
	return files, nil
}

func (s *Server) handleListTransactions(c *gin.Context) {
	f, err := parseFilter(c, true)
	if err != nil {
		s.fail(c, err, "Invalid filter")
		return
	}
	rows, err := s.svc.Reports.Transactions(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err, "Failed to fetch transactions")
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) handleMyTransactions(c *gin.Context) {
	f, err := parseFilter(c, false)
	if err != nil {
		s.fail(c, err, "Invalid filter")
		return
	}
	txs, err := s.svc.Reports.MyTransactions(c.Request.Context(), currentUser(c), f)
	if err != nil {
		s.fail(c, err, "Failed to fetch your transactions")
		return
	}
	c.JSON(http.StatusOK, txs)
}

func (s *Server) handleExportTransactionsExcel(c *gin.Context) {
	f, err := parseFilter(c, true)
	if err != nil {
		s.fail(c, err, "Invalid filter")
		return
	}
	rows, err := s.svc.Reports.Transactions(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err, "Failed to export transactions")
		return
	}
	data, err := export.AdminLedgerWorkbook(rows)
	if err != nil {
		s.fail(c, err, "Failed to export transactions")
		return
	}
	attachment(c, "transactions.xlsx")
	c.Data(http.StatusOK, mimeXLSX, data)
}

func (s *Server) handleVerify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	target, err := core.ParseDecision(req.Status)
	if err != nil {
		badRequest(c, "Invalid status")
		return
	}
	tx, err := s.svc.Verification.Verify(c.Request.Context(), currentUser(c), c.Param("id"), target)
	if err != nil {
		s.fail(c, err, "Verify failed")
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (s *Server) handleDownload(c *gin.Context) {
	rc, tx, err := s.svc.Submissions.OpenDocument(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		s.fail(c, err, "Download failed")
		return
	}
	defer rc.Close()
	attachment(c, tx.BillNo+"_merged.pdf")
	c.DataFromReader(http.StatusOK, -1, mimePDF, rc, nil)
}
