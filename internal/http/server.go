// Package http exposes the fund management API over gin.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"deptfunds/internal/auth"
	"deptfunds/internal/core"
	applog "deptfunds/internal/log"
	"deptfunds/internal/middleware/ratelimit"
	"deptfunds/internal/middleware/security"
	"deptfunds/internal/middleware/trace"
	"deptfunds/internal/services"
)

const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 60 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 120 * time.Second
	readinessTimeout  = 2 * time.Second
)

// UserStore reloads the caller on every authenticated request so that deleted
// users and changed roles take effect before their token expires.
type UserStore interface {
	GetUser(ctx context.Context, id string) (core.User, error)
	Ping(ctx context.Context) error
}

// Services groups the use cases the handlers delegate to.
type Services struct {
	Departments  *services.DepartmentService
	Allocations  *services.AllocationService
	Submissions  *services.SubmissionService
	Verification *services.VerificationService
	Reports      *services.ReportService
}

// Options are the transport settings taken from configuration.
type Options struct {
	Port               string
	AllowedOrigins     []string
	RateLimitPerMinute int
	MaxUploadBytes     int64
	Location           *time.Location
}

type Server struct {
	http.Server
	engine  *gin.Engine
	tokens  *auth.Issuer
	users   UserStore
	svc     Services
	limiter *ratelimit.Limiter
	opts    Options
	now     func() time.Time
}

// NewServer wires middleware and every route.
func NewServer(opts Options, tokens *auth.Issuer, users UserStore, svc Services, logger *applog.Logger) *Server {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}

	engine := gin.New()
	engine.MaxMultipartMemory = opts.MaxUploadBytes

	s := &Server{
		Server: http.Server{
			Addr:              ":" + opts.Port,
			Handler:           engine,
			ReadHeaderTimeout: readHeaderTimeout,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
		},
		engine:  engine,
		tokens:  tokens,
		users:   users,
		svc:     svc,
		limiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		opts:    opts,
		now:     time.Now,
	}

	engine.Use(
		gin.CustomRecovery(s.recovered),
		trace.Middleware(),
		applog.Middleware(logger, trace.RequestID),
		security.Headers(security.DefaultHeadersConfig()),
		security.NewDetector().Middleware(),
		cors.New(corsConfig(opts.AllowedOrigins)),
	)
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Route not found"})
	})

	s.routes()
	return s
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", trace.HeaderRequestID}
	cfg.ExposeHeaders = []string{"Content-Disposition", trace.HeaderRequestID}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/healthz", s.handleHealth)
	r.GET("/readyz", s.handleReady)

	api := r.Group("/api", s.limiter.Middleware())

	api.POST("/auth/login", s.handleLogin)

	protected := api.Group("", s.authenticate())
	protected.GET("/auth/me", s.handleMe)

	admin := requireRole(core.RoleAdmin)
	hod := requireRole(core.RoleHOD)
	coordinator := requireRole(core.RoleCoordinator)

	depts := protected.Group("/departments")
	depts.POST("", admin, s.handleCreateDepartment)
	depts.GET("", admin, s.handleListDepartments)
	depts.PUT("/:id", admin, s.handleUpdateDepartment)
	depts.DELETE("/:id", admin, s.handleDeleteDepartment)
	depts.PUT("/:id/hod/email", admin, s.handleUpdateHODEmail)
	depts.PUT("/:id/hod/password", admin, s.handleResetHODPassword)
	depts.POST("/allocate/:id", admin, s.handleAllocate)
	depts.GET("/report/:id", admin, s.handleDepartmentReport)
	depts.GET("/report/:id/pdf", admin, s.handleDepartmentReportPDF)
	depts.GET("/hod/report/pdf", hod, s.handleHODStatementPDF)
	depts.GET("/hod/report/excel", hod, s.handleHODStatementExcel)
	depts.POST("/hod/coordinator", hod, s.handleSaveCoordinator)
	depts.GET("/hod/coordinator", hod, s.handleGetCoordinator)
	depts.DELETE("/hod/coordinator", hod, s.handleRemoveCoordinator)

	txs := protected.Group("/transactions")
	txs.POST("/upload", coordinator, s.handleUploadBill)
	txs.POST("/coordinator/upload", coordinator, s.handleUploadBill)
	txs.GET("", admin, s.handleListTransactions)
	txs.GET("/my", requireRole(core.RoleHOD, core.RoleCoordinator), s.handleMyTransactions)
	txs.GET("/export/excel", admin, s.handleExportTransactionsExcel)
	txs.PUT("/verify/:id", hod, s.handleVerify)
	txs.GET("/download/:id", s.handleDownload)

	reports := protected.Group("/reports")
	reports.GET("/admin", admin, s.handleAdminReport)
	reports.GET("/admin/export", admin, s.handleAdminReportPDF)
	reports.GET("/hod", hod, s.handleHODReport)
	reports.GET("/hod/export", hod, s.handleHODReportPDF)
	reports.GET("/coordinator", coordinator, s.handleCoordinatorReport)
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start serves until Shutdown. http.ErrServerClosed is not an error.
func (s *Server) Start() error {
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.Server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()
	if err := s.users.Ping(ctx); err != nil {
		applog.FromContext(c.Request.Context()).WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) recovered(c *gin.Context, v any) {
	applog.FromContext(c.Request.Context()).ErrorContext(c.Request.Context(), "Handler panicked", "panic", v)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
}
