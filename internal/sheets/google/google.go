package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"deptfunds/internal/core"
	ports "deptfunds/internal/sheets"
)

const (
	defaultSheetName = "Ledger"
	rowCacheTTL      = 5 * time.Minute
)

// Config selects the spreadsheet and the service account used to write it.
type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	now           func() time.Time

	// nextRow caches the first empty row so consecutive appends skip the
	// column scan. It is dropped after rowCacheTTL or any write error.
	mu         sync.Mutex
	nextRow    int
	cachedAt   time.Time
	headerDone bool
}

// Ensure interface conformance
var _ ports.LedgerWriter = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName), nil
}

// NewWithService wraps an already configured Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	if strings.TrimSpace(sheetName) == "" {
		sheetName = defaultSheetName
	}
	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(spreadsheetID),
		sheetName:     strings.TrimSpace(sheetName),
		now:           time.Now,
	}
}

// serviceAccountJSON resolves the credentials, falling back to
// GOOGLE_APPLICATION_CREDENTIALS when neither inline JSON nor a file is set.
func serviceAccountJSON(cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.ServiceAccountJSON)
	file := strings.TrimSpace(cfg.ServiceAccountFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	}
	return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
}

// newSheetsService builds the Sheets service on a pooled HTTP client carrying
// the service account's token source.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	credentialsJSON, err := serviceAccountJSON(cfg)
	if err != nil {
		return nil, err
	}
	creds, err := goauth.CredentialsFromJSON(ctx, credentialsJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}

	base := context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	httpClient := oauth2.NewClient(base, creds.TokenSource)

	slog.InfoContext(ctx, "Creating Google Sheets service",
		"project_id", creds.ProjectID,
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx, goption.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// newHTTPClientWithPooling creates an HTTP client tuned for the Sheets API:
// connection pooling, keep-alives and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// AppendLedgerRow writes the entry to the next empty row, adding the header
// first when the sheet is empty.
func (c *Client) AppendLedgerRow(ctx context.Context, event string, row core.LedgerRow) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := c.nextEmptyRow(ctx)
	if err != nil {
		return "", err
	}
	if next == 1 && !c.headerDone {
		header := make([]any, len(ports.Header))
		for i, h := range ports.Header {
			header[i] = h
		}
		if _, err := c.write(ctx, 1, header); err != nil {
			c.invalidate()
			return "", err
		}
		next = 2
	}
	c.headerDone = true

	ref, err := c.write(ctx, next, ports.Row(event, row, c.now().UTC().Format(time.RFC3339)))
	if err != nil {
		c.invalidate()
		return "", err
	}
	c.nextRow = next + 1
	c.cachedAt = c.now()
	return ref, nil
}

func (c *Client) write(ctx context.Context, rowNum int, values []any) (string, error) {
	rng := fmt.Sprintf("%s!A%d:%s%d", c.sheetName, rowNum, lastColumn(), rowNum)
	vr := &gsheet.ValueRange{Values: [][]any{values}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update %s: %w", rng, err)
	}
	return rng, nil
}

// nextEmptyRow returns the cached row while fresh, otherwise counts column A.
func (c *Client) nextEmptyRow(ctx context.Context) (int, error) {
	if c.nextRow > 0 && c.now().Sub(c.cachedAt) < rowCacheTTL {
		return c.nextRow, nil
	}
	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to get sheet dimensions for %s: %w", c.sheetName, err)
	}
	c.headerDone = len(resp.Values) > 0
	c.nextRow = len(resp.Values) + 1
	c.cachedAt = c.now()
	return c.nextRow, nil
}

func (c *Client) invalidate() {
	c.nextRow = 0
	c.cachedAt = time.Time{}
}

// lastColumn is the letter of the final Header column.
func lastColumn() string {
	return string(rune('A' + len(ports.Header) - 1))
}
