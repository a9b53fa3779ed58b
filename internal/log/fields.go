package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldRoute         = "route"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldUserAgent     = "user_agent"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldUserID        = "user_id"
	FieldRole          = "role"
	FieldDepartmentID  = "department_id"
	FieldTransactionID = "transaction_id"
	FieldBillNo        = "bill_no"
	FieldAmountPaise   = "amount_paise"
	FieldSemester      = "semester"
	FieldYear          = "year"
	FieldStatus        = "status"
	FieldBlobRef       = "blob_ref"
	FieldEventKind     = "event_kind"
	FieldSheetsRef     = "sheets_ref"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentAuth       = "auth"
	ComponentAllocation = "allocation"
	ComponentSubmission = "submission"
	ComponentVerify     = "verification"
	ComponentReport     = "report"
	ComponentDepartment = "department"
	ComponentStorage    = "storage"
	ComponentBlobs      = "blobstore"
	ComponentAMQP       = "amqp"
	ComponentWorker     = "worker"
	ComponentSheets     = "sheets"
	ComponentReconcile  = "reconcile"
	ComponentSecurity   = "security"
	ComponentRateLimit  = "rate_limit"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpAllocate = "allocate"
	OpSubmit   = "submit"
	OpVerify   = "verify"
	OpReport   = "report"
	OpExport   = "export"
	OpDownload = "download"
	OpLogin    = "login"
	OpSync     = "sync"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds error field; nil errors are skipped.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithActor adds the authenticated user's identity.
func (f LogFields) WithActor(userID, role, departmentID string) LogFields {
	f[FieldUserID] = userID
	f[FieldRole] = role
	if departmentID != "" {
		f[FieldDepartmentID] = departmentID
	}
	return f
}

// WithBill adds bill-related fields
func (f LogFields) WithBill(departmentID, transactionID, billNo string, amountPaise int64) LogFields {
	f[FieldDepartmentID] = departmentID
	f[FieldTransactionID] = transactionID
	f[FieldBillNo] = billNo
	f[FieldAmountPaise] = amountPaise
	return f
}

func (f LogFields) WithHTTPRequest(method, path, route, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldRoute] = route
	f[FieldQuery] = query
	if userAgent != "" {
		f[FieldUserAgent] = userAgent
	}
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
