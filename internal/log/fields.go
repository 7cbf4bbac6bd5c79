package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldDurationHuman = "duration_human"
	FieldUserAgent     = "user_agent"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldYear          = "year"
	FieldMonth         = "month"
	FieldReceiptKey    = "receipt_key"
	FieldAmount        = "amount"
	FieldReceiptCount  = "receipt_count"
	FieldTotalAmount   = "total_amount"
	FieldFilename      = "filename"
	FieldBackend       = "backend"
)

// Components
const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentReconciler = "reconciler"
	ComponentReceipts   = "receipts"
	ComponentOCR        = "ocr"
	ComponentStorage    = "storage"
	ComponentAMQP       = "amqp"
	ComponentWorker     = "worker"
	ComponentSheets     = "sheets"
	ComponentRateLimit  = "rate_limit"
	ComponentTrace      = "trace"
	ComponentBackend    = "backend"
	ComponentCLI        = "cli"
)

// Operations
const (
	OpStore     = "store"
	OpList      = "list"
	OpDelete    = "delete"
	OpReconcile = "reconcile"
	OpReplace   = "replace"
	OpAdd       = "add"
	OpExtract   = "extract"
	OpPublish   = "publish"
	OpMirror    = "mirror"
	OpRender    = "render"
	OpStartup   = "startup"
	OpShutdown  = "shutdown"
)

// Fields is a small builder for structured log attributes.
type Fields map[string]any

func NewFields() Fields {
	return make(Fields)
}

func (f Fields) WithOperation(op string) Fields {
	f[FieldOperation] = op
	return f
}

func (f Fields) WithPeriod(year, month int) Fields {
	f[FieldYear] = year
	f[FieldMonth] = month
	return f
}

func (f Fields) WithError(err error) Fields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// Args flattens the fields into slog key/value arguments.
func (f Fields) Args() []any {
	args := make([]any, 0, len(f)*2)
	for k, v := range f {
		args = append(args, k, v)
	}
	return args
}
