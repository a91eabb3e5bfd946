package log

// Field names shared across components so log queries line up.
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"

	FieldCloud     = "cloud"
	FieldFrom      = "from"
	FieldTo        = "to"
	FieldCurrency  = "currency"
	FieldDimension = "dimension"
	FieldLimit     = "limit"
	FieldJobID     = "job_id"
	FieldProvider  = "provider"
	FieldReceived  = "rows_received"
	FieldWritten   = "rows_written"
	FieldRate      = "rate"
	FieldRateDate  = "rate_date"
	FieldSource    = "source"
	FieldQueue     = "queue"
	FieldExchange  = "exchange"
)

// Standard component names.
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentStorage   = "storage"
	ComponentAnalytics = "analytics"
	ComponentRates     = "rates"
	ComponentIngest    = "ingest"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentCache     = "cache"
	ComponentRateLimit = "rate_limit"
)
