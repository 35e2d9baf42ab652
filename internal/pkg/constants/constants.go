package constants

import "time"

// Application constants
const (
	// Service identification
	ServiceName    = "threadline"
	ServiceVersion = "v1.0.0"
	APIVersion     = "v1"
)

// Default timeouts
const (
	DefaultHTTPTimeout      = 10 * time.Second
	ShortHTTPTimeout        = 5 * time.Second
	LongHTTPTimeout         = 30 * time.Second
	DatabaseTimeout         = 10 * time.Second
	MessagingTimeout        = 5 * time.Second
	HealthCheckTimeout      = 5 * time.Second
	GracefulShutdownTimeout = 30 * time.Second
)

// Pagination defaults
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
	MinPageLimit     = 1
)

// Rate limiting
const (
	// RateLimiterIdleTTL is how long a client bucket must sit unused before it
	// may be dropped
	RateLimiterIdleTTL = 10 * time.Minute
)

// Database configuration
const (
	DatabaseMaxOpenConns    = 25
	DatabaseMaxIdleConns    = 25
	DatabaseConnMaxLifetime = 5 * time.Minute
	DatabaseMaxRetries      = 3

	MigrationsTableName = "schema_migrations"
)

// HTTP status messages
const (
	StatusOK         = "ok"
	StatusError      = "error"
	StatusAccepted   = "accepted"
	StatusDisabled   = "disabled"
	StatusProcessing = "processing"
)

// Error messages
const (
	ErrMsgConversationNotFound   = "conversation not found"
	ErrMsgNoActiveConversation   = "no active conversation"
	ErrMsgInvalidRequest         = "invalid request"
	ErrMsgRateLimited            = "rate limited"
	ErrMsgWebSocketUpgradeFailed = "websocket upgrade failed"
)

// Success messages
const (
	MsgConversationDeleted  = "conversation deleted"
	MsgConversationSelected = "conversation selected"
	MsgMessageSent          = "message sent"
)

// Log formats
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// HTTP headers
const (
	HeaderContentType = "Content-Type"
	HeaderRequestID   = "X-Request-ID"
)

// Content types
const (
	ContentTypeJSON = "application/json"
)

// WebSocket configuration
const (
	WebSocketWriteWait      = 10 * time.Second
	WebSocketPongWait       = 60 * time.Second
	WebSocketPingPeriod     = (WebSocketPongWait * 9) / 10
	WebSocketMaxMessageSize = 512
	WebSocketSendBuffer     = 256
)

// Mock responder behaviour
const (
	MockSubmitDelay       = 500 * time.Millisecond
	MockMinResultDelay    = 1 * time.Second
	MockMaxResultDelay    = 4 * time.Second
	ExecutionIDPrefix     = "exec_"
	ExecutionIDRandomSize = 9
)

// Workflow defaults
const (
	DefaultSubmitTimeout = 30 * time.Second
	DefaultAwaitTimeout  = 2 * time.Minute
	DefaultPollInterval  = 250 * time.Millisecond
)

// Environment variable names
const (
	EnvPort              = "THREADLINE_SERVER_PORT"
	EnvHost              = "THREADLINE_SERVER_HOST"
	EnvLogLevel          = "THREADLINE_LOGGING_LEVEL"
	EnvLogFormat         = "THREADLINE_LOGGING_FORMAT"
	EnvDBPath            = "THREADLINE_DATABASE_PATH"
	EnvNATSURL           = "THREADLINE_NATS_URL"
	EnvResponderProvider = "THREADLINE_RESPONDER_PROVIDER"
	EnvLLMBaseURL        = "THREADLINE_LLM_BASE_URL"
	EnvLLMAPIKey         = "THREADLINE_LLM_API_KEY"
	EnvLLMModel          = "THREADLINE_LLM_MODEL"
)

// Validation constraints
const (
	MaxMessageContentLength = 10000
)
