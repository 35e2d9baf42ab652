package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/username/threadline/internal/adapters/api/websocket"
	"github.com/username/threadline/internal/domain/entities"
	"github.com/username/threadline/internal/domain/metrics"
	"github.com/username/threadline/internal/domain/ports"
	"github.com/username/threadline/internal/domain/services"
	"github.com/username/threadline/internal/pkg/constants"
	"github.com/username/threadline/internal/pkg/httputil"
	"github.com/username/threadline/internal/pkg/logutil"
)

// Dependencies groups what the API handlers need. Ledger, Hub and Limiter
// are optional.
type Dependencies struct {
	Store     *services.ConversationStore
	Workflow  *services.SendWorkflow
	Messaging ports.MessagingPort
	Ledger    ports.ExecutionStorePort
	Metrics   *metrics.Collector
	Hub       *websocket.Hub
	Limiter   *httputil.RateLimiter
	Logger    *logutil.Logger
}

// APIHandlers contains all HTTP API handlers
type APIHandlers struct {
	store     *services.ConversationStore
	workflow  *services.SendWorkflow
	messaging ports.MessagingPort
	ledger    ports.ExecutionStorePort
	collector *metrics.Collector
	wsHub     *websocket.Hub
	limiter   *httputil.RateLimiter
	logger    *logutil.Logger
	started   time.Time
}

// NewAPIHandlers creates a new API handlers instance
func NewAPIHandlers(deps Dependencies) *APIHandlers {
	logger := deps.Logger
	if logger == nil {
		logger = logutil.NewNopLogger()
	}
	return &APIHandlers{
		store:     deps.Store,
		workflow:  deps.Workflow,
		messaging: deps.Messaging,
		ledger:    deps.Ledger,
		collector: deps.Metrics,
		wsHub:     deps.Hub,
		limiter:   deps.Limiter,
		logger:    logger,
		started:   time.Now(),
	}
}

// SetupRoutes configures all API routes
func (h *APIHandlers) SetupRoutes(r *gin.Engine, config httputil.MiddlewareConfig) {
	r.Use(httputil.RequestIDMiddleware())
	r.Use(httputil.RequestLoggerMiddleware(h.logger))
	r.Use(httputil.CORSMiddleware(config))
	r.Use(httputil.TimeoutMiddleware(config.Timeouts))

	r.GET("/health", h.handleHealth)

	api := r.Group("/api/" + constants.APIVersion)
	{
		api.GET("/conversations", h.listConversations)
		api.POST("/conversations", h.createConversation)
		api.GET("/conversations/active", h.getActiveConversation)
		api.GET("/conversations/:id", h.getConversation)
		api.PUT("/conversations/:id/select", h.selectConversation)
		api.DELETE("/conversations/:id", h.deleteConversation)

		api.POST("/messages", httputil.RateLimitMiddleware(h.limiter), h.sendMessage)

		api.GET("/system/metrics", h.getSystemMetrics)
		api.GET("/system/connections", h.getSystemConnections)
	}

	if h.wsHub != nil {
		r.GET("/ws", h.wsHub.HandleWebSocket)
	}
}

// ConversationSummary is the list view of a conversation
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	PendingCount int       `json:"pending_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func summarize(c *entities.Conversation) ConversationSummary {
	return ConversationSummary{
		ID:           c.ID,
		Title:        c.Title,
		MessageCount: c.MessageCount(),
		PendingCount: c.PendingCount(),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// Health check endpoint
func (h *APIHandlers) handleHealth(c *gin.Context) {
	status := gin.H{
		"status":        constants.StatusOK,
		"timestamp":     time.Now().Unix(),
		"service":       constants.ServiceName,
		"version":       constants.ServiceVersion,
		"uptime_s":      int64(time.Since(h.started).Seconds()),
		"store":         constants.StatusOK,
		"conversations": h.store.Len(),
	}
	healthy := true

	if err := h.messaging.Ping(); err != nil {
		status["messaging"] = constants.StatusError
		status["messaging_error"] = err.Error()
		healthy = false
	} else {
		status["messaging"] = constants.StatusOK
	}

	if h.ledger == nil {
		status["ledger"] = constants.StatusDisabled
	} else {
		ctx, cancel := httputil.WithOperationContext(c, httputil.OperationLedger)
		defer cancel()
		if err := h.ledger.Ping(ctx); err != nil {
			status["ledger"] = constants.StatusError
			status["ledger_error"] = err.Error()
			healthy = false
		} else {
			status["ledger"] = constants.StatusOK
		}
	}

	if !healthy {
		status["status"] = constants.StatusError
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Conversation handlers

func (h *APIHandlers) listConversations(c *gin.Context) {
	page := httputil.ParsePaginationParams(c)
	snap := h.store.Snapshot()

	total := len(snap.Conversations)
	start := page.Offset
	if start > total {
		start = total
	}
	end := start + page.Limit
	if end > total {
		end = total
	}

	summaries := make([]ConversationSummary, 0, end-start)
	for _, conv := range snap.Conversations[start:end] {
		summaries = append(summaries, summarize(conv))
	}

	httputil.SuccessResponseWithMeta(c, gin.H{
		"conversations":          summaries,
		"active_conversation_id": snap.ActiveConversationID,
		"version":                snap.Version,
	}, gin.H{
		"total":  total,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

func (h *APIHandlers) createConversation(c *gin.Context) {
	id := h.store.CreateConversation()
	httputil.CreatedResponse(c, gin.H{"id": id})
}

func (h *APIHandlers) getActiveConversation(c *gin.Context) {
	conversation, ok := h.store.ActiveConversation()
	if !ok {
		httputil.NotFoundError(c, errors.New(constants.ErrMsgNoActiveConversation))
		return
	}
	httputil.SuccessResponse(c, conversation)
}

func (h *APIHandlers) getConversation(c *gin.Context) {
	id, err := httputil.RequiredParam(c, "id")
	if err != nil {
		httputil.BadRequestError(c, err)
		return
	}

	conversation, ok := h.store.Conversation(id)
	if !ok {
		httputil.NotFoundError(c, errors.New(constants.ErrMsgConversationNotFound))
		return
	}
	httputil.SuccessResponse(c, conversation)
}

func (h *APIHandlers) selectConversation(c *gin.Context) {
	id, err := httputil.RequiredParam(c, "id")
	if err != nil {
		httputil.BadRequestError(c, err)
		return
	}

	h.store.SelectConversation(id)
	httputil.SuccessResponse(c, gin.H{
		"message":                constants.MsgConversationSelected,
		"active_conversation_id": h.store.ActiveConversationID(),
	})
}

func (h *APIHandlers) deleteConversation(c *gin.Context) {
	id, err := httputil.RequiredParam(c, "id")
	if err != nil {
		httputil.BadRequestError(c, err)
		return
	}

	h.store.DeleteConversation(id)
	httputil.SuccessResponse(c, gin.H{"message": constants.MsgConversationDeleted})
}

// Message handlers

func (h *APIHandlers) sendMessage(c *gin.Context) {
	var req struct {
		ConversationID string `json:"conversation_id"`
		Content        string `json:"content"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, errors.Wrap(err, constants.ErrMsgInvalidRequest))
		return
	}

	submission, err := h.workflow.Send(c.Request.Context(), req.ConversationID, req.Content)
	if err != nil {
		h.sendError(c, err)
		return
	}

	httputil.AcceptedResponse(c, gin.H{
		"status":               constants.StatusProcessing,
		"conversation_id":      submission.ConversationID,
		"user_message_id":      submission.UserMessageID,
		"assistant_message_id": submission.AssistantMessageID,
	})
}

func (h *APIHandlers) sendError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrEmptyMessage), errors.Is(err, services.ErrMessageTooLong):
		httputil.BadRequestError(c, err)
	case errors.Is(err, services.ErrConversationNotFound):
		httputil.NotFoundError(c, err)
	case errors.Is(err, services.ErrWorkflowClosed):
		httputil.ServiceUnavailableError(c, err)
	default:
		h.logger.Error("Send failed", logutil.Fields{"error": err.Error()})
		httputil.InternalServerError(c, err)
	}
}

// System handlers

func (h *APIHandlers) getSystemMetrics(c *gin.Context) {
	if h.collector == nil {
		httputil.ServiceUnavailableError(c, errors.New("metrics are disabled"))
		return
	}

	snapshot := h.collector.Snapshot()
	if c.Query("recent") == "" {
		httputil.SuccessResponse(c, snapshot)
		return
	}

	filter := map[string]string{}
	if name := c.Query("name"); name != "" {
		filter["name"] = name
	}
	limit := httputil.ParseIntParamWithRange(c, "recent", constants.DefaultPageLimit, constants.MinPageLimit, constants.MaxPageLimit)
	httputil.SuccessResponse(c, gin.H{
		"system": snapshot,
		"recent": h.collector.GetMetrics(filter, limit),
	})
}

func (h *APIHandlers) getSystemConnections(c *gin.Context) {
	connections := gin.H{
		"websocket":     0,
		"conversations": h.store.Len(),
		"timestamp":     time.Now(),
	}
	if h.wsHub != nil {
		stats := h.wsHub.GetStats()
		connections["websocket"] = stats["total_connections"]
		connections["websocket_scoped"] = stats["scoped_connections"]
	}
	if reporter, ok := h.messaging.(interface {
		GetConnectionStatus() map[string]interface{}
	}); ok {
		connections["messaging"] = reporter.GetConnectionStatus()
	}

	httputil.SuccessResponse(c, connections)
}
