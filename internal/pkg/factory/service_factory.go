package factory

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	httpapi "github.com/username/threadline/internal/adapters/api/http"
	"github.com/username/threadline/internal/adapters/api/websocket"
	"github.com/username/threadline/internal/adapters/llm/openai"
	"github.com/username/threadline/internal/adapters/messaging/memory"
	"github.com/username/threadline/internal/adapters/messaging/nats"
	"github.com/username/threadline/internal/adapters/responder/async"
	"github.com/username/threadline/internal/adapters/responder/mock"
	"github.com/username/threadline/internal/adapters/storage/sqlite"
	"github.com/username/threadline/internal/domain/metrics"
	"github.com/username/threadline/internal/domain/ports"
	"github.com/username/threadline/internal/domain/services"
	"github.com/username/threadline/internal/pkg/constants"
	"github.com/username/threadline/internal/pkg/httputil"
	"github.com/username/threadline/internal/pkg/logutil"
	"github.com/username/threadline/pkg/config"
	"github.com/username/threadline/pkg/tokenizer"
)

// ServiceContainer holds all initialized services
type ServiceContainer struct {
	Config    *config.Config
	Logger    *logutil.Logger
	Store     *services.ConversationStore
	Metrics   *metrics.Collector
	Messaging ports.MessagingPort
	Ledger    ports.ExecutionStorePort
	Responder ports.ResponderPort
	Workflow  *services.SendWorkflow
	Publisher *services.EventPublisher
	Hub       *websocket.Hub
	Handlers  *httpapi.APIHandlers

	// set only for the openai provider
	asyncResponder *async.Responder
}

// ServiceFactory provides methods for creating and initializing services
type ServiceFactory struct {
	logger *logutil.Logger
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(logger *logutil.Logger) *ServiceFactory {
	if logger == nil {
		logger = logutil.NewDefaultLogger()
	}

	return &ServiceFactory{
		logger: logger,
	}
}

// NewLogger builds the application logger from configuration
func NewLogger(cfg config.LoggingConfig) *logutil.Logger {
	return logutil.NewLogger(logutil.LogConfig{
		Level:       logutil.ParseLevel(cfg.Level),
		Format:      cfg.Format,
		ServiceName: constants.ServiceName,
	})
}

// Initialize validates the configuration and wires every component. Nothing
// runs in the background until Start.
func (sf *ServiceFactory) Initialize(ctx context.Context, cfg *config.Config) (*ServiceContainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	sf.logger.Info("Starting service initialization", logutil.Fields{
		"responder": cfg.Responder.Provider,
		"nats":      cfg.NATS.URL != "",
	})

	container := &ServiceContainer{
		Config:  cfg,
		Logger:  sf.logger,
		Store:   services.NewConversationStore(sf.logger),
		Metrics: metrics.NewCollector(),
	}

	if err := sf.initializeMessaging(cfg, container); err != nil {
		return nil, err
	}

	if err := sf.initializeResponder(ctx, cfg, container); err != nil {
		container.closeAdapters()
		return nil, err
	}

	container.Workflow = services.NewSendWorkflow(
		container.Store,
		container.Responder,
		container.Metrics,
		sf.logger,
		&services.SendWorkflowConfig{
			SubmitTimeout: cfg.Responder.SubmitTimeout,
			AwaitTimeout:  cfg.Responder.AwaitTimeout,
		},
	)
	container.Publisher = services.NewEventPublisher(container.Store, container.Messaging, sf.logger)
	container.Hub = websocket.NewHub(container.Messaging, sf.logger)

	var limiter *httputil.RateLimiter
	if cfg.Server.SendRateLimit > 0 {
		limiter = httputil.NewRateLimiter(cfg.Server.SendRateLimit, cfg.Server.SendBurst)
	}
	container.Handlers = httpapi.NewAPIHandlers(httpapi.Dependencies{
		Store:     container.Store,
		Workflow:  container.Workflow,
		Messaging: container.Messaging,
		Ledger:    container.Ledger,
		Metrics:   container.Metrics,
		Hub:       container.Hub,
		Limiter:   limiter,
		Logger:    sf.logger,
	})

	sf.logger.Info("Service initialization completed successfully")
	return container, nil
}

// initializeMessaging connects to NATS when a URL is configured and falls
// back to the in-process bus otherwise
func (sf *ServiceFactory) initializeMessaging(cfg *config.Config, container *ServiceContainer) error {
	if cfg.NATS.URL == "" {
		container.Messaging = memory.NewAdapter(sf.logger)
		sf.logger.Info("Using in-process event bus")
		return nil
	}

	adapter, err := nats.NewAdapter(cfg.NATS.URL, sf.logger)
	if err != nil {
		return errors.Wrap(err, "failed to initialize messaging adapter")
	}
	container.Messaging = adapter
	return nil
}

func (sf *ServiceFactory) initializeResponder(ctx context.Context, cfg *config.Config, container *ServiceContainer) error {
	switch cfg.Responder.Provider {
	case config.ProviderOpenAI:
		return sf.initializeAsyncResponder(ctx, cfg, container)
	default:
		container.Responder = mock.NewResponder(mock.Config{
			SubmitDelay:    cfg.Responder.SubmitDelay,
			MinResultDelay: cfg.Responder.MinResultDelay,
			MaxResultDelay: cfg.Responder.MaxResultDelay,
			FailureRate:    cfg.Responder.FailureRate,
		}, sf.logger)
		return nil
	}
}

// initializeAsyncResponder opens and migrates the execution ledger and puts
// the OpenAI completer behind the ledger-backed responder
func (sf *ServiceFactory) initializeAsyncResponder(ctx context.Context, cfg *config.Config, container *ServiceContainer) error {
	ledger, err := sqlite.NewAdapter(cfg.Database.Path, sf.logger)
	if err != nil {
		return errors.Wrap(err, "failed to initialize execution ledger")
	}
	if err := ledger.Migrate(ctx); err != nil {
		ledger.Close()
		return errors.Wrap(err, "failed to migrate execution ledger")
	}
	container.Ledger = ledger

	var counter openai.TokenCounter
	if cfg.LLM.CountTokens {
		tok, err := tokenizer.NewTokenizer(cfg.LLM.Model)
		if err != nil {
			sf.logger.Warn("Token counting disabled", logutil.Fields{"error": err.Error()})
		} else {
			counter = tok
		}
	}

	completer := openai.NewAdapter(openai.Config{
		BaseURL:       cfg.LLM.BaseURL,
		APIKey:        cfg.LLM.APIKey,
		Model:         cfg.LLM.Model,
		ContextTokens: cfg.LLM.MaxTokens,
		Temperature:   cfg.LLM.Temperature,
		SystemPrompt:  cfg.LLM.SystemPrompt,
	}, counter, sf.logger)

	responderConfig := async.DefaultConfig()
	responderConfig.PollInterval = cfg.Responder.PollInterval
	responderConfig.CompletionTimeout = cfg.Responder.AwaitTimeout

	container.asyncResponder = async.NewResponder(ledger, completer, responderConfig, sf.logger)
	container.Responder = container.asyncResponder

	sf.logger.Info("Using ledger-backed OpenAI responder", logutil.Fields{
		"model":    cfg.LLM.Model,
		"database": cfg.Database.Path,
	})
	return nil
}

// Start launches the background parts: the store publisher, the WebSocket
// hub subscriptions and the async responder workers.
func (container *ServiceContainer) Start(ctx context.Context) error {
	if err := container.Hub.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start websocket hub")
	}
	container.Publisher.Start()

	if container.asyncResponder != nil {
		if err := container.asyncResponder.Start(ctx); err != nil {
			return errors.Wrap(err, "failed to start responder")
		}
	}

	container.Logger.Info("All services started successfully")
	return nil
}

// Shutdown drains in-flight sends and then releases every adapter
func (container *ServiceContainer) Shutdown(ctx context.Context) error {
	container.Logger.Info("Shutting down services")

	var errs []string
	if err := container.Workflow.Shutdown(ctx); err != nil {
		errs = append(errs, err.Error())
	}
	if container.asyncResponder != nil {
		if err := container.asyncResponder.Stop(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	container.Publisher.Stop()
	container.Hub.Close()
	container.closeAdapters()

	container.Logger.Info("Service shutdown completed")
	if len(errs) > 0 {
		return errors.Errorf("shutdown: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (container *ServiceContainer) closeAdapters() {
	if container.Ledger != nil {
		if err := container.Ledger.Close(); err != nil {
			container.Logger.Warn("Error closing ledger", logutil.Fields{"error": err.Error()})
		}
	}
	if container.Messaging != nil {
		if err := container.Messaging.Close(); err != nil {
			container.Logger.Warn("Error closing messaging", logutil.Fields{"error": err.Error()})
		}
	}
}
