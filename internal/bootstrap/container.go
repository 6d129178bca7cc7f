package bootstrap

import (
	"context"
	"strconv"
	"sync"

	"concierge/internal/adapters/ai"
	chclient "concierge/internal/adapters/clickhouse"
	"concierge/internal/adapters/config"
	"concierge/internal/adapters/kafka"
	pgclient "concierge/internal/adapters/postgres"
	redisclient "concierge/internal/adapters/redis"
	"concierge/internal/adapters/telegram"
	"concierge/internal/consumers"
	"concierge/internal/domain/audit"
	"concierge/internal/domain/conversation"
	"concierge/internal/domain/handoff"
	"concierge/internal/domain/memory"
	"concierge/internal/domain/message"
	"concierge/internal/domain/session"
	"concierge/internal/metrics"
	"concierge/internal/orchestrator"
	chrepo "concierge/internal/repository/clickhouse"
	pgrepo "concierge/internal/repository/postgres"
	redisrepo "concierge/internal/repository/redis"
	"concierge/internal/tools/commerce"
	"concierge/pkg/errors"
	"concierge/pkg/logger"
)

// Container holds all application dependencies and their lifecycle
// Components are organized in initialization order
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure Layer (Data stores)
	PG    *pgclient.Client
	CH    *chclient.Client
	Redis *redisclient.Client

	// Domain Layer - Repositories
	Repos *Repositories

	// Domain Layer - Services
	Services *Services

	// External Adapters
	Adapters *Adapters

	// Application Layer
	Application *Application

	// Lifecycle management
	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Repositories groups all domain repositories
type Repositories struct {
	States        conversation.StateRepository
	SessionMemory session.Repository
	Memory        memory.Repository
	Handoff       handoff.Repository
	Messages      message.Repository
	Audit         audit.Repository
	Catalog       commerce.CatalogService
	Orders        commerce.OrderService
	BusinessInfo  commerce.BusinessInfoService
}

// Services groups the domain services built on top of the repositories
type Services struct {
	Sessions *session.Manager
	Memory   *memory.Service
	Handoff  *handoff.Policy
}

// Adapters groups external-facing components
type Adapters struct {
	Provider      *ai.OpenAIProvider
	Summarizer    *ai.Summarizer
	Producer      *kafka.Producer
	InboundChat   *kafka.Consumer
	MetricsServer *metrics.Server
}

// Application groups the message-processing layer
type Application struct {
	Orchestrator *orchestrator.Orchestrator
	ChatConsumer *consumers.ChatConsumer
}

// noopNotifier is used when no operator Telegram chats are configured
type noopNotifier struct{}

func (noopNotifier) NotifyHandoff(context.Context, *handoff.Request) error { return nil }

// NewContainer wires the full application graph from configuration
func NewContainer(ctx context.Context, cfg *config.Config, tracker errors.Tracker) (*Container, error) {
	log := logger.Get().With("component", "bootstrap")

	appCtx, cancel := context.WithCancel(ctx)

	c := &Container{
		Config:       cfg,
		Log:          log,
		ErrorTracker: tracker,
		Lifecycle:    NewLifecycle(),
		WG:           &sync.WaitGroup{},
		Context:      appCtx,
		Cancel:       cancel,
	}

	if err := c.initInfrastructure(); err != nil {
		cancel()
		return nil, err
	}
	c.initRepositories()
	c.initServices()
	if err := c.initAdapters(); err != nil {
		cancel()
		return nil, err
	}
	c.initApplication()

	log.Info("Container initialized")
	return c, nil
}

func (c *Container) initInfrastructure() error {
	pg, err := pgclient.NewClient(c.Config.Postgres)
	if err != nil {
		return errors.Wrap(err, "connect postgres")
	}
	c.PG = pg

	ch, err := chclient.NewClient(c.Config.ClickHouse)
	if err != nil {
		return errors.Wrap(err, "connect clickhouse")
	}
	c.CH = ch

	rd, err := redisclient.NewClient(c.Config.Redis)
	if err != nil {
		return errors.Wrap(err, "connect redis")
	}
	c.Redis = rd

	return nil
}

func (c *Container) initRepositories() {
	db := c.PG.DB()

	c.Repos = &Repositories{
		States:        redisrepo.NewStateRepository(c.Redis.Client(), c.Config.Session.StateTTL),
		SessionMemory: redisrepo.NewSessionMemoryRepository(c.Redis.Client()),
		Memory:        pgrepo.NewMemoryRepository(db),
		Handoff:       pgrepo.NewHandoffRepository(db),
		Messages:      pgrepo.NewMessageRepository(db),
		Audit:         chrepo.NewAuditRepository(c.CH.Conn()),
		Catalog:       pgrepo.NewCatalogRepository(db),
		Orders:        pgrepo.NewOrderRepository(db),
		BusinessInfo:  pgrepo.NewBusinessInfoRepository(db),
	}
}

func (c *Container) initServices() {
	var notifier handoff.Notifier = noopNotifier{}
	if c.Config.Telegram.BotToken != "" && len(c.Config.Telegram.OperatorChatIDs) > 0 {
		tg, err := telegram.NewOperatorNotifier(c.Config.Telegram.BotToken, c.Config.Telegram.OperatorChatIDs)
		if err != nil {
			c.Log.Warnw("Telegram notifier unavailable, operator alerts disabled", "error", err)
		} else {
			notifier = tg
		}
	} else {
		c.Log.Info("No operator Telegram chats configured, handoff alerts disabled")
	}

	c.Services = &Services{
		Sessions: session.NewManager(c.Repos.SessionMemory, c.Config.Session.MemoryTTL),
		Handoff: handoff.NewPolicy(c.Repos.Handoff, notifier, handoff.PolicyConfig{
			MaxConsecutiveFailures: c.Config.Handoff.MaxConsecutiveFailures,
			RepeatWindow:           c.Config.Handoff.RepeatWindow,
		}),
	}
}

func (c *Container) initAdapters() error {
	provider, err := ai.NewOpenAIProvider(
		c.Config.AI.OpenAIKey,
		c.Config.AI.ChatModel,
		c.Config.AI.RequestTimeout,
		c.Config.AI.RequestsPerMin,
	)
	if err != nil {
		return errors.Wrap(err, "create reasoning provider")
	}

	summarizer, err := ai.NewSummarizer(c.Config.AI.OpenAIKey, c.Config.AI.SummaryModel, c.Config.AI.RequestTimeout)
	if err != nil {
		return errors.Wrap(err, "create memory summarizer")
	}

	c.Adapters = &Adapters{
		Provider:   provider,
		Summarizer: summarizer,
		Producer:   kafka.NewProducer(kafka.ProducerConfig{Brokers: c.Config.Kafka.Brokers}),
		InboundChat: kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers: c.Config.Kafka.Brokers,
			GroupID: c.Config.Kafka.GroupID,
			Topic:   c.Config.Kafka.InboundTopic,
		}),
	}

	if c.Config.Metrics.Enabled {
		c.Adapters.MetricsServer = metrics.NewServer(strconv.Itoa(c.Config.Metrics.Port))
	}

	// Memory extraction depends on the summarizer, so it is completed here
	c.Services.Memory = memory.NewService(c.Repos.Memory, c.Repos.Messages, c.Adapters.Summarizer, memory.Config{
		MinMessages:      c.Config.Memory.MinMessages,
		UpdateCadence:    c.Config.Memory.UpdateCadence,
		MaxFacts:         c.Config.Memory.MaxFacts,
		MaxPreferences:   c.Config.Memory.MaxPreferences,
		MaxEntities:      c.Config.Memory.MaxEntities,
		SummaryTTL:       c.Config.Memory.SummaryTTL,
		FactTTL:          c.Config.Memory.FactTTL,
		PreferenceTTL:    c.Config.Memory.PreferenceTTL,
		EntityTTL:        c.Config.Memory.EntityTTL,
		ExtractionWindow: c.Config.Memory.ExtractionWindow,
	})

	return nil
}

func (c *Container) initApplication() {
	registry, err := commerce.BuildRegistry(c.Repos.Catalog, c.Repos.Orders, c.Repos.BusinessInfo)
	if err != nil {
		// Duplicate registration is a programming error, not a runtime one
		c.Log.Fatalf("Failed to build tool registry: %v", err)
	}

	orch := orchestrator.New(
		c.Adapters.Provider,
		registry,
		c.Repos.States,
		c.Services.Sessions,
		c.Services.Memory,
		c.Repos.Messages,
		c.Repos.Audit,
		c.Services.Handoff,
		orchestrator.Config{
			MaxIterations:   c.Config.AI.MaxIterations,
			MaxTokens:       c.Config.AI.MaxTokens,
			ToolCallTimeout: c.Config.AI.ToolCallTimeout,
			ConfirmationTTL: c.Config.Session.ConfirmationTTL,
			HistoryWindow:   c.Config.Session.HistoryWindow,
		},
	)

	c.Application = &Application{
		Orchestrator: orch,
		ChatConsumer: consumers.NewChatConsumer(orch, c.Adapters.Producer, c.Config.Kafka.OutboundTopic),
	}
}

// Start launches the background components: the inbound chat consumer and
// the metrics endpoint
func (c *Container) Start() {
	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Adapters.InboundChat.Consume(c.Context, c.Application.ChatConsumer.HandleMessage); err != nil {
			if c.Context.Err() == nil {
				c.Log.Errorw("Inbound chat consumer stopped unexpectedly", "error", err)
			}
		}
	}()

	if c.Adapters.MetricsServer != nil {
		go c.Adapters.MetricsServer.Start()
	}

	c.Log.Info("Application started")
}

// Shutdown stops all components in dependency order
func (c *Container) Shutdown() {
	c.Cancel()
	c.Lifecycle.Shutdown(c)
}
