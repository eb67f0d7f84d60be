package app

import (
	"context"
	"time"

	"github.com/appetiteclub/apt"
	aptevents "github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/apt/middleware"
	"github.com/comandaclub/expedite/internal/events"
	"github.com/comandaclub/expedite/internal/kds"
	"github.com/comandaclub/expedite/internal/mongo"
	"github.com/comandaclub/expedite/pkg/event"
	"github.com/comandaclub/expedite/pkg/stream"
)

const (
	AppName    = "expedite"
	AppVersion = "0.1.0"
)

// App encapsulates the kitchen fulfillment service
type App struct {
	config     *apt.Config
	logger     apt.Logger
	micro      *apt.Micro
	ticketRepo *mongo.TicketRepo
}

// New creates a new kitchen fulfillment application
func New(config *apt.Config, logger apt.Logger) (*App, error) {
	return &App{
		config: config,
		logger: logger,
	}, nil
}

// Initialize sets up all dependencies and components
func (a *App) Initialize(ctx context.Context) error {
	a.ticketRepo = mongo.NewTicketRepo(a.config, a.logger)
	orderRepo := mongo.NewOrderRepo(a.ticketRepo.GetDatabase, a.logger)
	orderItemRepo := mongo.NewOrderItemRepo(a.ticketRepo.GetDatabase, a.logger)

	natsURL, _ := a.config.GetString("nats.url")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}

	// Fan-out always goes through core NATS so every display channel is
	// reachable. When the stream is enabled, JetStream additionally
	// retains the global channel (core publishes on a stream-bound
	// subject are captured), giving the cache a replay source.
	publisher, err := stream.NewNATSPublisher(natsURL)
	if err != nil {
		return err
	}

	orderSubscriber, err := stream.NewNATSSubscriber(natsURL)
	if err != nil {
		return err
	}

	var eventStream *stream.NATSStream
	streamEnabled, _ := a.config.GetString("nats.stream.enabled")
	if streamEnabled == "true" {
		streamCfg := stream.NATSStreamConfig{
			URL:          natsURL,
			StreamName:   "KDS_EVENTS",
			Topic:        event.ChannelAllKitchens,
			ConsumerName: "kds-dashboard",
			MaxAge:       24 * time.Hour,
		}
		eventStream, err = stream.NewNATSStream(streamCfg)
		if err != nil {
			return err
		}
		a.logger.Info("NATS stream initialized for persistent events")
	}

	var streamForCache aptevents.StreamConsumer
	if eventStream != nil {
		streamForCache = eventStream
	}
	ticketCache := kds.NewTicketStateCache(streamForCache, a.ticketRepo, a.logger)

	hub := kds.NewEventHub(a.logger)
	sink := events.NewPublisher(publisher, hub, a.logger)

	resolver := kds.NewResolver(kds.NewConfigDirectory(a.config))
	slaEngine := kds.NewSLAEngine(kds.NewConfigTargets(a.config))

	service := kds.NewTicketService(kds.ServiceDeps{
		Tickets:    a.ticketRepo,
		Orders:     orderRepo,
		OrderItems: orderItemRepo,
		Resolver:   resolver,
		Sink:       sink,
		Cache:      ticketCache,
	}, a.logger)

	confirmedSubscriber := events.NewOrderConfirmedSubscriber(orderSubscriber, service, a.logger)

	handler := kds.NewHandler(kds.HandlerDeps{
		Service: service,
		Repo:    a.ticketRepo,
		Cache:   ticketCache,
		SLA:     slaEngine,
		Hub:     hub,
	}, a.config, a.logger)

	stack := middleware.DefaultStack(middleware.StackOptions{
		Logger:      a.logger,
		DisableCORS: true,
	})
	stack = append(stack, middleware.InternalOnly())

	lifecycles := []interface{}{a.ticketRepo, confirmedSubscriber}

	// Seed and warm after the repository has connected.
	warmLifecycle := apt.LifecycleHooks{
		OnStart: func(ctx context.Context) error {
			if err := kds.ApplyDemoSeeds(ctx, a.config, a.ticketRepo.GetDatabase, a.logger); err != nil {
				a.logger.Errorf("Demo seeding failed (non-fatal): %v", err)
			}
			if err := ticketCache.Warm(ctx); err != nil {
				a.logger.Info("failed to warm ticket cache", "error", err)
			}
			return nil
		},
	}
	lifecycles = append(lifecycles, warmLifecycle)

	if eventStream != nil {
		lifecycles = append(lifecycles, apt.LifecycleHooks{
			OnStop: func(context.Context) error { return eventStream.Close() },
		})
	}
	lifecycles = append(lifecycles, apt.LifecycleHooks{
		OnStop: func(context.Context) error { return orderSubscriber.Close() },
	})
	lifecycles = append(lifecycles, apt.LifecycleHooks{
		OnStop: func(context.Context) error { return publisher.Close() },
	})

	options := []apt.Option{
		apt.WithConfig(a.config),
		apt.WithLogger(a.logger),
		apt.WithHTTPMiddleware(stack...),
		apt.WithHTTPServerModules("web.port", handler),
		apt.WithLifecycle(lifecycles...),
		apt.WithHealthChecks(AppName),
	}

	a.micro = apt.NewMicro(options...)
	return nil
}

// Run starts the application
func (a *App) Run(ctx context.Context) error {
	a.logger.Infof("Starting %s(%s)", AppName, AppVersion)
	if err := a.micro.Run(ctx); err != nil {
		return err
	}
	a.logger.Infof("%s(%s) stopped", AppName, AppVersion)
	return nil
}
