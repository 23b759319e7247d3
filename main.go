package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/middleware"
	"github.com/joho/godotenv"

	"github.com/comandaclub/comanda/internal/catalog"
	"github.com/comandaclub/comanda/internal/kiosk"
	"github.com/comandaclub/comanda/internal/kitchen"
	"github.com/comandaclub/comanda/internal/metrics"
	"github.com/comandaclub/comanda/internal/mongo"
	"github.com/comandaclub/comanda/internal/order"
	"github.com/comandaclub/comanda/internal/session"
	"github.com/comandaclub/comanda/internal/sweep"
	"github.com/comandaclub/comanda/internal/tenant"
	"github.com/comandaclub/comanda/pkg"
)

const (
	appNamespace = "COMANDA"
	appName      = "comanda"
	appVersion   = "0.1.0"
)

func main() {
	// Local development convenience; absence of the file is not an error.
	_ = godotenv.Load()

	config, err := apt.LoadConfig(appNamespace, os.Args[1:])
	if err != nil {
		log.Fatalf("%s(%s) cannot setup: %v", appName, appVersion, err)
	}

	logLevel, _ := config.GetString("log.level")
	logger := apt.NewLogger(logLevel)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	signKey, _ := config.GetString("auth.signkey")
	if signKey == "" {
		log.Fatalf("%s(%s) cannot setup: auth.signkey is required", appName, appVersion)
	}

	taxRate := 0.0
	if rateStr := config.GetStringOrDef("orders.taxrate", "0"); rateStr != "" {
		taxRate, err = strconv.ParseFloat(rateStr, 64)
		if err != nil {
			log.Fatalf("%s(%s) invalid orders.taxrate: %v", appName, appVersion, err)
		}
	}

	baseRepo := mongo.NewBaseRepo(config, logger)
	if err := baseRepo.Start(ctx); err != nil {
		log.Fatalf("%s(%s) cannot start base repository: %v", appName, appVersion, err)
	}

	tenantRepo := mongo.NewTenantRepo(baseRepo)
	deviceRepo := mongo.NewDeviceRepo(baseRepo)
	tokenRepo := mongo.NewActivationTokenRepo(baseRepo)
	sessionRepo := mongo.NewSessionRepo(baseRepo)
	orderRepo := mongo.NewOrderRepo(baseRepo)
	catalogRepo := mongo.NewCatalogRepo(baseRepo)

	registry := kiosk.NewRegistry(kiosk.RegistryDeps{
		Devices:  deviceRepo,
		Tokens:   tokenRepo,
		Sessions: sessionRepo,
		Orders:   orderRepo,
		License:  tenantRepo,
	}, []byte(signKey), logger)

	manager := session.NewManager(sessionRepo, registry, taxRate, logger)

	natsURL := config.GetStringOrDef("nats.url", "nats://localhost:4222")
	pub, err := pkg.NewNATSPublisher(natsURL)
	if err != nil {
		log.Fatalf("%s(%s) cannot connect to NATS publisher: %v", appName, appVersion, err)
	}
	sub, err := pkg.NewNATSSubscriber(natsURL)
	if err != nil {
		log.Fatalf("%s(%s) cannot connect to NATS subscriber: %v", appName, appVersion, err)
	}

	kitchenURL := config.GetStringOrDef("services.kitchen.url", "")
	if kitchenURL == "" {
		log.Fatalf("%s(%s) cannot setup: services.kitchen.url is required", appName, appVersion)
	}
	kitchenClient := kitchen.NewClient(kitchenURL, logger)

	orderService := order.NewService(order.ServiceDeps{
		Orders:    orderRepo,
		Devices:   registry,
		Sessions:  manager,
		Kitchen:   kitchenClient,
		Publisher: pub,
	}, taxRate, logger)

	ticketConsumer := order.NewTicketConsumer(sub, orderService, tenantRepo, logger)

	sweeper := sweep.New(tenantRepo, tokenRepo, logger)

	metrics.Init()

	kioskHandler := kiosk.NewHandler(registry, config, logger)
	sessionHandler := session.NewHandler(manager, logger)
	orderHandler := order.NewHandler(orderService, registry, logger)
	catalogHandler := catalog.NewHandler(catalogRepo, registry, logger)

	stack := middleware.DefaultStack(middleware.StackOptions{
		Logger:      logger,
		DisableCORS: false, // QR sessions are driven from customer browsers
	})
	stack = append(stack, tenant.Middleware(tenantRepo, logger))

	publisherLifecycle := apt.LifecycleHooks{
		OnStop: func(context.Context) error {
			return pub.Close()
		},
	}
	consumerLifecycle := apt.LifecycleHooks{
		OnStart: ticketConsumer.Start,
		OnStop: func(context.Context) error {
			return sub.Close()
		},
	}

	options := []apt.Option{
		apt.WithConfig(config),
		apt.WithLogger(logger),
		apt.WithHTTPMiddleware(stack...),
		apt.WithHTTPServerModules("web.port",
			kioskHandler,
			sessionHandler,
			orderHandler,
			catalogHandler,
			metrics.Module{},
		),
		apt.WithLifecycle(
			apt.LifecycleHooks{OnStop: baseRepo.Stop},
			apt.LifecycleHooks{OnStart: sweeper.Start, OnStop: sweeper.Stop},
			publisherLifecycle,
			consumerLifecycle,
		),
		apt.WithHealthChecks(appName),
	}

	ms := apt.NewMicro(options...)
	logger.Infof("Starting %s(%s)", appName, appVersion)

	if err := ms.Run(ctx); err != nil {
		_ = baseRepo.Stop(context.Background())
		log.Fatalf("%s(%s) stopped: %v", appName, appVersion, err)
	}

	logger.Infof("%s(%s) stopped", appName, appVersion)
}
