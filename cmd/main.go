package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"case-access-service/internal/config"
	"case-access-service/internal/database/mongo"
	"case-access-service/internal/database/redis"
	"case-access-service/internal/event"
	"case-access-service/internal/handlers"
	"case-access-service/internal/middleware"
	"case-access-service/internal/permissions"
	"case-access-service/internal/repository"
	"case-access-service/internal/service"
	"case-access-service/internal/zgw"
	"case-access-service/pkg/discovery"

	"github.com/gofiber/fiber/v3"
)

func setupLogging() (*os.File, error) {
	logDir := filepath.Join("/zac", "log", "access_service")
	err := os.MkdirAll(logDir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %v", err)
	}

	currentTime := time.Now()
	logFileName := fmt.Sprintf("log_%s.log", currentTime.Format("2006-01-02"))
	logFile := filepath.Join(logDir, logFileName)

	file, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %v", err)
	}

	log.SetOutput(file)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	return file, nil
}

func buildRegistries(levels []string) (*permissions.Registry, *permissions.KindRegistry, *permissions.Scale, error) {
	if len(levels) == 0 {
		levels = permissions.DefaultConfidentialityLevels
	}
	scale, err := permissions.NewScale(levels)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid confidentiality levels: %w", err)
	}

	kinds := permissions.NewKindRegistry()
	permissions.RegisterDefaultKinds(kinds)
	kinds.Freeze()

	registry := permissions.NewRegistry()
	registry.MustRegister(permissions.CaseObjectType(scale))
	registry.MustRegister(permissions.DocumentObjectType(scale))
	registry.Freeze()

	return registry, kinds, scale, nil
}

func main() {
	logFile, err := setupLogging()
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logFile.Close()

	cfg := config.ServiceConfig

	registry, kinds, scale, err := buildRegistries(cfg.Access.ConfidentialityLevels)
	if err != nil {
		log.Fatalf("Failed to build permission registries: %v", err)
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})

	// Initialize repositories
	store := repository.NewStore(mongo.Mongo_Client, mongo.Mongo_Database)
	roleRepo := repository.NewRoleRepository(mongo.Mongo_Database)
	blueprintRepo := repository.NewBlueprintPermissionRepository(mongo.Mongo_Database)
	profileRepo := repository.NewAuthorizationProfileRepository(mongo.Mongo_Database)
	atomicRepo := repository.NewAtomicPermissionRepository(mongo.Mongo_Database)
	requestRepo := repository.NewAccessRequestRepository(mongo.Mongo_Database)
	redisRepo := repository.NewRedisRepo(redis.Redis_Client)

	// Create database indexes
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := roleRepo.CreateIndexes(ctx); err != nil {
		log.Printf("Warning: Failed to create role indexes: %v", err)
	}
	if err := blueprintRepo.CreateIndexes(ctx); err != nil {
		log.Printf("Warning: Failed to create blueprint permission indexes: %v", err)
	}
	if err := profileRepo.CreateIndexes(ctx); err != nil {
		log.Printf("Warning: Failed to create profile indexes: %v", err)
	}
	if err := atomicRepo.CreateIndexes(ctx); err != nil {
		log.Printf("Warning: Failed to create atomic permission indexes: %v", err)
	}
	if err := requestRepo.CreateIndexes(ctx); err != nil {
		log.Printf("Warning: Failed to create access request indexes: %v", err)
	}
	if err := roleRepo.CollectRoles(ctx); err != nil {
		log.Printf("Warning: Failed to warm role cache: %v", err)
	}
	cancel()

	// Initialize event publisher
	eventPublisher, err := event.NewEventPublisher(cfg.RabbitMQ.URI)
	if err != nil {
		log.Printf("Warning: Failed to initialize event publisher: %v", err)
		eventPublisher, _ = event.NewEventPublisher("")
	}

	// Initialize ZGW registry client
	zgwClient := zgw.NewClient(zgw.Config{
		CatalogiBaseURL: cfg.ZGW.CatalogiBaseURL,
		Token:           cfg.ZGW.Token,
		Timeout:         cfg.ZGW.Timeout,
		CacheTTL:        cfg.ZGW.CacheTTL,
	}, redisRepo)

	// Initialize services
	permissionService := service.NewPermissionService(
		registry, atomicRepo, profileRepo, blueprintRepo, roleRepo, zgwClient, zgwClient)
	searchService := service.NewSearchService(registry, permissionService, atomicRepo)
	accessService := service.NewAccessService(atomicRepo, requestRepo, store, eventPublisher)
	roleService := service.NewRoleService(roleRepo, blueprintRepo, kinds)
	profileService := service.NewProfileService(profileRepo, blueprintRepo, roleRepo, registry, scale, zgwClient)

	// Initialize event consumer for case deletions
	eventConsumer, err := event.NewEventConsumer(cfg.RabbitMQ.URI, accessService)
	if err != nil {
		log.Printf("Warning: Failed to initialize event consumer: %v", err)
	} else {
		if err := eventConsumer.Start(); err != nil {
			log.Printf("Warning: Failed to start event consumer: %v", err)
			eventConsumer.Close()
		} else {
			log.Println("Successfully started case event consumer")
			defer eventConsumer.Close()
		}
	}

	if cfg.Server.JWTSecret != "" {
		verifier := middleware.NewJWTVerifier(cfg.Server.JWTSecret)
		app.Use("/protected", verifier.Authenticate())
	}

	// Initialize and register handlers
	accessHandler := handlers.NewAccessHandler(permissionService, searchService, accessService)
	accessHandler.RegisterRoutes(app)
	requestHandler := handlers.NewAccessRequestHandler(accessService)
	requestHandler.RegisterRoutes(app)
	roleHandler := handlers.NewRoleHandler(roleService)
	roleHandler.RegisterRoutes(app)
	profileHandler := handlers.NewProfileHandler(profileService)
	profileHandler.RegisterRoutes(app)

	if discovery.ServiceDiscovery != nil {
		if err := discovery.ServiceDiscovery.Register(); err != nil {
			log.Printf("Warning: Failed to register with service discovery: %v", err)
		}
	}

	shutdownChan := make(chan os.Signal, 1)
	doneChan := make(chan bool, 1)

	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := app.Listen(fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)); err != nil {
			log.Fatalf("Error starting server: %v", err)
		}
		doneChan <- true
	}()

	<-shutdownChan
	log.Println("Shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	if eventPublisher != nil {
		if err := eventPublisher.Close(); err != nil {
			log.Printf("Error closing event publisher: %v", err)
		}
	}

	mongo.DisconnectMongo()

	if discovery.ServiceDiscovery != nil {
		if err := discovery.ServiceDiscovery.Deregister(); err != nil {
			log.Printf("Error deregistering from service discovery: %v", err)
		}
	}

	<-doneChan
	log.Println("Server shutdown complete")
}
