// Package di provides dependency injection container for managing service lifecycle and dependencies.
package di

import (
	"context"
	"database/sql"
	"sync"

	"ieltsprep/internal/config"
	"ieltsprep/internal/database"
	"ieltsprep/internal/handlers"
	"ieltsprep/internal/observability"
	"ieltsprep/internal/services"
	"ieltsprep/internal/services/mailer"
	contextutils "ieltsprep/internal/utils"
)

// ServiceContainerInterface defines the interface for service containers
type ServiceContainerInterface interface {
	GetService(name string) (interface{}, error)
	GetPromptCatalog() (*services.PromptCatalog, error)
	GetGatewayService() (services.GatewayInterface, error)
	GetAssemblerService() (services.AssemblerInterface, error)
	GetProviderKeyService() (services.ProviderKeyServiceInterface, error)
	GetUsageService() (services.UsageServiceInterface, error)
	GetTestRecordService() (services.TestRecordServiceInterface, error)
	GetAuthAPIKeyService() (services.AuthAPIKeyServiceInterface, error)
	GetMailer() (mailer.Mailer, error)
	GetDatabase() *sql.DB
	GetConfig() *config.Config
	GetLogger() *observability.Logger
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// ServiceContainer manages all service dependencies and lifecycle
type ServiceContainer struct {
	cfg           *config.Config
	logger        *observability.Logger
	dbManager     *database.Manager
	db            *sql.DB
	services      map[string]interface{}
	mu            sync.RWMutex
	shutdownFuncs []func(context.Context) error
}

// NewServiceContainer creates a new dependency injection container
func NewServiceContainer(cfg *config.Config, logger *observability.Logger) *ServiceContainer {
	return &ServiceContainer{
		cfg:      cfg,
		logger:   logger,
		services: make(map[string]interface{}),
	}
}

// Initialize sets up all services and their dependencies
func (sc *ServiceContainer) Initialize(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	// Initialize database
	sc.dbManager = database.NewManager(sc.logger)
	db, err := sc.dbManager.InitDBWithConfig(sc.cfg.Database)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to initialize database")
	}
	sc.db = db
	sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
		return db.Close()
	})

	// Initialize core services
	if err := sc.initializeServices(ctx); err != nil {
		_ = sc.cleanup(ctx)
		return contextutils.WrapErrorf(err, "failed to initialize services")
	}

	return nil
}

// GetService retrieves a service by name with type assertion
func (sc *ServiceContainer) GetService(name string) (interface{}, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	service, exists := sc.services[name]
	if !exists {
		return nil, contextutils.ErrorWithContextf("service %s not found", name)
	}
	return service, nil
}

// GetServiceAs performs type-safe service retrieval
func GetServiceAs[T any](sc *ServiceContainer, name string) (T, error) {
	var zero T
	service, err := sc.GetService(name)
	if err != nil {
		return zero, err
	}

	typed, ok := service.(T)
	if !ok {
		return zero, contextutils.ErrorWithContextf("service %s is not of expected type %T", name, zero)
	}
	return typed, nil
}

// GetPromptCatalog returns the prompt catalog
func (sc *ServiceContainer) GetPromptCatalog() (*services.PromptCatalog, error) {
	return GetServiceAs[*services.PromptCatalog](sc, "prompt_catalog")
}

// GetGatewayService returns the model gateway
func (sc *ServiceContainer) GetGatewayService() (services.GatewayInterface, error) {
	return GetServiceAs[services.GatewayInterface](sc, "gateway")
}

// GetAssemblerService returns the content assembler
func (sc *ServiceContainer) GetAssemblerService() (services.AssemblerInterface, error) {
	return GetServiceAs[services.AssemblerInterface](sc, "assembler")
}

// GetProviderKeyService returns the provider key service
func (sc *ServiceContainer) GetProviderKeyService() (services.ProviderKeyServiceInterface, error) {
	return GetServiceAs[services.ProviderKeyServiceInterface](sc, "provider_key")
}

// GetUsageService returns the daily usage service
func (sc *ServiceContainer) GetUsageService() (services.UsageServiceInterface, error) {
	return GetServiceAs[services.UsageServiceInterface](sc, "usage")
}

// GetTestRecordService returns the generated test archive
func (sc *ServiceContainer) GetTestRecordService() (services.TestRecordServiceInterface, error) {
	return GetServiceAs[services.TestRecordServiceInterface](sc, "test_record")
}

// GetAuthAPIKeyService returns the API key auth service
func (sc *ServiceContainer) GetAuthAPIKeyService() (services.AuthAPIKeyServiceInterface, error) {
	return GetServiceAs[services.AuthAPIKeyServiceInterface](sc, "auth_api_key")
}

// GetMailer returns the email service
func (sc *ServiceContainer) GetMailer() (mailer.Mailer, error) {
	return GetServiceAs[mailer.Mailer](sc, "mailer")
}

// GetDatabase returns the database instance
func (sc *ServiceContainer) GetDatabase() *sql.DB {
	return sc.db
}

// GetConfig returns the configuration
func (sc *ServiceContainer) GetConfig() *config.Config {
	return sc.cfg
}

// GetLogger returns the logger
func (sc *ServiceContainer) GetLogger() *observability.Logger {
	return sc.logger
}

// RouterServices bundles the initialized services for handlers.NewRouter.
func (sc *ServiceContainer) RouterServices() (handlers.RouterServices, error) {
	catalog, err := sc.GetPromptCatalog()
	if err != nil {
		return handlers.RouterServices{}, err
	}
	gateway, err := sc.GetGatewayService()
	if err != nil {
		return handlers.RouterServices{}, err
	}
	assembler, err := sc.GetAssemblerService()
	if err != nil {
		return handlers.RouterServices{}, err
	}
	providerKeys, err := sc.GetProviderKeyService()
	if err != nil {
		return handlers.RouterServices{}, err
	}
	usage, err := sc.GetUsageService()
	if err != nil {
		return handlers.RouterServices{}, err
	}
	records, err := sc.GetTestRecordService()
	if err != nil {
		return handlers.RouterServices{}, err
	}
	apiKeys, err := sc.GetAuthAPIKeyService()
	if err != nil {
		return handlers.RouterServices{}, err
	}
	return handlers.RouterServices{
		Catalog:      catalog,
		Gateway:      gateway,
		Assembler:    assembler,
		ProviderKeys: providerKeys,
		Usage:        usage,
		Records:      records,
		APIKeys:      apiKeys,
	}, nil
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	return sc.cleanup(ctx)
}

// cleanup handles shutdown of all services
func (sc *ServiceContainer) cleanup(ctx context.Context) error {
	var errors []error

	for name := range sc.services {
		if lifecycleService, ok := sc.services[name].(interface{ Shutdown(context.Context) error }); ok {
			sc.logger.Info(ctx, "Shutting down service", map[string]interface{}{"service": name})
			if err := lifecycleService.Shutdown(ctx); err != nil {
				sc.logger.Error(ctx, "Failed to shutdown service", err, map[string]interface{}{"service": name})
				errors = append(errors, contextutils.WrapErrorf(err, "service %s shutdown failed", name))
			}
		}
	}

	// Shutdown services in reverse order of initialization
	for i := len(sc.shutdownFuncs) - 1; i >= 0; i-- {
		if err := sc.shutdownFuncs[i](ctx); err != nil {
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return contextutils.ErrorWithContextf("shutdown errors: %v", errors)
	}
	return nil
}

// initializeServices sets up all service dependencies
func (sc *ServiceContainer) initializeServices(_ context.Context) error {
	emailService := mailer.NewEmailService(sc.cfg, sc.logger)
	sc.services["mailer"] = emailService

	catalog, err := services.NewPromptCatalog()
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to load prompt catalog")
	}
	sc.services["prompt_catalog"] = catalog

	gateway := services.NewGatewayService(sc.cfg, sc.logger)
	sc.services["gateway"] = gateway

	storage := services.NewStorageService(sc.cfg, sc.logger)
	sc.services["storage"] = storage

	// Assembler depends on the catalog for schemas and on the gateway and
	// storage for writing task visual generation.
	assembler := services.NewAssemblerService(catalog, gateway, storage, sc.logger)
	sc.services["assembler"] = assembler

	providerKeys, err := services.NewProviderKeyService(sc.db, sc.logger, sc.cfg.Server.KeyEncryptionSecret)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to initialize provider key service")
	}
	sc.services["provider_key"] = providerKeys

	usage := services.NewUsageService(sc.cfg, sc.db, sc.logger, emailService)
	sc.services["usage"] = usage

	sc.services["test_record"] = services.NewTestRecordService(sc.db, sc.logger)
	sc.services["auth_api_key"] = services.NewAuthAPIKeyService(sc.db, sc.logger)

	return nil
}
