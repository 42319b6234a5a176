package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"autobook/internal/accounting"
	"autobook/internal/api"
	"autobook/internal/api/handlers"
	"autobook/internal/jurisdiction"
	"autobook/internal/llm"
	"autobook/internal/models"
	"autobook/internal/repository"
	"autobook/internal/rules"
	"autobook/internal/service"
	"autobook/pkg/auth"
	"autobook/pkg/config"
	"autobook/pkg/logger"
	"autobook/pkg/postgres"
	"autobook/pkg/session"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// @title Autobook API
// @version 1.0
// @description Expense classification and draft posting to freee, QuickBooks Online and Xero

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting autobook service")

	ctx := context.Background()
	clock := clockwork.NewRealClock()

	// Storage is optional: without a database decisions and posting results are not kept
	// and provider credentials live in sealed cookies only.
	var (
		decisionRecorder service.DecisionRecorder
		decisionReader   handlers.DecisionReader
		decisionLookup   service.DecisionLookup
		postingRecorder  service.PostingRecorder
		postingHistory   handlers.PostingHistory
		credentialRepo   *repository.CredentialRepository
	)
	sealer := session.NewSealer(cfg.Session.Secret, cfg.Session.SecureCookie, appLogger)
	if cfg.Database.Enabled {
		db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		decisionRepo := repository.NewDecisionRepository(db, appLogger)
		decisionRecorder = decisionRepo
		decisionReader = decisionRepo
		decisionLookup = decisionRepo
		postingRepo := repository.NewPostingRepository(db, appLogger)
		postingRecorder = postingRepo
		postingHistory = postingRepo
		credentialRepo = repository.NewCredentialRepository(db, sealer, appLogger)
	} else {
		appLogger.Warn("Database disabled, decisions will not be persisted")
	}

	profiles := jurisdiction.NewStore()
	if cfg.Jurisdiction.ProfilesFile != "" {
		profiles, err = jurisdiction.LoadFile(cfg.Jurisdiction.ProfilesFile)
		if err != nil {
			appLogger.Fatal("Failed to load jurisdiction profiles", zap.Error(err))
		}
	}

	classifierCfg := rules.DefaultConfig()
	classifierCfg.OKThreshold = cfg.Classifier.OKThreshold
	classifierCfg.HighAmount = cfg.Classifier.HighAmount
	var classifierOpts []rules.Option
	if cfg.Classifier.HintEnabled {
		classifierOpts = append(classifierOpts, rules.WithHint(rules.NewCategoryHint(rules.DefaultCategoryRules, cfg.Classifier.HintMinScore)))
	}
	classifier := rules.NewClassifier(classifierCfg, classifierOpts...)

	// LLM chain, tried in order
	var providers []llm.Provider
	if cfg.LLM.Ollama.Enabled {
		providers = append(providers, llm.NewOllamaProvider(cfg.LLM.Ollama.BaseURL, cfg.LLM.Ollama.Model, nil))
	}
	if cfg.LLM.Gemini.Enabled {
		gemini, err := llm.NewGeminiProvider(ctx, cfg.LLM.Gemini.APIKey, cfg.LLM.Gemini.Model)
		if err != nil {
			appLogger.Fatal("Failed to initialize Gemini provider", zap.Error(err))
		}
		providers = append(providers, gemini)
	}
	if cfg.LLM.Claude.Enabled {
		providers = append(providers, llm.NewClaudeProvider(cfg.LLM.Claude.APIKey, cfg.LLM.Claude.Model))
	}
	if cfg.LLM.GigaChat.Enabled {
		gigaChat, err := llm.NewGigaChatProvider(ctx, llm.GigaChatConfig{
			APIKey:             cfg.LLM.GigaChat.APIKey,
			Scope:              cfg.LLM.GigaChat.Scope,
			Model:              cfg.LLM.GigaChat.Model,
			InsecureSkipVerify: cfg.LLM.GigaChat.InsecureSkipVerify,
		}, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to initialize GigaChat provider", zap.Error(err))
		}
		defer gigaChat.Close()
		providers = append(providers, gigaChat)
	}
	chain := llm.NewChain(appLogger, cfg.LLM.Timeout, providers...)
	appLogger.Info("LLM chain ready", zap.Strings("providers", chain.ProviderNames()))

	// Accounting adapters
	mapper := accounting.NewMapper()
	if cfg.Classifier.MappingFile != "" {
		mapper, err = accounting.LoadMappingFile(cfg.Classifier.MappingFile)
		if err != nil {
			appLogger.Fatal("Failed to load account mapping", zap.Error(err))
		}
	}
	options := func(c config.OAuthClientConfig) accounting.ProviderOptions {
		return accounting.ProviderOptions{
			ClientID:          c.ClientID,
			ClientSecret:      c.ClientSecret,
			BaseURL:           c.BaseURL,
			TokenURL:          c.TokenURL,
			RequestsPerSecond: cfg.Providers.RequestsPerSecond,
			Marker:            cfg.Providers.Marker,
			Mapper:            mapper,
		}
	}
	registry := accounting.NewRegistry(
		accounting.NewFreeeAdapter(options(cfg.Providers.Freee), appLogger),
		accounting.NewQuickBooksAdapter(options(cfg.Providers.QuickBooks), appLogger),
		accounting.NewXeroAdapter(options(cfg.Providers.Xero), cfg.Providers.XeroContact, appLogger),
	)

	// Initialize services
	decisionService := service.NewDecisionService(
		profiles,
		classifier,
		chain,
		decisionRecorder,
		clock,
		service.DecisionConfig{AllowAmountCorrection: cfg.Classifier.AllowAmountCorrection},
		appLogger,
	)
	postingService := service.NewPostingService(registry, postingRecorder, decisionLookup, clock, appLogger)

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Expiration)

	// Business tenants share provider connections across the organization.
	sessions := func(c *fiber.Ctx, tenant models.TenantContext) accounting.SessionStore {
		if credentialRepo != nil && tenant.Mode == models.TenantModeBusiness && tenant.OrganizationID != "" {
			return credentialRepo.ForOrganization(tenant.OrganizationID)
		}
		return sealer.Store(c)
	}

	// Initialize handlers
	decisionHandler := handlers.NewDecisionHandler(decisionService, decisionReader, postingHistory, appLogger)
	providerHandler := handlers.NewProviderHandler(postingService, sessions, appLogger)

	// Setup router
	app := api.SetupRouter(decisionHandler, providerHandler, jwtManager, appLogger)

	// Start server
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
}
