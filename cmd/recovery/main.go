package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet-recovery-system/attestor"
	"wallet-recovery-system/conf"
	"wallet-recovery-system/controller"
	"wallet-recovery-system/database"
	"wallet-recovery-system/service/audit_service"
	"wallet-recovery-system/service/guardian_service"
	"wallet-recovery-system/service/notify_service"
	"wallet-recovery-system/service/recovery_service"
	"wallet-recovery-system/service/wallet_service"
	"wallet-recovery-system/storage"
)

var ENV string

func init() {
	flag.StringVar(&ENV, "env", "mainnet", "Environment: loc/mainnet/testnet")
}

// @title           Wallet Recovery Service API
// @version         1.0
// @description     Guardian based social recovery for non-custodial wallets

// @host      localhost:7291
// @BasePath  /api/v1

// @schemes https http

func main() {
	// Initialize all components
	processors, srv, cleanup := initAll()
	defer cleanup()

	// Start background processors
	for _, processor := range processors {
		processor.Start()
	}

	// Start HTTP API service (in goroutine)
	go startServer(srv)
	log.Println("Recovery API service started successfully")

	// Wait for shutdown signal
	waitForShutdown()

	log.Println("Shutting down recovery service...")

	// Stop background processors
	for _, processor := range processors {
		processor.Stop()
	}

	// Gracefully shutdown HTTP service
	shutdownServer(srv)

	log.Println("Server exited")
}

// processor background worker lifecycle
type processor interface {
	Start()
	Stop()
}

// initEnv initialize environment
func initEnv() {
	if ENV == "loc" {
		conf.SystemEnvironmentEnum = conf.LocalEnvironmentEnum
	} else if ENV == "mainnet" {
		conf.SystemEnvironmentEnum = conf.MainnetEnvironmentEnum
	} else if ENV == "testnet" {
		conf.SystemEnvironmentEnum = conf.TestnetEnvironmentEnum
	} else if ENV == "example" {
		conf.SystemEnvironmentEnum = conf.ExampleEnvironmentEnum
	}
	fmt.Printf("Environment: %s\n", ENV)
}

// initAll initialize all components
func initAll() ([]processor, *http.Server, func()) {
	// Parse command line parameters
	flag.Parse()

	// Set environment
	initEnv()

	// Initialize configuration
	if err := conf.InitConfig(); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}
	log.Printf("Configuration loaded: env=%s, net=%s, port=%s", ENV, conf.Cfg.Net, conf.Cfg.Port)

	// Initialize database
	if err := initDatabase(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize Redis (optional, won't fail if disabled or unavailable)
	if err := database.InitRedis(); err != nil {
		log.Printf("Redis initialization failed (cache will be disabled): %v", err)
	}

	// Initialize archive storage
	stor, err := storage.NewStorage()
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	log.Printf("Storage initialized: type=%s", conf.Cfg.Storage.Type)

	// Build attestor registry from chain configuration
	attestors, err := attestor.BuildRegistry(conf.Cfg.Recovery.Chains)
	if err != nil {
		log.Fatalf("Failed to build attestor registry: %v", err)
	}

	// Notification dispatchers
	notifyService, closeNotify := initNotify()

	// Services
	auditService := audit_service.NewAuditService()
	walletService := wallet_service.NewWalletService()
	guardianService := guardian_service.NewGuardianService(auditService, notifyService, attestors)
	recoveryService := recovery_service.NewRecoveryService(auditService, notifyService, attestors)

	// Background processors
	processors := []processor{
		recovery_service.NewExpiryProcessor(recoveryService),
		audit_service.NewArchiveProcessor(stor),
	}

	// Setup recovery service router
	router := controller.SetupRecoveryRouter(walletService, guardianService, recoveryService, auditService)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + conf.Cfg.Port,
		Handler: router,
	}

	// Return processors and cleanup function
	cleanup := func() {
		closeNotify()
		if database.DB != nil {
			database.DB.Close()
		}
		if err := database.CloseRedis(); err != nil {
			log.Printf("Failed to close Redis: %v", err)
		}
	}

	return processors, srv, cleanup
}

// initDatabase initialize database based on configuration
func initDatabase() error {
	dbType := database.DBType(conf.Cfg.Database.Type)

	switch dbType {
	case database.DBTypeMySQL:
		config := &database.MySQLConfig{
			DSN:          conf.Cfg.Database.Dsn,
			MaxOpenConns: conf.Cfg.Database.MaxOpenConns,
			MaxIdleConns: conf.Cfg.Database.MaxIdleConns,
		}
		return database.InitDatabase(database.DBTypeMySQL, config)

	case database.DBTypePebble:
		config := &database.PebbleConfig{
			DataDir: conf.Cfg.Database.DataDir,
		}
		return database.InitDatabase(database.DBTypePebble, config)

	default:
		log.Printf("Database type not specified, defaulting to MySQL")
		config := &database.MySQLConfig{
			DSN:          conf.Cfg.Database.Dsn,
			MaxOpenConns: conf.Cfg.Database.MaxOpenConns,
			MaxIdleConns: conf.Cfg.Database.MaxIdleConns,
		}
		return database.InitDatabase(database.DBTypeMySQL, config)
	}
}

// initNotify build the dispatcher set from configuration
func initNotify() (*notify_service.NotifyService, func()) {
	dispatchers := []notify_service.Dispatcher{&notify_service.LogDispatcher{}}
	closeFuncs := []func(){}

	if conf.Cfg.Notify.WebhookEnabled && conf.Cfg.Notify.WebhookUrl != "" {
		dispatchers = append(dispatchers, notify_service.NewWebhookDispatcher(conf.Cfg.Notify.WebhookUrl))
		log.Printf("Webhook notifications enabled: %s", conf.Cfg.Notify.WebhookUrl)
	}

	if conf.Cfg.Notify.ZmqEnabled && conf.Cfg.Notify.ZmqAddress != "" {
		zmqDispatcher, err := notify_service.NewZMQDispatcher(context.Background(), conf.Cfg.Notify.ZmqAddress)
		if err != nil {
			log.Printf("ZMQ publisher initialization failed (events will not be published): %v", err)
		} else {
			dispatchers = append(dispatchers, zmqDispatcher)
			closeFuncs = append(closeFuncs, func() {
				if err := zmqDispatcher.Close(); err != nil {
					log.Printf("Failed to close ZMQ publisher: %v", err)
				}
			})
		}
	}

	return notify_service.NewNotifyService(dispatchers...), func() {
		for _, fn := range closeFuncs {
			fn()
		}
	}
}

// startServer start HTTP server
func startServer(srv *http.Server) {
	log.Printf("Recovery API service starting on port %s...", conf.Cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// waitForShutdown wait for shutdown signal
func waitForShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
}

// shutdownServer gracefully shutdown server
func shutdownServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
}
