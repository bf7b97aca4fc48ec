package conf

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config application configuration structure
type Config struct {
	// Network configuration
	Net  string
	Port string // Recovery service port

	// Database configuration
	Database DatabaseConfig

	// Recovery protocol configuration
	Recovery RecoveryConfig

	// Archive storage configuration
	Storage StorageConfig

	// Notification configuration
	Notify NotifyConfig

	// Redis configuration
	Redis RedisConfig
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	Type         string // Database type: mysql, pebble
	Dsn          string // MySQL DSN
	MaxOpenConns int    // MySQL max open connections
	MaxIdleConns int    // MySQL max idle connections
	DataDir      string // PebbleDB data directory
}

// ChainInstanceConfig single chain instance configuration
type ChainInstanceConfig struct {
	Name               string `mapstructure:"name"`                // Chain name: btc, mvc, eth, etc.
	AttestationEnabled bool   `mapstructure:"attestation_enabled"` // Enable on-chain attestation for this chain
	GatewayUrl         string `mapstructure:"gateway_url"`         // Attestation gateway JSON-RPC URL
	GatewayUser        string `mapstructure:"gateway_user"`        // Gateway username
	GatewayPass        string `mapstructure:"gateway_pass"`        // Gateway password
	ContractAddress    string `mapstructure:"contract_address"`    // Attestation contract address
}

// RecoveryConfig recovery protocol configuration
type RecoveryConfig struct {
	ExpiryDays       int    // Days before a pending request expires (default: 7)
	SweepInterval    int    // Expiry sweep interval in seconds (default: 600)
	MinGuardians     int    // Minimum accepted guardians required to initiate (default: 3)
	SwaggerBaseUrl   string // Swagger API base URL (e.g., "example.com:7291")
	Chains           []ChainInstanceConfig
	AttestRetries    int // Bounded retries for clean attestation failures (default: 3)
	AttestRetryDelay int // Delay between attestation retries in seconds (default: 2)
	ArchiveAfterDays int // Days before audit entries are archived to storage (default: 90)
	ArchiveInterval  int // Archive sweep interval in seconds (default: 86400)
	ArchiveBatchSize int // Audit entries per archive batch (default: 500)
}

// StorageConfig archive storage configuration
type StorageConfig struct {
	Type  string
	Local LocalStorageConfig
	OSS   OSSStorageConfig
	S3    S3StorageConfig
}

// LocalStorageConfig local storage configuration
type LocalStorageConfig struct {
	BasePath string
}

// OSSStorageConfig OSS storage configuration
type OSSStorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
}

// S3StorageConfig AWS S3 storage configuration
type S3StorageConfig struct {
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Endpoint  string // Optional custom endpoint
}

// NotifyConfig notification configuration
type NotifyConfig struct {
	WebhookEnabled bool   // Enable webhook dispatcher
	WebhookUrl     string // Webhook endpoint URL
	ZmqEnabled     bool   // Enable ZMQ event publisher
	ZmqAddress     string // ZMQ bind address (e.g., "tcp://127.0.0.1:28391")
}

// RedisConfig redis configuration
type RedisConfig struct {
	Enabled  bool   // Enable Redis cache
	Host     string // Redis host
	Port     int    // Redis port
	Password string // Redis password (optional)
	DB       int    // Redis database number
	CacheTTL int    // Cache TTL in seconds (default: 300)
}

// Cfg global configuration instance
var Cfg *Config

// InitConfig initialize configuration
func InitConfig() error {
	viper.SetConfigFile(GetYaml())
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("Fatal error config file: %s", err)
	}

	// Create configuration instance
	Cfg = &Config{
		Net:  viper.GetString("net"),
		Port: viper.GetString("port"),

		Database: DatabaseConfig{
			Type:         viper.GetString("database.type"),
			Dsn:          viper.GetString("database.dsn"),
			MaxOpenConns: viper.GetInt("database.max_open_conns"),
			MaxIdleConns: viper.GetInt("database.max_idle_conns"),
			DataDir:      viper.GetString("database.data_dir"),
		},

		Recovery: RecoveryConfig{
			ExpiryDays:       viper.GetInt("recovery.expiry_days"),
			SweepInterval:    viper.GetInt("recovery.sweep_interval"),
			MinGuardians:     viper.GetInt("recovery.min_guardians"),
			SwaggerBaseUrl:   viper.GetString("recovery.swagger_base_url"),
			AttestRetries:    viper.GetInt("recovery.attest_retries"),
			AttestRetryDelay: viper.GetInt("recovery.attest_retry_delay"),
			ArchiveAfterDays: viper.GetInt("recovery.archive_after_days"),
			ArchiveInterval:  viper.GetInt("recovery.archive_interval"),
			ArchiveBatchSize: viper.GetInt("recovery.archive_batch_size"),
		},

		Storage: StorageConfig{
			Type: viper.GetString("storage.type"),
			Local: LocalStorageConfig{
				BasePath: viper.GetString("storage.local.base_path"),
			},
			OSS: OSSStorageConfig{
				Endpoint:  viper.GetString("storage.oss.endpoint"),
				AccessKey: viper.GetString("storage.oss.access_key"),
				SecretKey: viper.GetString("storage.oss.secret_key"),
				Bucket:    viper.GetString("storage.oss.bucket"),
			},
			S3: S3StorageConfig{
				Region:    viper.GetString("storage.s3.region"),
				AccessKey: viper.GetString("storage.s3.access_key"),
				SecretKey: viper.GetString("storage.s3.secret_key"),
				Bucket:    viper.GetString("storage.s3.bucket"),
				Endpoint:  viper.GetString("storage.s3.endpoint"),
			},
		},

		Notify: NotifyConfig{
			WebhookEnabled: viper.GetBool("notify.webhook_enabled"),
			WebhookUrl:     viper.GetString("notify.webhook_url"),
			ZmqEnabled:     viper.GetBool("notify.zmq_enabled"),
			ZmqAddress:     viper.GetString("notify.zmq_address"),
		},

		Redis: RedisConfig{
			Enabled:  viper.GetBool("redis.enabled"),
			Host:     viper.GetString("redis.host"),
			Port:     viper.GetInt("redis.port"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
			CacheTTL: viper.GetInt("redis.cache_ttl"),
		},
	}

	// Set default values
	if Cfg.Port == "" {
		Cfg.Port = "7291"
	}
	if Cfg.Database.Type == "" {
		Cfg.Database.Type = "mysql"
	}
	if Cfg.Database.MaxOpenConns == 0 {
		Cfg.Database.MaxOpenConns = 100
	}
	if Cfg.Database.MaxIdleConns == 0 {
		Cfg.Database.MaxIdleConns = 10
	}
	if Cfg.Database.DataDir == "" {
		Cfg.Database.DataDir = "./data/recovery"
	}
	if Cfg.Recovery.ExpiryDays == 0 {
		Cfg.Recovery.ExpiryDays = 7
	}
	if Cfg.Recovery.SweepInterval == 0 {
		Cfg.Recovery.SweepInterval = 600
	}
	if Cfg.Recovery.MinGuardians == 0 {
		Cfg.Recovery.MinGuardians = 3
	}
	if Cfg.Recovery.AttestRetries == 0 {
		Cfg.Recovery.AttestRetries = 3
	}
	if Cfg.Recovery.AttestRetryDelay == 0 {
		Cfg.Recovery.AttestRetryDelay = 2
	}
	if Cfg.Recovery.ArchiveAfterDays == 0 {
		Cfg.Recovery.ArchiveAfterDays = 90
	}
	if Cfg.Recovery.ArchiveInterval == 0 {
		Cfg.Recovery.ArchiveInterval = 86400
	}
	if Cfg.Recovery.ArchiveBatchSize == 0 {
		Cfg.Recovery.ArchiveBatchSize = 500
	}
	if Cfg.Storage.Type == "" {
		Cfg.Storage.Type = "local"
	}
	if Cfg.Storage.Local.BasePath == "" {
		Cfg.Storage.Local.BasePath = "./data/archive"
	}
	if Cfg.Recovery.SwaggerBaseUrl == "" {
		Cfg.Recovery.SwaggerBaseUrl = "localhost:" + Cfg.Port
	}

	// Load per-chain attestation configurations if present
	if viper.IsSet("recovery.chains") {
		var chains []ChainInstanceConfig
		if err := viper.UnmarshalKey("recovery.chains", &chains); err != nil {
			fmt.Printf("Warning: failed to parse recovery.chains: %v\n", err)

			// Try alternative parsing method
			chainsInterface := viper.Get("recovery.chains")
			if chainsList, ok := chainsInterface.([]interface{}); ok {
				for _, chainInterface := range chainsList {
					if chainMap, ok := chainInterface.(map[string]interface{}); ok {
						chain := ChainInstanceConfig{
							Name:               getStringFromMap(chainMap, "name"),
							AttestationEnabled: getBoolFromMap(chainMap, "attestation_enabled"),
							GatewayUrl:         getStringFromMap(chainMap, "gateway_url"),
							GatewayUser:        getStringFromMap(chainMap, "gateway_user"),
							GatewayPass:        getStringFromMap(chainMap, "gateway_pass"),
							ContractAddress:    getStringFromMap(chainMap, "contract_address"),
						}
						if chain.Name != "" {
							chains = append(chains, chain)
						}
					}
				}
			}
		}

		if len(chains) > 0 {
			Cfg.Recovery.Chains = chains
			for _, chain := range chains {
				fmt.Printf("  Chain %s: attestation=%v, gateway=%s\n",
					chain.Name, chain.AttestationEnabled, chain.GatewayUrl)
			}
		}
	}

	return nil
}

// Helper functions for parsing chain config from map
func getStringFromMap(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getBoolFromMap(m map[string]interface{}, key string) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}
