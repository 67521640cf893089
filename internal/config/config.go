package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Networks NetworksConfig `mapstructure:"networks"`
	Indexer  IndexerConfig  `mapstructure:"indexer"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// NetworkConfig describes one reachable network endpoint
type NetworkConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	ChainID        uint64        `mapstructure:"chain_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// NetworksConfig maps network identifiers to endpoints
type NetworksConfig struct {
	Mainnet NetworkConfig `mapstructure:"mainnet"`
	Testnet NetworkConfig `mapstructure:"testnet"`
}

// IndexerConfig contains ingestion pipeline configuration
type IndexerConfig struct {
	MaxBlockWindow uint64        `mapstructure:"max_block_window"`
	MaxBlockSpan   uint64        `mapstructure:"max_block_span"`
	ChunkDelay     time.Duration `mapstructure:"chunk_delay"`
	SmartWindow    uint64        `mapstructure:"smart_window"`
	FallbackHead   uint64        `mapstructure:"fallback_head"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./internal/config")
	}

	viper.SetEnvPrefix("EVM_INDEXER")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override with environment variables if present
	if mainnetURL := os.Getenv("MAINNET_RPC_URL"); mainnetURL != "" {
		config.Networks.Mainnet.RPCURL = mainnetURL
	}
	if testnetURL := os.Getenv("TESTNET_RPC_URL"); testnetURL != "" {
		config.Networks.Testnet.RPCURL = testnetURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "evm-event-indexer")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	// Network defaults (Rootstock public nodes)
	viper.SetDefault("networks.mainnet.rpc_url", "https://public-node.rsk.co")
	viper.SetDefault("networks.mainnet.chain_id", 30)
	viper.SetDefault("networks.mainnet.request_timeout", "30s")
	viper.SetDefault("networks.testnet.rpc_url", "https://public-node.testnet.rsk.co")
	viper.SetDefault("networks.testnet.chain_id", 31)
	viper.SetDefault("networks.testnet.request_timeout", "30s")

	// Indexer defaults
	viper.SetDefault("indexer.max_block_window", 500)
	viper.SetDefault("indexer.max_block_span", 50000)
	viper.SetDefault("indexer.chunk_delay", "200ms")
	viper.SetDefault("indexer.smart_window", 1000)
	viper.SetDefault("indexer.fallback_head", 6800000)

	// Storage defaults
	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.connection_string", "./data/events.db")
	viper.SetDefault("storage.max_connections", 25)
	viper.SetDefault("storage.max_idle_time", "15m")

	// Server defaults
	viper.SetDefault("server.port", 8081)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")
	viper.SetDefault("server.enable_metrics", true)
	viper.SetDefault("server.enable_health", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Networks.Mainnet.RPCURL == "" {
		return fmt.Errorf("mainnet RPC URL is required")
	}
	if c.Networks.Testnet.RPCURL == "" {
		return fmt.Errorf("testnet RPC URL is required")
	}
	if c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}
	if c.Indexer.MaxBlockWindow == 0 {
		return fmt.Errorf("indexer max block window must be positive")
	}
	if c.Indexer.MaxBlockSpan < c.Indexer.MaxBlockWindow {
		return fmt.Errorf("indexer max block span must be at least the max block window")
	}
	return nil
}
