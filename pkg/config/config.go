package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Network identifies which Ethereum network the tool operates against.
// The set is closed: every switch over Network must handle all four values.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkKovan   Network = "kovan"
	NetworkRopsten Network = "ropsten"
	NetworkLocal   Network = "local"
)

// ChainID returns the EIP-155 chain id for the network.
func (n Network) ChainID() int64 {
	switch n {
	case NetworkMainnet:
		return 1
	case NetworkRopsten:
		return 3
	case NetworkKovan:
		return 42
	case NetworkLocal:
		return 1337
	default:
		return 0
	}
}

// Valid reports whether the network is one of the supported values.
func (n Network) Valid() bool {
	switch n {
	case NetworkMainnet, NetworkKovan, NetworkRopsten, NetworkLocal:
		return true
	default:
		return false
	}
}

func (n Network) String() string {
	return string(n)
}

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Ethereum   EthereumConfig   `mapstructure:"ethereum"`
	Token      TokenConfig      `mapstructure:"token"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// EthereumConfig contains Ethereum client and broadcast account settings
type EthereumConfig struct {
	Network Network `mapstructure:"network"`
	NodeURL string  `mapstructure:"node_url"`

	// PrivateKey is the broadcast account key as plain hex, for development.
	// Production deployments set PrivateKeyEncrypted (an AES-256-GCM sealed
	// blob from the keys package) plus the hex MasterKey instead.
	PrivateKey          string `mapstructure:"private_key"`
	PrivateKeyEncrypted string `mapstructure:"private_key_encrypted"`
	MasterKey           string `mapstructure:"master_key"`

	GasLimit        uint64        `mapstructure:"gas_limit"`
	GasPrice        string        `mapstructure:"gas_price"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ConfirmationLag uint64        `mapstructure:"confirmation_lag"`
	ScanWindowSize  uint64        `mapstructure:"scan_window_size"`

	// AutoRestartNonce seeds the nonce counter from the chain's transaction
	// count when the broadcast account has no row yet. It never overwrites an
	// existing counter; that is the restart-nonce command.
	AutoRestartNonce bool `mapstructure:"auto_restart_nonce"`
}

// TokenConfig contains token metadata used for cap table rendering
type TokenConfig struct {
	Name     string `mapstructure:"name"`
	Symbol   string `mapstructure:"symbol"`
	Decimals int    `mapstructure:"decimals"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MetricsPort int  `mapstructure:"metrics_port"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.database", "sto")

	// Ethereum defaults
	viper.SetDefault("ethereum.network", "mainnet")
	viper.SetDefault("ethereum.node_url", "http://localhost:8545")
	viper.SetDefault("ethereum.gas_limit", 300000)
	viper.SetDefault("ethereum.gas_price", "1000000000")
	viper.SetDefault("ethereum.request_timeout", "30s")
	viper.SetDefault("ethereum.confirmation_lag", 12)
	viper.SetDefault("ethereum.scan_window_size", 2000)
	viper.SetDefault("ethereum.auto_restart_nonce", true)

	// Token defaults
	viper.SetDefault("token.decimals", 18)

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", false)
	viper.SetDefault("monitoring.metrics_port", 9090)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
	viper.SetDefault("logging.output_path", "stdout")
}

func validate(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if config.Ethereum.NodeURL == "" {
		return fmt.Errorf("ethereum.node_url is required")
	}
	if !config.Ethereum.Network.Valid() {
		return fmt.Errorf("unknown ethereum.network %q", config.Ethereum.Network)
	}
	if config.Ethereum.ScanWindowSize == 0 {
		return fmt.Errorf("ethereum.scan_window_size must be positive")
	}
	if config.Ethereum.PrivateKey != "" && config.Ethereum.PrivateKeyEncrypted != "" {
		return fmt.Errorf("ethereum.private_key and ethereum.private_key_encrypted are mutually exclusive")
	}
	if config.Ethereum.PrivateKeyEncrypted != "" && config.Ethereum.MasterKey == "" {
		return fmt.Errorf("ethereum.master_key is required to open ethereum.private_key_encrypted")
	}
	return nil
}
