package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/nexbit/dvs/pkg/logger"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Verification VerificationConfig `yaml:"verification"`
	Chains       ChainsConfig       `yaml:"chains"`
	Referral     ReferralConfig     `yaml:"referral"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	Security     SecurityConfig     `yaml:"security"`
	Logger       logger.Config      `yaml:"logger"`
}

type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`
}

type DatabaseConfig struct {
	Host            string `yaml:"host"`
	Port            string `yaml:"port"`
	User            string `yaml:"user"`
	DBName          string `yaml:"name"`
	Password        string `yaml:"password"`
	SSLMode         string `yaml:"ssl_mode"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
}

type VerificationConfig struct {
	PollingInterval     int           `yaml:"polling_interval"`
	TaskDelay           time.Duration `yaml:"task_delay"`
	MaxRetries          int           `yaml:"max_retries"`
	DepositTimeoutHours int           `yaml:"deposit_timeout_hours"`
}

type ChainsConfig struct {
	Tron     ChainConfig `yaml:"tron"`
	Ethereum ChainConfig `yaml:"ethereum"`
}

// ChainConfig carries the per-chain gateway endpoint plus the receiving
// wallet and stablecoin contract the verifier checks transfers against.
type ChainConfig struct {
	APIURL           string        `yaml:"api_url"`
	APIKey           string        `yaml:"api_key"`
	WalletAddress    string        `yaml:"wallet_address"`
	TokenContract    string        `yaml:"token_contract"`
	TokenDecimals    int32         `yaml:"token_decimals"`
	MinConfirmations int64         `yaml:"min_confirmations"`
	Timeout          time.Duration `yaml:"timeout"`
}

type ReferralConfig struct {
	FirstDepositBonus string `yaml:"first_deposit_bonus"`
	CommissionPercent string `yaml:"commission_percent"`
}

func (c ReferralConfig) Bonus() decimal.Decimal {
	d, err := decimal.NewFromString(c.FirstDepositBonus)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (c ReferralConfig) Percent() decimal.Decimal {
	d, err := decimal.NewFromString(c.CommissionPercent)
	if err != nil {
		return decimal.Zero
	}
	return d
}

type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	CheckOrigin     bool          `yaml:"check_origin"`
	PingPeriod      time.Duration `yaml:"ping_period"`
}

type SecurityConfig struct {
	APIKey string `yaml:"api_key"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	configPath := os.Getenv("DVS_CONFIG")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	configData, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(configData, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		config.Database.Password = v
	}
	if v := os.Getenv("DVS_API_KEY"); v != "" {
		config.Security.APIKey = v
	}

	return &config, nil
}
