package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillm/verigate/internal/domain"
)

// Config содержит все настройки приложения
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Verification VerificationConfig
	Anchor       AnchorConfig
	Telegram     TelegramConfig
	LogLevel     string
	LogFile      string // пусто: только stdout
}

type ServerConfig struct {
	Port int
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Enabled хранилище опционально: без DB_HOST сервис работает без аудита
func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

// VerificationConfig настройки двух сервисов верификации
type VerificationConfig struct {
	PolicyURL     string // удаленный policy-сервис
	PolicyPath    string // локальный YAML, если PolicyURL не задан
	PolicyProfile string
	RiskURL       string
	PolicyTimeout time.Duration
	RiskTimeout   time.Duration
	Deadline      time.Duration
	Retries       int
	RetryDelay    time.Duration
}

// AnchorConfig настройки анкоринга в леджер
type AnchorConfig struct {
	Enabled         bool
	RPCURL          string
	ContractAddress string
	PrivateKey      string
	Timeout         time.Duration
	QueueSize       int
}

type TelegramConfig struct {
	BotToken        string
	ChatID          int64
	AlertsPerMinute int
}

// Enabled алерты включаются наличием токена
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != ""
}

// Load загружает конфигурацию из .env файла
func Load() (*Config, error) {
	// Загружаем .env файл (если есть)
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using environment variables")
	}

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	maxOpenConns, err := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "25"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
	}

	maxIdleConns, err := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_IDLE_CONNS: %w", err)
	}

	connMaxLifetime, err := time.ParseDuration(getEnv("DB_CONN_MAX_LIFETIME", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME: %w", err)
	}

	policyTimeout, err := time.ParseDuration(getEnv("POLICY_TIMEOUT", "2s"))
	if err != nil {
		return nil, fmt.Errorf("invalid POLICY_TIMEOUT: %w", err)
	}

	riskTimeout, err := time.ParseDuration(getEnv("RISK_TIMEOUT", "2s"))
	if err != nil {
		return nil, fmt.Errorf("invalid RISK_TIMEOUT: %w", err)
	}

	deadline, err := time.ParseDuration(getEnv("PREVIEW_DEADLINE", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid PREVIEW_DEADLINE: %w", err)
	}

	retries, err := strconv.Atoi(getEnv("VERIFICATION_RETRIES", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid VERIFICATION_RETRIES: %w", err)
	}

	retryDelay, err := time.ParseDuration(getEnv("VERIFICATION_RETRY_DELAY", "100ms"))
	if err != nil {
		return nil, fmt.Errorf("invalid VERIFICATION_RETRY_DELAY: %w", err)
	}

	anchorEnabled, err := strconv.ParseBool(getEnv("ANCHOR_ENABLED", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid ANCHOR_ENABLED: %w", err)
	}

	anchorTimeoutMs, err := strconv.Atoi(getEnv("ANCHOR_TIMEOUT_MS", strconv.Itoa(domain.DefaultAnchorTimeoutMs)))
	if err != nil {
		return nil, fmt.Errorf("invalid ANCHOR_TIMEOUT_MS: %w", err)
	}

	anchorQueue, err := strconv.Atoi(getEnv("ANCHOR_QUEUE_SIZE", "256"))
	if err != nil {
		return nil, fmt.Errorf("invalid ANCHOR_QUEUE_SIZE: %w", err)
	}

	chatID, err := strconv.ParseInt(getEnv("TELEGRAM_CHAT_ID", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
	}

	alertsPerMinute, err := strconv.Atoi(getEnv("TELEGRAM_ALERTS_PER_MINUTE", "6"))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_ALERTS_PER_MINUTE: %w", err)
	}

	config := &Config{
		Server: ServerConfig{
			Port: port,
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", ""),
			Port:            dbPort,
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			DBName:          getEnv("DB_NAME", "verigate"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    maxOpenConns,
			MaxIdleConns:    maxIdleConns,
			ConnMaxLifetime: connMaxLifetime,
		},
		Verification: VerificationConfig{
			PolicyURL:     getEnv("POLICY_SERVICE_URL", ""),
			PolicyPath:    getEnv("POLICY_PATH", ""),
			PolicyProfile: getEnv("POLICY_PROFILE", "moderate"),
			RiskURL:       getEnv("RISK_SERVICE_URL", ""),
			PolicyTimeout: policyTimeout,
			RiskTimeout:   riskTimeout,
			Deadline:      deadline,
			Retries:       retries,
			RetryDelay:    retryDelay,
		},
		Anchor: AnchorConfig{
			Enabled:         anchorEnabled,
			RPCURL:          getEnv("ANCHOR_RPC_URL", ""),
			ContractAddress: getEnv("ANCHOR_CONTRACT_ADDRESS", ""),
			PrivateKey:      getEnv("ANCHOR_PRIVATE_KEY", ""),
			Timeout:         time.Duration(anchorTimeoutMs) * time.Millisecond,
			QueueSize:       anchorQueue,
		},
		Telegram: TelegramConfig{
			BotToken:        getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:          chatID,
			AlertsPerMinute: alertsPerMinute,
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate проверяет обязательные поля конфигурации
func (c *Config) Validate() error {
	if c.Verification.PolicyURL == "" && c.Verification.PolicyPath == "" {
		return &domain.ConfigurationError{Key: "POLICY_SERVICE_URL", Reason: "or POLICY_PATH is required"}
	}
	if c.Verification.RiskURL == "" {
		return domain.MissingConfig("RISK_SERVICE_URL")
	}
	if c.Verification.PolicyTimeout <= 0 || c.Verification.RiskTimeout <= 0 {
		return &domain.ConfigurationError{Key: "POLICY_TIMEOUT/RISK_TIMEOUT", Reason: "must be positive"}
	}
	if c.Verification.Retries < 0 {
		return &domain.ConfigurationError{Key: "VERIFICATION_RETRIES", Reason: "must not be negative"}
	}
	if c.Database.Enabled() && c.Database.Password == "" {
		return domain.MissingConfig("DB_PASSWORD")
	}
	if c.Telegram.Enabled() && c.Telegram.ChatID == 0 {
		return domain.MissingConfig("TELEGRAM_CHAT_ID")
	}
	if c.Anchor.Enabled {
		if err := c.Anchor.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate проверяет обязательные настройки анкоринга; таймаут имеет значение по умолчанию
func (a AnchorConfig) Validate() error {
	if a.RPCURL == "" {
		return domain.MissingConfig("ANCHOR_RPC_URL")
	}
	if a.ContractAddress == "" {
		return domain.MissingConfig("ANCHOR_CONTRACT_ADDRESS")
	}
	if a.PrivateKey == "" {
		return domain.MissingConfig("ANCHOR_PRIVATE_KEY")
	}
	if a.Timeout <= 0 {
		return &domain.ConfigurationError{Key: "ANCHOR_TIMEOUT_MS", Reason: "must be positive"}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
