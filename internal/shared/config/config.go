package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config — полная конфигурация платежного сервиса
type Config struct {
	Database  DBConfig
	RabbitMQ  MQConfig
	WebSocket WSConfig
	Services  ServicesConfig
	JWT       JWTConfig
	Payment   PaymentConfig
	Log       LogConfig
}

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`

	// пул: репасс держит соединение на время транзакции, не перевода
	MaxConns           int `yaml:"max_conns"`
	StatementTimeoutMs int `yaml:"statement_timeout_ms"`
	LockTimeoutMs      int `yaml:"lock_timeout_ms"`
}

type MQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
}

type WSConfig struct {
	Port int `yaml:"port"`
}

type ServicesConfig struct {
	PaymentServicePort int `yaml:"payment_service"`
}

type JWTConfig struct {
	Secret        string `yaml:"secret"`
	ExpiryMinutes int    `yaml:"expiry_minutes"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// PaymentConfig — настройки хранилища и симулируемого шлюза
type PaymentConfig struct {
	// Storage: postgres | memory
	Storage          string        `yaml:"storage"`
	MessagingEnabled bool          `yaml:"messaging_enabled"`
	Gateway          GatewayConfig `yaml:"gateway"`
}

// GatewayConfig описывает поведение симулятора платежного провайдера и банка
type GatewayConfig struct {
	// Mode: random | approve | decline
	Mode              string  `yaml:"mode"`
	ChargeSuccessRate float64 `yaml:"charge_success_rate"`
	PayoutSuccessRate float64 `yaml:"payout_success_rate"`
	ChargeDelayMs     int     `yaml:"charge_delay_ms"`
	ReversalDelayMs   int     `yaml:"reversal_delay_ms"`
	TransferDelayMs   int     `yaml:"transfer_delay_ms"`
	TimeoutMs         int     `yaml:"timeout_ms"`
	MaxRetries        int     `yaml:"max_retries"`
}

// Default возвращает конфигурацию по умолчанию (локальная разработка)
func Default() Config {
	return Config{
		Database: DBConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "ridehail_user",
			Password: "ridehail_pass",
			Database: "ridehail_db",
			SSLMode:  "disable",

			MaxConns:           10,
			StatementTimeoutMs: 5000,
			LockTimeoutMs:      15000,
		},
		RabbitMQ: MQConfig{
			Host:     "localhost",
			Port:     5672,
			User:     "guest",
			Password: "guest",
			VHost:    "/",
		},
		WebSocket: WSConfig{Port: 8080},
		Services:  ServicesConfig{PaymentServicePort: 3005},
		JWT:       JWTConfig{Secret: "dev_secret", ExpiryMinutes: 60},
		Log:       LogConfig{Level: "info"},
		Payment: PaymentConfig{
			Storage:          "postgres",
			MessagingEnabled: true,
			Gateway: GatewayConfig{
				Mode:              "random",
				ChargeSuccessRate: 0.95,
				PayoutSuccessRate: 0.98,
				ChargeDelayMs:     1500,
				ReversalDelayMs:   1000,
				TransferDelayMs:   1000,
				TimeoutMs:         5000,
				MaxRetries:        2,
			},
		},
	}
}

// Load — загрузка из CONFIG_DIR (по умолчанию ./config) + ENV перекрывает.
// Отсутствующий файл не ошибка, битый YAML — ошибка.
func Load() (Config, error) {
	return LoadFrom(getEnv("CONFIG_DIR", "./config"))
}

// LoadFrom загружает конфигурацию из указанной директории
func LoadFrom(configDir string) (Config, error) {
	cfg := Default()

	files := []struct {
		name string
		dst  any
	}{
		{"db.yaml", &cfg.Database},
		{"mq.yaml", &cfg.RabbitMQ},
		{"ws.yaml", &cfg.WebSocket},
		{"service.yaml", &cfg.Services},
		{"jwt.yaml", &cfg.JWT},
		{"payment.yaml", &cfg.Payment},
		{"log.yaml", &cfg.Log},
	}
	for _, f := range files {
		if err := readYAML(filepath.Join(configDir, f.name), f.dst); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// readYAML читает файл в dst; jwt.yaml допускает вложенную секцию jwt:
func readYAML(path string, dst any) error {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if jwtCfg, ok := dst.(*JWTConfig); ok {
		var nested struct {
			JWT *JWTConfig `yaml:"jwt"`
		}
		if err := yaml.Unmarshal(b, &nested); err == nil && nested.JWT != nil {
			mergeJWT(jwtCfg, *nested.JWT)
			return nil
		}
	}

	if err := yaml.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func mergeJWT(dst *JWTConfig, src JWTConfig) {
	if src.Secret != "" {
		dst.Secret = src.Secret
	}
	if src.ExpiryMinutes > 0 {
		dst.ExpiryMinutes = src.ExpiryMinutes
	}
}

func applyEnv(cfg *Config) {
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = getEnv("DB_NAME", cfg.Database.Database)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", cfg.Database.MaxConns)
	cfg.Database.LockTimeoutMs = getEnvInt("DB_LOCK_TIMEOUT_MS", cfg.Database.LockTimeoutMs)

	cfg.RabbitMQ.Host = getEnv("RABBITMQ_HOST", cfg.RabbitMQ.Host)
	cfg.RabbitMQ.Port = getEnvInt("RABBITMQ_PORT", cfg.RabbitMQ.Port)
	cfg.RabbitMQ.User = getEnv("RABBITMQ_USER", cfg.RabbitMQ.User)
	cfg.RabbitMQ.Password = getEnv("RABBITMQ_PASSWORD", cfg.RabbitMQ.Password)
	cfg.RabbitMQ.VHost = getEnv("RABBITMQ_VHOST", cfg.RabbitMQ.VHost)

	cfg.WebSocket.Port = getEnvInt("WS_PORT", cfg.WebSocket.Port)
	cfg.Services.PaymentServicePort = getEnvInt("PAYMENT_SERVICE_PORT", cfg.Services.PaymentServicePort)

	cfg.JWT.Secret = getEnv("JWT_SECRET", cfg.JWT.Secret)
	cfg.JWT.ExpiryMinutes = getEnvInt("JWT_EXPIRY_MINUTES", cfg.JWT.ExpiryMinutes)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Dir = getEnv("LOG_DIR", cfg.Log.Dir)

	p := &cfg.Payment
	p.Storage = getEnv("PAYMENT_STORAGE", p.Storage)
	p.MessagingEnabled = getEnvBool("PAYMENT_MESSAGING_ENABLED", p.MessagingEnabled)
	p.Gateway.Mode = getEnv("PAYMENT_GATEWAY_MODE", p.Gateway.Mode)
	p.Gateway.ChargeSuccessRate = getEnvFloat("PAYMENT_CHARGE_SUCCESS_RATE", p.Gateway.ChargeSuccessRate)
	p.Gateway.PayoutSuccessRate = getEnvFloat("PAYMENT_PAYOUT_SUCCESS_RATE", p.Gateway.PayoutSuccessRate)
	p.Gateway.ChargeDelayMs = getEnvInt("PAYMENT_CHARGE_DELAY_MS", p.Gateway.ChargeDelayMs)
	p.Gateway.ReversalDelayMs = getEnvInt("PAYMENT_REVERSAL_DELAY_MS", p.Gateway.ReversalDelayMs)
	p.Gateway.TransferDelayMs = getEnvInt("PAYMENT_TRANSFER_DELAY_MS", p.Gateway.TransferDelayMs)
	p.Gateway.TimeoutMs = getEnvInt("PAYMENT_GATEWAY_TIMEOUT_MS", p.Gateway.TimeoutMs)
	p.Gateway.MaxRetries = getEnvInt("PAYMENT_GATEWAY_MAX_RETRIES", p.Gateway.MaxRetries)
}

// Validate проверяет значения, от которых зависит корректность платежей
func (c Config) Validate() error {
	switch c.Payment.Storage {
	case "postgres", "memory":
	default:
		return fmt.Errorf("payment.storage must be postgres or memory, got %q", c.Payment.Storage)
	}
	switch c.Payment.Gateway.Mode {
	case "random", "approve", "decline":
	default:
		return fmt.Errorf("payment.gateway.mode must be random, approve or decline, got %q", c.Payment.Gateway.Mode)
	}
	if r := c.Payment.Gateway.ChargeSuccessRate; r < 0 || r > 1 {
		return fmt.Errorf("payment.gateway.charge_success_rate out of range: %v", r)
	}
	if r := c.Payment.Gateway.PayoutSuccessRate; r < 0 || r > 1 {
		return fmt.Errorf("payment.gateway.payout_success_rate out of range: %v", r)
	}
	if c.Payment.Gateway.MaxRetries < 0 {
		return fmt.Errorf("payment.gateway.max_retries must not be negative")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// DSN возвращает строку подключения к БД
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// AMQPURL возвращает URL подключения к RabbitMQ
func (c MQConfig) AMQPURL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}
