package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port          int    `mapstructure:"port"`
		PublicBaseURL string `mapstructure:"publicBaseURL"`
	} `mapstructure:"server"`
	Auth struct {
		JWTSecret string `mapstructure:"jwtSecret"`
	} `mapstructure:"auth"`
	NATS struct {
		URL                 string             `mapstructure:"url"`
		Webhooks            ConsumerNatsConfig `mapstructure:"webhooks"`
		DLQStream           string             `mapstructure:"dlqStream"`
		DLQSubject          string             `mapstructure:"dlqSubject"` // e.g. v1.dlq
		DLQWorkers          int                `mapstructure:"dlqWorkers"`
		DLQBaseDelayMinutes int                `mapstructure:"dlqBaseDelayMinutes"`
		DLQMaxDelayMinutes  int                `mapstructure:"dlqMaxDelayMinutes"`
		DLQMaxAgeDays       int                `mapstructure:"dlqMaxAgeDays"`
		DLQMaxDeliver       int                `mapstructure:"dlqMaxDeliver"`
		DLQAckWait          time.Duration      `mapstructure:"dlqAckWait"`
		DLQMaxAckPending    int                `mapstructure:"dlqMaxAckPending"`
		Gateway             GatewayConfig      `mapstructure:"gateway"`
	} `mapstructure:"nats"`
	Database struct {
		PostgresDSN         string `mapstructure:"postgresDSN"`
		PostgresAutoMigrate bool   `mapstructure:"postgresAutoMigrate"`
	} `mapstructure:"database"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`
	Credentials struct {
		// MasterKey is base64; empty disables envelope encryption.
		MasterKey string `mapstructure:"masterKey"`
	} `mapstructure:"credentials"`
	Sessions  SessionConfig  `mapstructure:"sessions"`
	Reminders ReminderConfig `mapstructure:"reminders"`
	LLM       struct {
		BaseURL            string        `mapstructure:"baseURL"`
		Model              string        `mapstructure:"model"`
		TranscriptionModel string        `mapstructure:"transcriptionModel"`
		Timeout            time.Duration `mapstructure:"timeout"`
	} `mapstructure:"llm"`
	Meta struct {
		GraphBaseURL string `mapstructure:"graphBaseURL"`
	} `mapstructure:"meta"`
	Identity struct {
		WebhookSecret string `mapstructure:"webhookSecret"`
	} `mapstructure:"identity"`
	Google struct {
		RedirectURL string `mapstructure:"redirectURL"`
	} `mapstructure:"google"`
	WorkerPools struct {
		Reply WorkerPoolConfig `mapstructure:"reply"`
	} `mapstructure:"workerPools"`
	Features struct {
		TranscribeVoiceNotes bool `mapstructure:"transcribeVoiceNotes"`
	} `mapstructure:"features"`
}

// WorkerPoolConfig sizes an ants pool.
type WorkerPoolConfig struct {
	PoolSize   int           `mapstructure:"poolSize"`
	QueueSize  int           `mapstructure:"queueSize"`
	MaxBlock   time.Duration `mapstructure:"maxBlock"`
	ExpiryTime time.Duration `mapstructure:"expiryTime"`
}

// ConsumerNatsConfig holds configuration specific to a NATS consumer
type ConsumerNatsConfig struct {
	MaxAge       int64         `mapstructure:"maxAge"` // days
	Stream       string        `mapstructure:"stream"`
	Consumer     string        `mapstructure:"consumer"` // durable name
	QueueGroup   string        `mapstructure:"group"`
	SubjectList  []string      `mapstructure:"subjectList"`
	MaxDeliver   int           `mapstructure:"maxDeliver"`
	NakBaseDelay time.Duration `mapstructure:"nakBaseDelay"`
	NakMaxDelay  time.Duration `mapstructure:"nakMaxDelay"`
}

// GatewayConfig addresses the chat transport gateway over NATS.
type GatewayConfig struct {
	Prefix         string        `mapstructure:"prefix"`
	RequestTimeout time.Duration `mapstructure:"requestTimeout"`
}

// SessionConfig tunes the session registry.
type SessionConfig struct {
	AuthDir             string        `mapstructure:"authDir"`
	ConnectWait         time.Duration `mapstructure:"connectWait"`
	PollInterval        time.Duration `mapstructure:"pollInterval"`
	ReconnectInitial    time.Duration `mapstructure:"reconnectInitial"`
	ReconnectMax        time.Duration `mapstructure:"reconnectMax"`
	ReconnectMaxRetries uint64        `mapstructure:"reconnectMaxRetries"`
}

// ReminderConfig tunes the reminder sweep.
type ReminderConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Window   time.Duration `mapstructure:"window"`
}

// LoadConfig reads configuration from .env, default.yaml and the environment,
// in increasing order of precedence.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("default")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("$HOME/.concierge-engine")
	v.AddConfigPath("/etc/concierge-engine")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, Config{})

	overrides := map[string]string{
		"POSTGRES_DSN":            "database.postgresDSN",
		"LOG_LEVEL":               "logLevel",
		"NATS_URL":                "nats.url",
		"JWT_SECRET":              "auth.jwtSecret",
		"CREDENTIALS_MASTER_KEY":  "credentials.masterKey",
		"IDENTITY_WEBHOOK_SECRET": "identity.webhookSecret",
		"PUBLIC_BASE_URL":         "server.publicBaseURL",
	}
	for env, key := range overrides {
		if val := os.Getenv(env); val != "" {
			v.Set(key, val)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if cfg.Google.RedirectURL == "" && cfg.Server.PublicBaseURL != "" {
		cfg.Google.RedirectURL = strings.TrimRight(cfg.Server.PublicBaseURL, "/") + "/oauth/google/callback"
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.publicBaseURL", "http://localhost:8080")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 2112)
	v.SetDefault("database.postgresAutoMigrate", true)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.webhooks.stream", "WEBHOOKS")
	v.SetDefault("nats.webhooks.consumer", "concierge-webhooks")
	v.SetDefault("nats.webhooks.group", "concierge-webhooks")
	v.SetDefault("nats.webhooks.subjectList", []string{"v1.webhooks.>"})
	v.SetDefault("nats.webhooks.maxAge", 7)
	v.SetDefault("nats.webhooks.maxDeliver", 5)
	v.SetDefault("nats.webhooks.nakBaseDelay", time.Second)
	v.SetDefault("nats.webhooks.nakMaxDelay", 5*time.Minute)

	v.SetDefault("nats.dlqStream", "DLQ")
	v.SetDefault("nats.dlqSubject", "v1.dlq")
	v.SetDefault("nats.dlqWorkers", 8)
	v.SetDefault("nats.dlqBaseDelayMinutes", 1)
	v.SetDefault("nats.dlqMaxDelayMinutes", 15)
	v.SetDefault("nats.dlqMaxAgeDays", 7)
	v.SetDefault("nats.dlqMaxDeliver", 10)
	v.SetDefault("nats.dlqAckWait", 30*time.Second)
	v.SetDefault("nats.dlqMaxAckPending", 1000)

	v.SetDefault("nats.gateway.prefix", "wa.gateway")
	v.SetDefault("nats.gateway.requestTimeout", 15*time.Second)

	v.SetDefault("sessions.authDir", filepath.Join(xdg.DataHome, "concierge-engine", "sessions"))
	v.SetDefault("sessions.connectWait", 10*time.Second)
	v.SetDefault("sessions.pollInterval", 500*time.Millisecond)
	v.SetDefault("sessions.reconnectInitial", 2*time.Second)
	v.SetDefault("sessions.reconnectMax", 2*time.Minute)
	v.SetDefault("sessions.reconnectMaxRetries", 8)

	v.SetDefault("reminders.enabled", true)
	v.SetDefault("reminders.interval", time.Hour)
	v.SetDefault("reminders.window", 30*time.Minute)

	v.SetDefault("llm.baseURL", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.model", "openai/gpt-4o-mini")
	v.SetDefault("llm.transcriptionModel", "whisper-1")
	v.SetDefault("llm.timeout", 60*time.Second)

	v.SetDefault("meta.graphBaseURL", "https://graph.facebook.com/v19.0")

	v.SetDefault("workerPools.reply.poolSize", 10)
	v.SetDefault("workerPools.reply.queueSize", 10000)
	v.SetDefault("workerPools.reply.maxBlock", time.Second)
	v.SetDefault("workerPools.reply.expiryTime", time.Minute)

	v.SetDefault("features.transcribeVoiceNotes", true)
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		path := append(append([]string(nil), parts...), tag)
		key := strings.Join(path, ".")

		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}
		_ = v.BindEnv(key)
	}
}
