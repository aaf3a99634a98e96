package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port int `mapstructure:"port"` // health and metrics listener
	} `mapstructure:"server"`
	HTTP     HTTPConfig `mapstructure:"http"`
	Database struct {
		PostgresDSN         string        `mapstructure:"postgresDSN"`
		Schema              string        `mapstructure:"schema"`
		PostgresAutoMigrate bool          `mapstructure:"postgresAutoMigrate"`
		MaxOpenConns        int           `mapstructure:"maxOpenConns"`
		MaxIdleConns        int           `mapstructure:"maxIdleConns"`
		ConnMaxLifetime     time.Duration `mapstructure:"connMaxLifetime"`
	} `mapstructure:"database"`
	NATS struct {
		URL        string             `mapstructure:"url"`
		Inbound    ConsumerNatsConfig `mapstructure:"inbound"`
		DLQSubject string             `mapstructure:"dlqSubject"` // base subject, owner id is appended
	} `mapstructure:"nats"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	Metrics   struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	InboundRPS   float64       `mapstructure:"inboundRps"`   // webhook requests per second
	InboundBurst int           `mapstructure:"inboundBurst"` // webhook burst size
}

// IngestionConfig names the account that owns leads created by inbound
// channels and whether unknown senders get a placeholder lead.
type IngestionConfig struct {
	OwnerID        string `mapstructure:"ownerId"`
	Origen         string `mapstructure:"origen"`
	AutoCreateLead bool   `mapstructure:"autoCreateLead"`
}

// ConsumerNatsConfig holds configuration specific to a NATS consumer
type ConsumerNatsConfig struct {
	MaxAge       int64         `mapstructure:"maxAge"` // max age of messages in days
	Stream       string        `mapstructure:"stream"`
	Consumer     string        `mapstructure:"consumer"` // durable name
	QueueGroup   string        `mapstructure:"group"`
	SubjectList  []string      `mapstructure:"subjectList"`
	MaxDeliver   int           `mapstructure:"maxDeliver"`   // attempts before the DLQ
	NakBaseDelay time.Duration `mapstructure:"nakBaseDelay"` // first NAK delay, doubled per attempt
	NakMaxDelay  time.Duration `mapstructure:"nakMaxDelay"`
}

// LoadConfig reads configuration from a local .env, an optional default.yaml
// and the environment, in increasing order of precedence.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("metrics.enabled", true)

	v.SetDefault("http.port", 3001)
	v.SetDefault("http.readTimeout", 15*time.Second)
	v.SetDefault("http.writeTimeout", 15*time.Second)
	v.SetDefault("http.inboundRps", 50.0)
	v.SetDefault("http.inboundBurst", 100)

	v.SetDefault("database.schema", "public")
	v.SetDefault("database.postgresAutoMigrate", true)
	v.SetDefault("database.maxOpenConns", 20)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", 30*time.Minute)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.dlqSubject", "v1.dlq.inbound")
	v.SetDefault("nats.inbound.maxAge", 7)
	v.SetDefault("nats.inbound.stream", "inbound_messages")
	v.SetDefault("nats.inbound.consumer", "lead-pipeline-inbound")
	v.SetDefault("nats.inbound.group", "lead-pipeline")
	v.SetDefault("nats.inbound.subjectList", []string{"v1.inbound.whatsapp"})
	v.SetDefault("nats.inbound.maxDeliver", 5)
	v.SetDefault("nats.inbound.nakBaseDelay", time.Second)
	v.SetDefault("nats.inbound.nakMaxDelay", 30*time.Second)

	v.SetDefault("ingestion.origen", "whatsapp")
	v.SetDefault("ingestion.autoCreateLead", true)

	v.SetConfigName("default")
	v.SetConfigType("yaml")

	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("$HOME/.lead-pipeline-core")
	v.AddConfigPath("/etc/lead-pipeline-core")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvs(v, Config{})

	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		v.Set("database.postgresDSN", dsn)
	}
	if lgLevel := os.Getenv("LOG_LEVEL"); lgLevel != "" {
		v.Set("logLevel", lgLevel)
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		v.Set("nats.url", url)
	}
	if owner := os.Getenv("INGESTION_OWNER_ID"); owner != "" {
		v.Set("ingestion.ownerId", owner)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &config, nil
}

// bindEnvs walks the mapstructure tags so nested keys resolve from env vars
// (database.postgresDSN -> DATABASE_POSTGRESDSN).
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

		path := append(append([]string{}, parts...), tag)
		key := strings.Join(path, ".")

		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		_ = v.BindEnv(key)
	}
}
