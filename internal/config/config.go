package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Environment string           `mapstructure:"environment" validate:"required"`
	LogLevel    string           `mapstructure:"log_level" validate:"oneof=trace debug info warn warning error fatal panic"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Pipeline    PipelineConfig   `mapstructure:"pipeline"`
	Indicators  IndicatorsConfig `mapstructure:"indicators"`
	Telemetry   TelemetryConfig  `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port" validate:"min=1,max=65535"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	DatabaseURL     string `mapstructure:"database_url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns" validate:"gte=0"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime string `mapstructure:"conn_max_idle_time"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// PipelineConfig holds the dataset preparation defaults.
type PipelineConfig struct {
	SeqLength          int    `mapstructure:"seq_length" validate:"gt=0"`
	MinWindows         int    `mapstructure:"min_windows" validate:"gte=0"`
	TargetColumn       string `mapstructure:"target_column" validate:"required"`
	DegeneratePolicy   string `mapstructure:"degenerate_policy" validate:"oneof=fail unit_scale"`
	ScalerTTL          string `mapstructure:"scaler_ttl"`
	MaxConcurrency     int    `mapstructure:"max_concurrency" validate:"gt=0"`
	ExtendedIndicators bool   `mapstructure:"extended_indicators"`
}

// IndicatorsConfig mirrors features.Params.
type IndicatorsConfig struct {
	SMAPeriods     []int   `mapstructure:"sma_periods" validate:"dive,gt=0"`
	EMAPeriods     []int   `mapstructure:"ema_periods" validate:"dive,gt=0"`
	RSIPeriod      int     `mapstructure:"rsi_period" validate:"gt=0"`
	MACDFast       int     `mapstructure:"macd_fast" validate:"gt=0"`
	MACDSlow       int     `mapstructure:"macd_slow" validate:"gtfield=MACDFast"`
	MACDSignal     int     `mapstructure:"macd_signal" validate:"gt=0"`
	BBPeriod       int     `mapstructure:"bb_period" validate:"gt=1"`
	BBStdDev       float64 `mapstructure:"bb_std_dev" validate:"gte=0"`
	MomentumPeriod int     `mapstructure:"momentum_period" validate:"gt=0"`
	ROCPeriod      int     `mapstructure:"roc_period" validate:"gt=0"`
}

type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Exporter    string `mapstructure:"exporter" validate:"oneof=stdout otlp"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name" validate:"required"`
}

// ScalerTTLDuration parses Pipeline.ScalerTTL. An empty value means no expiry.
func (c PipelineConfig) ScalerTTLDuration() (time.Duration, error) {
	if c.ScalerTTL == "" {
		return 0, nil
	}
	return time.ParseDuration(c.ScalerTTL)
}

var configValidator = validator.New()

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.BindEnv("database.database_url", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind DATABASE_URL environment variable: %w", err)
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Normalize environment and level to lowercase for consistent comparison
	config.Environment = strings.ToLower(config.Environment)
	config.LogLevel = strings.ToLower(config.LogLevel)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks struct constraints and the duration strings.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := c.Pipeline.ScalerTTLDuration(); err != nil {
		return fmt.Errorf("invalid scaler TTL: %w", err)
	}
	for name, value := range map[string]string{
		"conn_max_lifetime":  c.Database.ConnMaxLifetime,
		"conn_max_idle_time": c.Database.ConnMaxIdleTime,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid database %s: %w", name, err)
		}
	}

	if c.Telemetry.Enabled && c.Telemetry.Exporter == "otlp" && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry endpoint is required for the otlp exporter")
	}

	return nil
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Set database defaults
	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "borsa_aslani")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.database_url", "")
	viper.SetDefault("database.max_open_conns", 10)
	viper.SetDefault("database.conn_max_lifetime", "300s")
	viper.SetDefault("database.conn_max_idle_time", "60s")

	// Redis
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Pipeline
	viper.SetDefault("pipeline.seq_length", 60)
	viper.SetDefault("pipeline.min_windows", 1)
	viper.SetDefault("pipeline.target_column", "Close")
	viper.SetDefault("pipeline.degenerate_policy", "fail")
	viper.SetDefault("pipeline.scaler_ttl", "720h")
	viper.SetDefault("pipeline.max_concurrency", 4)
	viper.SetDefault("pipeline.extended_indicators", false)

	// Indicators
	viper.SetDefault("indicators.sma_periods", []int{5, 10})
	viper.SetDefault("indicators.ema_periods", []int{10, 20})
	viper.SetDefault("indicators.rsi_period", 14)
	viper.SetDefault("indicators.macd_fast", 12)
	viper.SetDefault("indicators.macd_slow", 26)
	viper.SetDefault("indicators.macd_signal", 9)
	viper.SetDefault("indicators.bb_period", 20)
	viper.SetDefault("indicators.bb_std_dev", 2.0)
	viper.SetDefault("indicators.momentum_period", 10)
	viper.SetDefault("indicators.roc_period", 10)

	// Telemetry
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.exporter", "stdout")
	viper.SetDefault("telemetry.endpoint", "")
	viper.SetDefault("telemetry.service_name", "borsa-aslani")
}
