package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/contractor-pipeline/internal/blob"
	"github.com/sells-group/contractor-pipeline/internal/db"
	"github.com/sells-group/contractor-pipeline/internal/pipelinedb"
	"github.com/sells-group/contractor-pipeline/pkg/salesforce"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig            `yaml:"store" mapstructure:"store"`
	Dedup      pipelinedb.DedupConfig `yaml:"dedup" mapstructure:"dedup"`
	Audit      AuditConfig            `yaml:"audit" mapstructure:"audit"`
	Export     ExportConfig           `yaml:"export" mapstructure:"export"`
	Warehouse  WarehouseConfig        `yaml:"warehouse" mapstructure:"warehouse"`
	Salesforce salesforce.Config      `yaml:"salesforce" mapstructure:"salesforce"`
	Notion     NotionConfig           `yaml:"notion" mapstructure:"notion"`
	S3         blob.Config            `yaml:"s3" mapstructure:"s3"`
	Server     ServerConfig           `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig       `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig              `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the pipeline database.
type StoreConfig struct {
	Driver          string `yaml:"driver" mapstructure:"driver"`
	Path            string `yaml:"path" mapstructure:"path"`
	AuthToken       string `yaml:"auth_token" mapstructure:"auth_token"`
	BusyTimeoutSecs int    `yaml:"busy_timeout_secs" mapstructure:"busy_timeout_secs"`
	Actor           string `yaml:"actor" mapstructure:"actor"`
}

// AuditConfig tunes the change trail and the import lock.
type AuditConfig struct {
	BatchSize       int `yaml:"batch_size" mapstructure:"batch_size"`
	LockTimeoutMins int `yaml:"lock_timeout_mins" mapstructure:"lock_timeout_mins"`
}

// ExportConfig sets the default lead-list export.
type ExportConfig struct {
	Dir           string   `yaml:"dir" mapstructure:"dir"`
	Formats       []string `yaml:"formats" mapstructure:"formats"`
	MinCategories int      `yaml:"min_categories" mapstructure:"min_categories"`
	RequireEmail  bool     `yaml:"require_email" mapstructure:"require_email"`
}

// WarehouseConfig points the snapshot publisher at Postgres.
type WarehouseConfig struct {
	DatabaseURL string        `yaml:"database_url" mapstructure:"database_url"`
	Schema      string        `yaml:"schema" mapstructure:"schema"`
	BatchSize   int           `yaml:"batch_size" mapstructure:"batch_size"`
	Pool        db.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// NotionConfig holds Notion API credentials and the lead database ID.
type NotionConfig struct {
	Token     string  `yaml:"token" mapstructure:"token"`
	LeadDB    string  `yaml:"lead_db" mapstructure:"lead_db"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Port            int      `yaml:"port" mapstructure:"port"`
	CORSOrigins     []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RequestTimeoutS int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// MonitoringConfig configures import health alerts.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	StaleLockMins        int     `yaml:"stale_lock_mins" mapstructure:"stale_lock_mins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := pipelinedb.DefaultDedupConfig()
	v.SetDefault("store.driver", pipelinedb.DriverSQLite)
	v.SetDefault("store.path", "contractors.db")
	v.SetDefault("store.busy_timeout_secs", 5)
	v.SetDefault("store.auth_token", "")
	v.SetDefault("store.actor", "")
	v.SetDefault("dedup.domain_threshold", def.DomainThreshold)
	v.SetDefault("dedup.fuzzy_threshold", def.FuzzyThreshold)
	v.SetDefault("dedup.domain_candidate_limit", def.DomainCandidateLimit)
	v.SetDefault("dedup.fuzzy_candidate_limit", def.FuzzyCandidateLimit)
	v.SetDefault("dedup.min_name_length", def.MinNameLength)
	v.SetDefault("dedup.created_contact_confidence", def.CreatedContactConfidence)
	v.SetDefault("dedup.merged_contact_confidence", def.MergedContactConfidence)
	v.SetDefault("audit.batch_size", 1000)
	v.SetDefault("audit.lock_timeout_mins", 30)
	v.SetDefault("export.dir", "exports")
	v.SetDefault("export.formats", []string{"csv", "json", "xlsx"})
	v.SetDefault("export.min_categories", 2)
	v.SetDefault("export.require_email", false)
	v.SetDefault("warehouse.database_url", "")
	v.SetDefault("warehouse.schema", "leadgen")
	v.SetDefault("warehouse.batch_size", 5000)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.client_id", "")
	v.SetDefault("salesforce.username", "")
	v.SetDefault("salesforce.key_path", "")
	v.SetDefault("salesforce.rate_limit", 5.0)
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.lead_db", "")
	v.SetDefault("notion.rate_limit", 3.0)
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.prefix", "leadgen")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_timeout_secs", 30)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.stale_lock_mins", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// PipelineDB returns the pipeline database settings.
func (c *Config) PipelineDB() pipelinedb.Config {
	return pipelinedb.Config{
		Driver:         c.Store.Driver,
		DSN:            c.Store.Path,
		AuthToken:      c.Store.AuthToken,
		BusyTimeout:    time.Duration(c.Store.BusyTimeoutSecs) * time.Second,
		AuditBatchSize: c.Audit.BatchSize,
		LockTimeout:    time.Duration(c.Audit.LockTimeoutMins) * time.Minute,
		Dedup:          c.Dedup,
	}
}

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "import", "report":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "warehouse":
		if c.Warehouse.DatabaseURL == "" {
			errs = append(errs, "warehouse.database_url is required")
		}
	case "salesforce":
		if c.Salesforce.ClientID == "" {
			errs = append(errs, "salesforce.client_id is required")
		}
		if c.Salesforce.Username == "" {
			errs = append(errs, "salesforce.username is required")
		}
		if c.Salesforce.KeyPath == "" {
			errs = append(errs, "salesforce.key_path is required")
		}
	case "notion":
		if c.Notion.Token == "" {
			errs = append(errs, "notion.token is required")
		}
		if c.Notion.LeadDB == "" {
			errs = append(errs, "notion.lead_db is required")
		}
	case "upload":
		if c.S3.Bucket == "" {
			errs = append(errs, "s3.bucket is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case pipelinedb.DriverSQLite, pipelinedb.DriverLibSQL:
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be %q or %q", pipelinedb.DriverSQLite, pipelinedb.DriverLibSQL))
	}
	if c.Store.Path == "" {
		errs = append(errs, "store.path is required")
	}
	if c.Dedup.FuzzyThreshold < 0 || c.Dedup.FuzzyThreshold > 1 {
		errs = append(errs, "dedup.fuzzy_threshold must be between 0 and 1")
	}
	if c.Dedup.DomainThreshold < 0 || c.Dedup.DomainThreshold > 1 {
		errs = append(errs, "dedup.domain_threshold must be between 0 and 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
