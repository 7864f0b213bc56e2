package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/records-cli/internal/artifacts"
	"github.com/sells-group/records-cli/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Agent      AgentConfig      `yaml:"agent" mapstructure:"agent"`
	Requester  model.Requester  `yaml:"requester" mapstructure:"requester"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	PDF        PDFConfig        `yaml:"pdf" mapstructure:"pdf"`
	Artifacts  artifacts.Config `yaml:"artifacts" mapstructure:"artifacts"`
	Evidence   EvidenceConfig   `yaml:"evidence" mapstructure:"evidence"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AgentConfig holds the hosted browser agent settings.
type AgentConfig struct {
	APIKey           string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	MaxSteps         int    `yaml:"max_steps" mapstructure:"max_steps"`
	PollIntervalSecs int    `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RetryAttempts    int    `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	BreakerThreshold int    `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldown  int    `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	RateLimitSecs int  `yaml:"rate_limit_secs" mapstructure:"rate_limit_secs"`
	MaxRetries    int  `yaml:"max_retries" mapstructure:"max_retries"`
	Resume        bool `yaml:"resume" mapstructure:"resume"`
}

// PDFConfig configures PDF download and fill.
type PDFConfig struct {
	DownloadDir         string `yaml:"download_dir" mapstructure:"download_dir"`
	FilledDir           string `yaml:"filled_dir" mapstructure:"filled_dir"`
	PdftkPath           string `yaml:"pdftk_path" mapstructure:"pdftk_path"`
	DownloadTimeoutSecs int    `yaml:"download_timeout_secs" mapstructure:"download_timeout_secs"`
}

// EvidenceConfig points at an optional override of the outcome evidence tables.
type EvidenceConfig struct {
	RulesPath string `yaml:"rules_path" mapstructure:"rules_path"`
}

// MonitoringConfig configures failure-rate alerting.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	ManualRateThreshold  float64 `yaml:"manual_rate_threshold" mapstructure:"manual_rate_threshold"`
	MinResults           int     `yaml:"min_results" mapstructure:"min_results"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// ServerConfig configures the read-only results API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and the environment.
// Environment variables use the RECORDS_ prefix, e.g. RECORDS_AGENT_API_KEY.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RECORDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "data/submissions.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("server.port", 8080)
	v.SetDefault("agent.base_url", "https://api.browser-use.com/api/v2")
	v.SetDefault("agent.max_steps", 30)
	v.SetDefault("agent.poll_interval_secs", 5)
	v.SetDefault("agent.timeout_secs", 900)
	v.SetDefault("agent.retry_attempts", 3)
	v.SetDefault("agent.breaker_threshold", 5)
	v.SetDefault("agent.breaker_cooldown_secs", 120)
	v.SetDefault("requester.name", "John Doe")
	v.SetDefault("requester.email", "test@example.com")
	v.SetDefault("requester.address", "123 Main St, City, State 12345")
	v.SetDefault("requester.phone", "")
	v.SetDefault("requester.password", "")
	v.SetDefault("batch.rate_limit_secs", 30)
	v.SetDefault("batch.max_retries", 3)
	v.SetDefault("batch.resume", true)
	v.SetDefault("pdf.download_dir", "data/downloads")
	v.SetDefault("pdf.filled_dir", "data/filled_pdfs")
	v.SetDefault("pdf.pdftk_path", "pdftk")
	v.SetDefault("pdf.download_timeout_secs", 60)
	v.SetDefault("artifacts.bucket", "records")
	v.SetDefault("artifacts.enabled", false)
	v.SetDefault("evidence.rules_path", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.manual_rate_threshold", 0.25)
	v.SetDefault("monitoring.min_results", 5)
	v.SetDefault("monitoring.check_interval_secs", 300)

	// AutomaticEnv only sees keys viper already knows about.
	for _, key := range []string{
		"store.database_url", "agent.api_key",
		"artifacts.endpoint", "artifacts.access_key", "artifacts.secret_key", "artifacts.prefix", "artifacts.use_ssl",
		"monitoring.webhook_url",
	} {
		_ = v.BindEnv(key)
	}

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

// Validate checks the settings a command mode needs: "run" submits forms,
// "results" only reads the store, "serve" also listens on a port.
func (c *Config) Validate(mode string) error {
	var errs *multierror.Error

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			errs = multierror.Append(errs, eris.New("store.path is required for sqlite"))
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = multierror.Append(errs, eris.New("store.database_url is required for postgres"))
		}
	default:
		errs = multierror.Append(errs, eris.Errorf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}

	switch mode {
	case "run":
		if c.Agent.APIKey == "" {
			errs = multierror.Append(errs, eris.New("agent.api_key is required"))
		}
		if c.Requester.Name == "" || c.Requester.Email == "" {
			errs = multierror.Append(errs, eris.New("requester.name and requester.email are required"))
		}
		if c.Batch.RateLimitSecs < 0 {
			errs = multierror.Append(errs, eris.New("batch.rate_limit_secs must be >= 0"))
		}
		if c.Batch.MaxRetries < 1 {
			errs = multierror.Append(errs, eris.New("batch.max_retries must be >= 1"))
		}
		if c.Agent.TimeoutSecs <= 0 || c.Agent.PollIntervalSecs <= 0 {
			errs = multierror.Append(errs, eris.New("agent.timeout_secs and agent.poll_interval_secs must be > 0"))
		}
		if c.Artifacts.Enabled && c.Artifacts.Endpoint == "" {
			errs = multierror.Append(errs, eris.New("artifacts.endpoint is required when artifacts are enabled"))
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = multierror.Append(errs, eris.New("server.port must be > 0"))
		}
	case "results":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	for name, v := range map[string]float64{
		"monitoring.failure_rate_threshold": c.Monitoring.FailureRateThreshold,
		"monitoring.manual_rate_threshold":  c.Monitoring.ManualRateThreshold,
	} {
		if v < 0 || v > 1 {
			errs = multierror.Append(errs, eris.Errorf("%s must be between 0 and 1", name))
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return eris.Wrapf(err, "config: invalid for %s", mode)
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
