package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Directory DirectoryConfig `yaml:"directory" mapstructure:"directory"`
	Outreach  OutreachConfig  `yaml:"outreach" mapstructure:"outreach"`
	Crawl     CrawlConfig     `yaml:"crawl" mapstructure:"crawl"`
	SMTP      SMTPConfig      `yaml:"smtp" mapstructure:"smtp"`
	IMAP      IMAPConfig      `yaml:"imap" mapstructure:"imap"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the contact store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // postgres | sqlite | csv
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	CSVPath     string `yaml:"csv_path" mapstructure:"csv_path"`
}

// DirectoryConfig identifies the public directory site listings live on.
type DirectoryConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Name    string `yaml:"name" mapstructure:"name"`
}

// OutreachConfig holds sender identity and per-run volume caps.
type OutreachConfig struct {
	ReplyTo       string `yaml:"reply_to" mapstructure:"reply_to"`
	SenderName    string `yaml:"sender_name" mapstructure:"sender_name"`
	ForwardTo     string `yaml:"forward_to" mapstructure:"forward_to"`
	DailyLimit    int    `yaml:"daily_limit" mapstructure:"daily_limit"`
	FollowUpLimit int    `yaml:"followup_limit" mapstructure:"followup_limit"`
	ClassifyLimit int    `yaml:"classify_limit" mapstructure:"classify_limit"`
	City          string `yaml:"city" mapstructure:"city"`
}

// CrawlConfig bounds the site-probing behavior.
type CrawlConfig struct {
	FetchTimeoutSecs  int `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	SubmitTimeoutSecs int `yaml:"submit_timeout_secs" mapstructure:"submit_timeout_secs"`
	RowDelayMillis    int `yaml:"row_delay_millis" mapstructure:"row_delay_millis"`
}

// SMTPConfig holds outbound mail credentials. Username defaults to the
// reply-to address when empty.
type SMTPConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// IMAPConfig holds inbox credentials for the forwarder. Username and
// password fall back to the SMTP values when empty.
type IMAPConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// FetchTimeout returns the page-fetch timeout as a duration.
func (c CrawlConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSecs) * time.Second
}

// SubmitTimeout returns the form-submit/SMTP timeout as a duration.
func (c CrawlConfig) SubmitTimeout() time.Duration {
	return time.Duration(c.SubmitTimeoutSecs) * time.Second
}

// RowDelay returns the enforced pause between processed rows.
func (c CrawlConfig) RowDelay() time.Duration {
	return time.Duration(c.RowDelayMillis) * time.Millisecond
}

// SMTPUser returns the SMTP login, falling back to the reply-to address.
func (c *Config) SMTPUser() string {
	if c.SMTP.Username != "" {
		return c.SMTP.Username
	}
	return c.Outreach.ReplyTo
}

// IMAPUser returns the IMAP login, falling back to the reply-to address.
func (c *Config) IMAPUser() string {
	if c.IMAP.Username != "" {
		return c.IMAP.Username
	}
	return c.Outreach.ReplyTo
}

// IMAPPassword returns the IMAP password, falling back to the SMTP password.
func (c *Config) IMAPPassword() string {
	if c.IMAP.Password != "" {
		return c.IMAP.Password
	}
	return c.SMTP.Password
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees keys viper knows about, and AutomaticEnv alone
	// does not register any. Bind every key so values set only through the
	// environment (credentials in particular) survive Unmarshal.
	for _, key := range []string{
		"store.driver", "store.database_url", "store.csv_path",
		"directory.base_url", "directory.name",
		"outreach.reply_to", "outreach.sender_name", "outreach.forward_to",
		"outreach.daily_limit", "outreach.followup_limit", "outreach.classify_limit",
		"outreach.city",
		"crawl.fetch_timeout_secs", "crawl.submit_timeout_secs", "crawl.row_delay_millis",
		"smtp.host", "smtp.port", "smtp.username", "smtp.password",
		"imap.host", "imap.port", "imap.username", "imap.password",
		"log.level", "log.format",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("directory.base_url", "https://providory.com")
	v.SetDefault("directory.name", "Providory")
	v.SetDefault("outreach.sender_name", "Providory Partnerships")
	v.SetDefault("outreach.daily_limit", 8)
	v.SetDefault("outreach.followup_limit", 10)
	v.SetDefault("outreach.classify_limit", 100)
	v.SetDefault("crawl.fetch_timeout_secs", 20)
	v.SetDefault("crawl.submit_timeout_secs", 25)
	v.SetDefault("crawl.row_delay_millis", 1000)
	v.SetDefault("smtp.host", "mail.spacemail.com")
	v.SetDefault("smtp.port", 465)
	v.SetDefault("imap.host", "mail.spacemail.com")
	v.SetDefault("imap.port", 993)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
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

// ValidateSend checks the fields every outbound-mail command needs. Missing
// values are fatal before any row is processed.
func (c *Config) ValidateSend() error {
	if strings.TrimSpace(c.Outreach.ReplyTo) == "" {
		return eris.New("config: outreach.reply_to is required")
	}
	if strings.TrimSpace(c.SMTP.Password) == "" {
		return eris.New("config: smtp.password is required")
	}
	return nil
}

// ValidateStore checks that the configured store backend is usable.
func (c *Config) ValidateStore() error {
	switch c.Store.Driver {
	case "postgres", "sqlite":
		if strings.TrimSpace(c.Store.DatabaseURL) == "" {
			return eris.Errorf("config: store.database_url is required for driver %q", c.Store.Driver)
		}
	case "csv":
		if strings.TrimSpace(c.Store.CSVPath) == "" {
			return eris.New("config: store.csv_path is required for driver csv")
		}
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	return nil
}

// ValidateForward checks the fields the inbox forwarder needs.
func (c *Config) ValidateForward() error {
	if strings.TrimSpace(c.Outreach.ForwardTo) == "" {
		return eris.New("config: outreach.forward_to is required")
	}
	if strings.TrimSpace(c.IMAPPassword()) == "" {
		return eris.New("config: imap.password (or smtp.password fallback) is required")
	}
	return c.ValidateSend()
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
