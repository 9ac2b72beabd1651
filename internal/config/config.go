package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AppConfig         *AppConfig
	AIConfig          *AIConfig
	BrowserConfig     *BrowserConfig
	CaptchaConfig     *CaptchaConfig
	UnsubscribeConfig *UnsubscribeConfig
	HistoryConfig     *HistoryConfig
	TelemetryConfig   *TelemetryConfig
}

type AppConfig struct {
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	Debug         bool   `envconfig:"DEBUG" default:"false"`
	LogFile       string `envconfig:"LOG_FILE"`
	LogMaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" default:"10"`
	LogMaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"3"`
	LogMaxAgeDays int    `envconfig:"LOG_MAX_AGE_DAYS" default:"7"`
	UserEmail     string `envconfig:"USER_EMAIL"`
}

type AIConfig struct {
	Provider    string  `envconfig:"AI_PROVIDER" default:"gemini"`
	APIKey      string  `envconfig:"AI_API_KEY"`
	Model       string  `envconfig:"AI_MODEL" default:"gemini-2.0-flash"`
	Temperature float32 `envconfig:"AI_TEMPERATURE" default:"0.2"`
	BaseURL     string  `envconfig:"AI_BASE_URL"`
	MaxTokens   int     `envconfig:"AI_MAX_TOKENS" default:"2048"`
}

type BrowserConfig struct {
	Headless           bool          `envconfig:"BROWSER_HEADLESS" default:"true"`
	Install            bool          `envconfig:"BROWSER_INSTALL" default:"false"`
	SlowMo             int           `envconfig:"BROWSER_SLOW_MO" default:"0"`
	NavigationTimeout  time.Duration `envconfig:"BROWSER_NAVIGATION_TIMEOUT" default:"20s"`
	NetworkIdleTimeout time.Duration `envconfig:"BROWSER_NETWORK_IDLE_TIMEOUT" default:"15s"`
	ActionTimeout      time.Duration `envconfig:"BROWSER_ACTION_TIMEOUT" default:"10s"`
}

type CaptchaConfig struct {
	APIKey         string        `envconfig:"CAPTCHA_API_KEY"`
	BaseURL        string        `envconfig:"CAPTCHA_BASE_URL" default:"https://api.capsolver.com"`
	PollInterval   time.Duration `envconfig:"CAPTCHA_POLL_INTERVAL" default:"10s"`
	Budget         time.Duration `envconfig:"CAPTCHA_BUDGET" default:"120s"`
	TasksPerMinute int           `envconfig:"CAPTCHA_TASKS_PER_MINUTE" default:"20"`
}

type UnsubscribeConfig struct {
	EvidenceDir       string        `envconfig:"UNSUBSCRIBE_EVIDENCE_DIR" default:"screenshots"`
	SummaryMode       string        `envconfig:"UNSUBSCRIBE_SUMMARY_MODE" default:"structured"`
	AlwaysFallback    bool          `envconfig:"UNSUBSCRIBE_ALWAYS_FALLBACK" default:"false"`
	ClickWait         time.Duration `envconfig:"UNSUBSCRIBE_CLICK_WAIT" default:"5s"`
	SettleDelay       time.Duration `envconfig:"UNSUBSCRIBE_SETTLE_DELAY" default:"3s"`
	DelayedActionWait time.Duration `envconfig:"UNSUBSCRIBE_DELAYED_ACTION_WAIT" default:"2s"`
	HTMLLimit         int           `envconfig:"UNSUBSCRIBE_HTML_LIMIT" default:"16000"`
	Concurrency       int           `envconfig:"UNSUBSCRIBE_CONCURRENCY" default:"1"`
}

type HistoryConfig struct {
	DBPath string `envconfig:"HISTORY_DB_PATH" default:"data/history.db"`
}

type TelemetryConfig struct {
	ServiceName   string `envconfig:"SERVICE_NAME" default:"unsubscribe-agent"`
	TraceExporter string `envconfig:"TRACE_EXPORTER" default:"none"`
	MetricsAddr   string `envconfig:"METRICS_ADDR"`
}

const (
	SummaryStructured = "structured"
	SummaryRawHTML    = "html"
)

func GetConfig() (*Config, error) {
	_ = godotenv.Load()

	var conf Config

	if err := envconfig.Process("", &conf); err != nil {
		return nil, fmt.Errorf("read config from env vars: %w", err)
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}

	return &conf, nil
}

func (c *Config) validate() error {
	switch c.UnsubscribeConfig.SummaryMode {
	case SummaryStructured, SummaryRawHTML:
	default:
		return fmt.Errorf("unknown UNSUBSCRIBE_SUMMARY_MODE %q", c.UnsubscribeConfig.SummaryMode)
	}

	if c.UnsubscribeConfig.Concurrency < 1 {
		return fmt.Errorf("UNSUBSCRIBE_CONCURRENCY must be positive, got %d", c.UnsubscribeConfig.Concurrency)
	}

	if c.CaptchaConfig.PollInterval <= 0 || c.CaptchaConfig.Budget <= 0 {
		return fmt.Errorf("CAPTCHA_POLL_INTERVAL and CAPTCHA_BUDGET must be positive")
	}

	return nil
}
