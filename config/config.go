package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

type Config struct {
	App       AppConfig       `yaml:"app"`
	Pair      PairConfig      `yaml:"pair"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Feeds     FeedsConfig     `yaml:"feeds"`
	History   HistoryConfig   `yaml:"history"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Store     StoreConfig     `yaml:"store"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// InstrumentConfig names one leg of the pair and the feed it trades on.
type InstrumentConfig struct {
	Symbol string `yaml:"symbol"`
	Feed   string `yaml:"feed"`
}

type PairConfig struct {
	LegA InstrumentConfig `yaml:"leg_a"`
	LegB InstrumentConfig `yaml:"leg_b"`
}

// Name renders the pair as "A/B".
func (p PairConfig) Name() string {
	return p.LegA.Symbol + "/" + p.LegB.Symbol
}

type AnalysisConfig struct {
	Source   string `yaml:"source"`
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Interval string `yaml:"interval"`
	Format   string `yaml:"format"`
}

// Range parses the configured start and end dates.
func (a AnalysisConfig) Range() (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, a.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("analysis.start: %w", err)
	}
	end, err := time.Parse(dateLayout, a.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("analysis.end: %w", err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("analysis.end must be after analysis.start")
	}
	return start, end, nil
}

type MonitorConfig struct {
	Window         int     `yaml:"window"`
	UpperThreshold float64 `yaml:"upper_threshold"`
	LowerThreshold float64 `yaml:"lower_threshold"`
	TickBuffer     int     `yaml:"tick_buffer"`
}

type FeedsConfig struct {
	Binance BinanceFeedConfig `yaml:"binance"`
	Bybit   BybitFeedConfig   `yaml:"bybit"`
	Kucoin  KucoinFeedConfig  `yaml:"kucoin"`
	Alpaca  AlpacaFeedConfig  `yaml:"alpaca"`
}

type BinanceFeedConfig struct {
	Enabled bool `yaml:"enabled"`
	Testnet bool `yaml:"testnet"`
}

type BybitFeedConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

type KucoinFeedConfig struct {
	Enabled            bool   `yaml:"enabled"`
	URL                string `yaml:"url"`
	ReadBufferBytes    int    `yaml:"read_buffer_bytes"`
	ReadMessageBuffer  int    `yaml:"read_message_buffer"`
	WriteMessageBuffer int    `yaml:"write_message_buffer"`
}

type AlpacaFeedConfig struct {
	Enabled   bool          `yaml:"enabled"`
	URL       string        `yaml:"url"`
	KeyID     string        `yaml:"key_id"`
	SecretKey string        `yaml:"secret_key"`
	Reconnect time.Duration `yaml:"reconnect"`
}

type HistoryConfig struct {
	Timeout time.Duration      `yaml:"timeout"`
	Binance BinanceHistoryConf `yaml:"binance"`
	Bybit   BybitHistoryConf   `yaml:"bybit"`
	S3      S3Config           `yaml:"s3"`
}

type BinanceHistoryConf struct {
	URL   string `yaml:"url"`
	Limit int    `yaml:"limit"`
}

type BybitHistoryConf struct {
	URL      string `yaml:"url"`
	Category string `yaml:"category"`
	Limit    int    `yaml:"limit"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type NotifierConfig struct {
	Subject   string          `yaml:"subject"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Timeout   time.Duration   `yaml:"timeout"`
}

type SMTPConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
	// TLS is mandatory, opportunistic or none.
	TLS string `yaml:"tls"`
}

type RateLimitConfig struct {
	PerMinute float64 `yaml:"per_minute"`
	Burst     int     `yaml:"burst"`
}

type StoreConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// ArchiveConfig controls recording of live ticks to the S3 price archive
// configured under history.s3.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxBuffer     int           `yaml:"max_buffer"`
	Workers       int           `yaml:"workers"`
	Compression   string        `yaml:"compression"`
}

type MetricsConfig struct {
	ChannelSize         bool             `yaml:"channel_size"`
	ChannelSizeInterval time.Duration    `yaml:"channel_size_interval"`
	Signals             bool             `yaml:"signals"`
	CloudWatch          CloudWatchConfig `yaml:"cloudwatch"`
	Prometheus          PrometheusConfig `yaml:"prometheus"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type PrometheusConfig struct {
	Enabled bool `yaml:"enabled"`
}

type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	History int    `yaml:"history"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// Default returns a configuration populated with the values the service runs
// with when a key is omitted from the YAML file.
func Default() Config {
	return Config{
		App: AppConfig{Name: "pairwatch", Version: "dev"},
		Analysis: AnalysisConfig{
			Source:   "binance",
			Interval: "1d",
			Format:   "text",
		},
		Monitor: MonitorConfig{
			Window:         60,
			UpperThreshold: 2.0,
			LowerThreshold: -2.0,
			TickBuffer:     1024,
		},
		Feeds: FeedsConfig{
			Bybit:  BybitFeedConfig{URL: "wss://stream.bybit.com/v5/public/linear"},
			Kucoin: KucoinFeedConfig{URL: "https://api-futures.kucoin.com"},
			Alpaca: AlpacaFeedConfig{
				URL:       "wss://stream.data.alpaca.markets/v2/iex",
				Reconnect: 5 * time.Second,
			},
		},
		History: HistoryConfig{
			Timeout: 15 * time.Second,
			Binance: BinanceHistoryConf{Limit: 1500},
			Bybit: BybitHistoryConf{
				URL:      "https://api.bybit.com",
				Category: "linear",
				Limit:    1000,
			},
		},
		Notifier: NotifierConfig{
			Subject: "Pairs Trading Alert",
			SMTP: SMTPConfig{
				Host: "smtp.gmail.com",
				Port: 587,
				TLS:  "mandatory",
			},
			RateLimit: RateLimitConfig{PerMinute: 6, Burst: 1},
			Timeout:   20 * time.Second,
		},
		Store: StoreConfig{
			Redis: RedisConfig{Addr: "localhost:6379", KeyPrefix: "pairwatch"},
		},
		Archive: ArchiveConfig{
			FlushInterval: 5 * time.Minute,
			MaxBuffer:     1000,
			Workers:       2,
			Compression:   "snappy",
		},
		Metrics: MetricsConfig{
			ChannelSize:         true,
			ChannelSizeInterval: 30 * time.Second,
			Signals:             true,
			CloudWatch:          CloudWatchConfig{Namespace: "PairWatch"},
			Prometheus:          PrometheusConfig{Enabled: true},
		},
		Dashboard: DashboardConfig{Address: ":8090", History: 200},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// applyEnvOverrides lets credentials live in the environment (or a .env file)
// rather than in the YAML file.
func applyEnvOverrides(config *Config) {
	if v := env("EMAIL_ADDRESS"); v != "" {
		config.Notifier.SMTP.Username = v
		if config.Notifier.SMTP.From == "" {
			config.Notifier.SMTP.From = v
		}
	}
	if v := env("EMAIL_PASSWORD"); v != "" {
		config.Notifier.SMTP.Password = v
	}
	if v := env("EMAIL_TO"); v != "" {
		config.Notifier.SMTP.To = splitList(v)
	}
	if v := env("SMTP_HOST"); v != "" {
		config.Notifier.SMTP.Host = v
	}
	if v := env("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Notifier.SMTP.Port = port
		}
	}

	if v := env("ALPACA_API_KEY"); v != "" {
		config.Feeds.Alpaca.KeyID = v
	}
	if v := env("ALPACA_SECRET_KEY"); v != "" {
		config.Feeds.Alpaca.SecretKey = v
	}

	if v := env("AWS_ACCESS_KEY_ID"); v != "" {
		config.History.S3.AccessKeyID = v
	}
	if v := env("AWS_SECRET_ACCESS_KEY"); v != "" {
		config.History.S3.SecretAccessKey = v
	}
	if v := env("AWS_REGION"); v != "" {
		if config.History.S3.Region == "" {
			config.History.S3.Region = v
		}
		if config.Metrics.CloudWatch.Region == "" {
			config.Metrics.CloudWatch.Region = v
		}
	}
	if v := env("S3_BUCKET"); v != "" {
		config.History.S3.Bucket = v
	}

	if v := env("REDIS_ADDR"); v != "" {
		config.Store.Redis.Addr = v
	}
	if v := env("REDIS_PASSWORD"); v != "" {
		config.Store.Redis.Password = v
	}

	config.History.S3.Bucket = strings.TrimSpace(config.History.S3.Bucket)
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var knownFeeds = map[string]struct{}{
	"binance": {},
	"bybit":   {},
	"kucoin":  {},
	"alpaca":  {},
}

var knownSources = map[string]struct{}{
	"binance": {},
	"bybit":   {},
	"s3":      {},
}

func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}

	if cfg.Pair.LegA.Symbol == "" || cfg.Pair.LegB.Symbol == "" {
		return fmt.Errorf("pair.leg_a.symbol and pair.leg_b.symbol are required")
	}
	if strings.EqualFold(cfg.Pair.LegA.Symbol, cfg.Pair.LegB.Symbol) && cfg.Pair.LegA.Feed == cfg.Pair.LegB.Feed {
		return fmt.Errorf("pair legs must be different instruments")
	}
	for _, leg := range []InstrumentConfig{cfg.Pair.LegA, cfg.Pair.LegB} {
		if leg.Feed == "" {
			continue
		}
		if _, ok := knownFeeds[strings.ToLower(leg.Feed)]; !ok {
			return fmt.Errorf("unknown feed '%s' for %s", leg.Feed, leg.Symbol)
		}
	}

	if _, ok := knownSources[strings.ToLower(cfg.Analysis.Source)]; !ok {
		return fmt.Errorf("analysis.source '%s' is not one of binance, bybit, s3", cfg.Analysis.Source)
	}
	if cfg.Analysis.Start != "" || cfg.Analysis.End != "" {
		if _, _, err := cfg.Analysis.Range(); err != nil {
			return err
		}
	}

	if cfg.Monitor.Window < 2 {
		return fmt.Errorf("monitor.window must be at least 2")
	}
	if cfg.Monitor.UpperThreshold <= cfg.Monitor.LowerThreshold {
		return fmt.Errorf("monitor.upper_threshold must be greater than monitor.lower_threshold")
	}
	if cfg.Monitor.TickBuffer <= 0 {
		return fmt.Errorf("monitor.tick_buffer must be greater than 0")
	}

	if strings.EqualFold(cfg.Analysis.Source, "s3") || cfg.Archive.Enabled {
		if cfg.History.S3.Bucket == "" {
			return fmt.Errorf("history.s3.bucket is required when analysis.source is s3 or the archive is enabled")
		}
		if !isValidS3Bucket(cfg.History.S3.Bucket) {
			return fmt.Errorf("history.s3.bucket '%s' is invalid", cfg.History.S3.Bucket)
		}
	}

	if cfg.Notifier.SMTP.Enabled {
		if cfg.Notifier.SMTP.Host == "" || cfg.Notifier.SMTP.Port <= 0 {
			return fmt.Errorf("notifier.smtp.host and notifier.smtp.port are required when smtp is enabled")
		}
		if cfg.Notifier.SMTP.From == "" || len(cfg.Notifier.SMTP.To) == 0 {
			return fmt.Errorf("notifier.smtp.from and notifier.smtp.to are required when smtp is enabled")
		}
	}
	switch strings.ToLower(cfg.Notifier.SMTP.TLS) {
	case "", "mandatory", "opportunistic", "none":
	default:
		return fmt.Errorf("notifier.smtp.tls '%s' must be mandatory, opportunistic or none", cfg.Notifier.SMTP.TLS)
	}
	if cfg.Notifier.RateLimit.PerMinute < 0 || cfg.Notifier.RateLimit.Burst < 0 {
		return fmt.Errorf("notifier.rate_limit values must not be negative")
	}

	if cfg.Feeds.Alpaca.Enabled && (cfg.Feeds.Alpaca.KeyID == "" || cfg.Feeds.Alpaca.SecretKey == "") {
		return fmt.Errorf("feeds.alpaca.key_id and feeds.alpaca.secret_key are required when alpaca is enabled")
	}

	if cfg.Archive.Enabled {
		if cfg.Archive.FlushInterval <= 0 || cfg.Archive.MaxBuffer <= 0 {
			return fmt.Errorf("archive.flush_interval and archive.max_buffer must be greater than 0")
		}
		switch strings.ToLower(cfg.Archive.Compression) {
		case "", "none", "snappy", "gzip":
		default:
			return fmt.Errorf("archive.compression '%s' is not one of none, snappy, gzip", cfg.Archive.Compression)
		}
	}

	if cfg.Store.Redis.Enabled && cfg.Store.Redis.Addr == "" {
		return fmt.Errorf("store.redis.addr is required when redis is enabled")
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
