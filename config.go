package main

import (
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type FeedSource struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type Config struct {
	SlackBotToken string `yaml:"slack_bot_token"`
	SlackChannel  string `yaml:"slack_channel"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OracleModel     string `yaml:"oracle_model"`

	NewsAPIKey       string       `yaml:"newsapi_key"`
	PerplexityAPIKey string       `yaml:"perplexity_key"`
	RSSFeeds         []FeedSource `yaml:"rss_feeds"`

	DBPath string `yaml:"db_path"`

	// Threshold policy. Hard-coded values from the original system kept as
	// named, overridable configuration.
	PromoteThreshold   int `yaml:"promote_threshold"`
	ImmediateThreshold int `yaml:"immediate_threshold"`

	OracleBatchSize    int `yaml:"oracle_batch_size"`
	SurfaceBatchSize   int `yaml:"surface_batch_size"`
	SweepLimit         int `yaml:"sweep_limit"`
	MinFeedbackSample  int `yaml:"min_feedback_sample"`
	AutonomyWindowMins int `yaml:"autonomy_window_minutes"`

	// Per-connector timeouts, seconds.
	NewsAPITimeoutSecs    int `yaml:"newsapi_timeout_secs"`
	PerplexityTimeoutSecs int `yaml:"perplexity_timeout_secs"`
	RSSTimeoutSecs        int `yaml:"rss_timeout_secs"`
	SearchTimeoutSecs     int `yaml:"search_timeout_secs"`
	AggregateWaitSecs     int `yaml:"aggregate_wait_secs"`
	IngestConcurrency     int `yaml:"ingest_concurrency"`

	// Job cadences, standard 5-field cron expressions.
	IngestSchedule   string `yaml:"ingest_schedule"`
	SweepSchedule    string `yaml:"sweep_schedule"`
	AutonomySchedule string `yaml:"autonomy_schedule"`
	PeopleSchedule   string `yaml:"people_schedule"`
}

func LoadConfig() Config {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannel, "SLACK_CHANNEL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OracleModel, "ORACLE_MODEL")
	envOverride(&cfg.NewsAPIKey, "NEWSAPI_KEY")
	envOverride(&cfg.PerplexityAPIKey, "PERPLEXITY_API_KEY")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverrideInt(&cfg.PromoteThreshold, "PROMOTE_THRESHOLD")
	envOverrideInt(&cfg.ImmediateThreshold, "IMMEDIATE_THRESHOLD")
	envOverrideInt(&cfg.OracleBatchSize, "ORACLE_BATCH_SIZE")
	envOverride(&cfg.IngestSchedule, "INGEST_SCHEDULE")
	envOverride(&cfg.SweepSchedule, "SWEEP_SCHEDULE")
	envOverride(&cfg.AutonomySchedule, "AUTONOMY_SCHEDULE")
	envOverride(&cfg.PeopleSchedule, "PEOPLE_SCHEDULE")

	applyDefaults(&cfg)

	if cfg.AnthropicAPIKey == "" {
		log.Fatalf("Required config 'anthropic_api_key' is not set (via config.yaml or env var)")
	}
	if cfg.PromoteThreshold < 1 || cfg.PromoteThreshold > 100 {
		log.Fatalf("invalid promote_threshold '%d': must be 1-100", cfg.PromoteThreshold)
	}
	if cfg.ImmediateThreshold < cfg.PromoteThreshold {
		log.Fatalf("invalid immediate_threshold '%d': must be >= promote_threshold (%d)",
			cfg.ImmediateThreshold, cfg.PromoteThreshold)
	}
	if cfg.OracleBatchSize < 1 || cfg.OracleBatchSize > 20 {
		log.Fatalf("invalid oracle_batch_size '%d': must be 1-20", cfg.OracleBatchSize)
	}
	if cfg.SlackBotToken == "" {
		log.Println("slack_bot_token not set, notifications disabled (alerts logged only)")
	}

	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.SlackChannel == "" {
		cfg.SlackChannel = "#competitive-intel"
	}
	if cfg.OracleModel == "" {
		cfg.OracleModel = "claude-sonnet-4-20250514"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./intelbot.db"
	}
	if cfg.PromoteThreshold == 0 {
		cfg.PromoteThreshold = 60
	}
	if cfg.ImmediateThreshold == 0 {
		cfg.ImmediateThreshold = 80
	}
	if cfg.OracleBatchSize == 0 {
		cfg.OracleBatchSize = 20
	}
	if cfg.SurfaceBatchSize == 0 {
		cfg.SurfaceBatchSize = 10
	}
	if cfg.SweepLimit == 0 {
		cfg.SweepLimit = 50
	}
	if cfg.MinFeedbackSample == 0 {
		cfg.MinFeedbackSample = 10
	}
	if cfg.AutonomyWindowMins == 0 {
		// 35 min window against a 30 min cadence: deliberate over-read to
		// tolerate scheduler jitter. The notified flag is the dedup guard.
		cfg.AutonomyWindowMins = 35
	}
	if cfg.NewsAPITimeoutSecs == 0 {
		cfg.NewsAPITimeoutSecs = 15
	}
	if cfg.PerplexityTimeoutSecs == 0 {
		cfg.PerplexityTimeoutSecs = 30
	}
	if cfg.RSSTimeoutSecs == 0 {
		cfg.RSSTimeoutSecs = 20
	}
	if cfg.SearchTimeoutSecs == 0 {
		cfg.SearchTimeoutSecs = 60
	}
	if cfg.AggregateWaitSecs == 0 {
		cfg.AggregateWaitSecs = 90
	}
	if cfg.IngestConcurrency == 0 {
		cfg.IngestConcurrency = 4
	}
	if cfg.IngestSchedule == "" {
		cfg.IngestSchedule = "0 */2 * * *"
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = "0 */6 * * *"
	}
	if cfg.AutonomySchedule == "" {
		cfg.AutonomySchedule = "*/30 * * * *"
	}
	if cfg.PeopleSchedule == "" {
		cfg.PeopleSchedule = "0 7 * * *"
	}
	if len(cfg.RSSFeeds) == 0 {
		cfg.RSSFeeds = defaultFeeds
	}
}

var defaultFeeds = []FeedSource{
	{Name: "TechCrunch AI", URL: "https://techcrunch.com/category/artificial-intelligence/feed/"},
	{Name: "Fierce Healthcare", URL: "https://www.fiercehealthcare.com/rss/xml"},
	{Name: "STAT News", URL: "https://www.statnews.com/feed/"},
	{Name: "Modern Healthcare", URL: "https://www.modernhealthcare.com/section/technology/rss"},
	{Name: "VentureBeat AI", URL: "https://venturebeat.com/category/ai/feed/"},
	{Name: "Healthcare IT News", URL: "https://www.healthcareitnews.com/rss.xml"},
	{Name: "Becker's Health IT", URL: "https://www.beckershospitalreview.com/rss/health-it.rss"},
}

func (c Config) NewsAPIConfigured() bool {
	return strings.TrimSpace(c.NewsAPIKey) != ""
}

func (c Config) PerplexityConfigured() bool {
	return strings.TrimSpace(c.PerplexityAPIKey) != ""
}

func (c Config) SlackConfigured() bool {
	return strings.TrimSpace(c.SlackBotToken) != ""
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}
