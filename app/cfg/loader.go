package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage
	DBPath    string `long:"db-path" env:"DB_PATH" default:"./data/mention-comb.db" description:"SQLite database file"`
	RedisAddr string `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for discovery and feed caching (optional)"`
	CacheTTL  int    `long:"cache-ttl" env:"CACHE_TTL" default:"86400" description:"Cache TTL in seconds"`

	// Application configuration
	MonitorsDir       string `long:"monitors-dir" env:"MONITORS_DIR" default:"./monitors" description:"Directory containing monitor configuration files"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl           string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://mentions.example.com)"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"3" description:"Number of background workers for monitor polling"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"30" description:"Scheduler interval in seconds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Discovery
	GeminiAPIKey string `long:"gemini-api-key" env:"GEMINI_API_KEY" description:"Gemini API key; discovery matching is disabled without it"`
	FullModel    string `long:"full-model" env:"FULL_MODEL" default:"gemini-2.5-flash" description:"Model for full discovery verdicts"`
	QuickModel   string `long:"quick-model" env:"QUICK_MODEL" default:"gemini-2.5-flash-lite" description:"Model for the quick discovery pre-filter"`
	PromptsFile  string `long:"prompts-file" env:"PROMPTS_FILE" description:"YAML file overriding discovery prompts and model prices"`
	BatchSize    int    `long:"batch-size" env:"BATCH_SIZE" default:"5" description:"Concurrent discovery calls per wave"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Mention-Comb/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

// Load parses the process arguments and environment. It returns nil, nil
// when help was requested.
func Load() (*Cfg, error) {
	return LoadArgs(os.Args[1:])
}

func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:            raw.DBPath,
		RedisAddr:         raw.RedisAddr,
		CacheTTL:          time.Duration(raw.CacheTTL) * time.Second,
		MonitorsDir:       raw.MonitorsDir,
		Port:              raw.Port,
		BaseUrl:           raw.BaseUrl,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: time.Duration(raw.SchedulerInterval) * time.Second,
		APIAccessKey:      raw.APIAccessKey,
		GeminiAPIKey:      raw.GeminiAPIKey,
		FullModel:         raw.FullModel,
		QuickModel:        raw.QuickModel,
		PromptsFile:       raw.PromptsFile,
		BatchSize:         raw.BatchSize,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	if cfg.BaseUrl == "" {
		cfg.BaseUrl = fmt.Sprintf("http://localhost:%s", cfg.Port)
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		slog.Warn("Invalid timezone, using system default", "timezone", cfg.Timezone, "error", err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func validate(cfg *Cfg) error {
	positive := map[string]int{
		"worker count":       cfg.WorkerCount,
		"scheduler interval": int(cfg.SchedulerInterval / time.Second),
		"batch size":         cfg.BatchSize,
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if cfg.CacheTTL < 0 {
		return fmt.Errorf("cache TTL must be non-negative")
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone == "" {
		return nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return err
	}
	time.Local = loc
	return nil
}
