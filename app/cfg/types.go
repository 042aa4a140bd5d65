package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath    string
	RedisAddr string
	CacheTTL  time.Duration

	// Application configuration
	MonitorsDir       string
	Port              string
	BaseUrl           string
	WorkerCount       int
	SchedulerInterval time.Duration
	APIAccessKey      string

	// Discovery
	GeminiAPIKey string
	FullModel    string
	QuickModel   string
	PromptsFile  string
	BatchSize    int

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}

// DiscoveryEnabled reports whether an LLM provider is configured.
func (c *Cfg) DiscoveryEnabled() bool {
	return c.GeminiAPIKey != ""
}
