package alfengine

import (
	"log"
	"os"
	"strconv"
	"strings"

	"laguerre-systemv1/internal/laguerre"
)

// Source selects where the service gets its bars from.
const (
	SourceRedis = "redis" // consume bar streams via consumer groups
	SourceLive  = "live"  // connect to the feed vendor WebSocket directly
)

// Config holds all env-parsed configuration for the filter engine service.
type Config struct {
	Source string // SourceRedis or SourceLive

	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	ConsumerGroup string
	ConsumerName  string

	EnabledTFs        []int
	Symbols           []string
	SnapshotIntervalS int
	SnapshotKey       string
	HTTPAddr          string
	MetricsAddr       string
	PELIntervalS      int
	PELMinIdleMs      int64

	// Live source credentials; validated only when Source == SourceLive.
	FeedWSURL      string
	FeedAPIURL     string
	FeedAPIKey     string
	FeedAccountID  string
	FeedTOTPSecret string

	// Notification targets; empty values disable a backend.
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string

	FilterConfigs []laguerre.TFFilterConfig
}

// LoadConfig reads all environment variables and returns a Config.
func LoadConfig() Config {
	enabledTFs := parseTFs(getEnv("ENABLED_TFS", "3600,14400,86400"))
	symbols := parseSymbols(getEnv("SYMBOLS", "GBPJPY"))

	snapshotInterval, _ := strconv.Atoi(getEnv("SNAPSHOT_INTERVAL_SEC", "30"))
	if snapshotInterval <= 0 {
		snapshotInterval = 30
	}
	pelInterval, _ := strconv.Atoi(getEnv("PEL_RECLAIM_INTERVAL_SEC", "30"))
	if pelInterval <= 0 {
		pelInterval = 30
	}
	pelMinIdle, _ := strconv.ParseInt(getEnv("PEL_MIN_IDLE_MS", "60000"), 10, 64)
	if pelMinIdle <= 0 {
		pelMinIdle = 60000
	}

	source := strings.ToLower(getEnv("BAR_SOURCE", SourceRedis))
	if source != SourceRedis && source != SourceLive {
		log.Printf("[alfengine] unknown BAR_SOURCE %q, falling back to %q", source, SourceRedis)
		source = SourceRedis
	}

	return Config{
		Source: source,

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/bars.db"),
		ConsumerGroup: getEnv("CONSUMER_GROUP", "alfengine"),
		ConsumerName:  getEnv("CONSUMER_NAME", "worker-1"),

		EnabledTFs:        enabledTFs,
		Symbols:           symbols,
		SnapshotIntervalS: snapshotInterval,
		SnapshotKey:       getEnv("SNAPSHOT_KEY", "alf:snapshot:engine"),
		HTTPAddr:          getEnv("ALFENGINE_HTTP_ADDR", ":9095"),
		MetricsAddr:       getEnv("METRICS_ADDR", ":9090"),
		PELIntervalS:      pelInterval,
		PELMinIdleMs:      pelMinIdle,

		FeedWSURL:      getEnv("FEED_WS_URL", "ws://localhost:8081/feed"),
		FeedAPIURL:     getEnv("FEED_API_URL", ""),
		FeedAPIKey:     getEnv("FEED_API_KEY", ""),
		FeedAccountID:  getEnv("FEED_ACCOUNT_ID", ""),
		FeedTOTPSecret: getEnv("FEED_TOTP_SECRET", ""),

		WebhookURL:       getEnv("ALERT_WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		FilterConfigs: BuildFilterConfigs(enabledTFs),
	}
}

// BuildFilterConfigs creates filter configurations per TF from the
// FILTER_CONFIGS env var. Format: "ORDER:LENGTH" for fixed-gamma
// filters, "ORDER:LENGTH:MODE:PERIOD" for adaptive ones.
// Example: "4:10,4:10:MEDIAN:5,3:20:EMA:8"
// If the env var is empty, sensible defaults are used.
func BuildFilterConfigs(tfs []int) []laguerre.TFFilterConfig {
	specs := ParseFilterSpecs(getEnv("FILTER_CONFIGS", ""))
	configs := make([]laguerre.TFFilterConfig, len(tfs))
	for i, tf := range tfs {
		configs[i] = laguerre.TFFilterConfig{
			TF:      tf,
			Filters: specs,
		}
	}
	return configs
}

// ParseFilterSpecs parses "ORDER:LENGTH[:MODE:PERIOD],..." into filter
// configs. Returns defaults if input is empty.
func ParseFilterSpecs(s string) []laguerre.Config {
	if s == "" {
		return []laguerre.Config{
			{Order: 4, Length: 10},
			{Order: 4, Length: 10, Adaptive: true, SmoothPeriod: 5, SmoothMode: laguerre.SmoothMedian},
		}
	}

	var configs []laguerre.Config
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		cfg, ok := parseFilterSpec(part)
		if !ok {
			log.Printf("[alfengine] skipping invalid filter spec: %q", part)
			continue
		}
		configs = append(configs, cfg)
	}
	if len(configs) == 0 {
		log.Println("[alfengine] WARNING: no valid filters parsed, using defaults")
		return ParseFilterSpecs("")
	}
	log.Printf("[alfengine] loaded %d filter specs from FILTER_CONFIGS", len(configs))
	return configs
}

func parseFilterSpec(s string) (laguerre.Config, bool) {
	tokens := strings.Split(s, ":")
	if len(tokens) != 2 && len(tokens) != 4 {
		return laguerre.Config{}, false
	}
	order, err := strconv.Atoi(strings.TrimSpace(tokens[0]))
	if err != nil {
		return laguerre.Config{}, false
	}
	length, err := strconv.Atoi(strings.TrimSpace(tokens[1]))
	if err != nil {
		return laguerre.Config{}, false
	}
	cfg := laguerre.Config{Order: order, Length: length}

	if len(tokens) == 4 {
		mode, ok := laguerre.ParseSmoothMode(strings.ToUpper(strings.TrimSpace(tokens[2])))
		if !ok {
			return laguerre.Config{}, false
		}
		period, err := strconv.Atoi(strings.TrimSpace(tokens[3]))
		if err != nil {
			return laguerre.Config{}, false
		}
		cfg.Adaptive = true
		cfg.SmoothMode = mode
		cfg.SmoothPeriod = period
	}

	return cfg, cfg.Validate() == nil
}

func parseTFs(s string) []int {
	parts := strings.Split(s, ",")
	tfs := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			continue
		}
		tfs = append(tfs, n)
	}
	return tfs
}

func parseSymbols(s string) []string {
	parts := strings.Split(s, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		symbols = append(symbols, p)
	}
	return symbols
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
