package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all terminal configuration loaded from environment variables.
type Config struct {
	// Feed
	FeedURL        string
	Speed          float64
	DisplayOffset  time.Duration // added to every candle time for display
	SourceOffset   time.Duration // zone of feed timestamps that carry no offset
	Symbol         string
	InitialBalance float64
	InitialPrice   float64

	// Chart
	Theme       string
	ChartWidth  int
	ChartHeight int

	// Infrastructure
	HTTPAddr      string
	JournalPath   string
	RedisAddr     string
	RedisPassword string
	LogLevel      string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SIM_WS_URL", "ws://localhost:8000/ws/simulation")
	v.SetDefault("SIM_SPEED", 1.0)
	// IST is UTC+5:30; the replay source labels bars in IST wall-clock.
	v.SetDefault("DISPLAY_OFFSET_SECONDS", 19800)
	v.SetDefault("SOURCE_UTC_OFFSET_SECONDS", 19800)
	v.SetDefault("SYMBOL", "NIFTY 50")
	v.SetDefault("INITIAL_BALANCE", 100000.0)
	v.SetDefault("INITIAL_PRICE", 21500.0)
	v.SetDefault("THEME", "dark")
	v.SetDefault("CHART_WIDTH", 1200)
	v.SetDefault("CHART_HEIGHT", 600)
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("JOURNAL_PATH", "data/journal.db")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{
		FeedURL:        v.GetString("SIM_WS_URL"),
		Speed:          v.GetFloat64("SIM_SPEED"),
		DisplayOffset:  time.Duration(v.GetInt64("DISPLAY_OFFSET_SECONDS")) * time.Second,
		SourceOffset:   time.Duration(v.GetInt64("SOURCE_UTC_OFFSET_SECONDS")) * time.Second,
		Symbol:         v.GetString("SYMBOL"),
		InitialBalance: v.GetFloat64("INITIAL_BALANCE"),
		InitialPrice:   v.GetFloat64("INITIAL_PRICE"),
		Theme:          strings.ToLower(v.GetString("THEME")),
		ChartWidth:     v.GetInt("CHART_WIDTH"),
		ChartHeight:    v.GetInt("CHART_HEIGHT"),
		HTTPAddr:       v.GetString("HTTP_ADDR"),
		JournalPath:    v.GetString("JOURNAL_PATH"),
		RedisAddr:      v.GetString("REDIS_ADDR"),
		RedisPassword:  v.GetString("REDIS_PASSWORD"),
		LogLevel:       v.GetString("LOG_LEVEL"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.FeedURL == "" {
		return fmt.Errorf("config: SIM_WS_URL must not be empty")
	}
	if c.Speed <= 0 {
		return fmt.Errorf("config: SIM_SPEED must be > 0, got %v", c.Speed)
	}
	if c.Theme != "dark" && c.Theme != "light" {
		return fmt.Errorf("config: THEME must be dark or light, got %q", c.Theme)
	}
	if c.ChartWidth <= 0 || c.ChartHeight <= 0 {
		return fmt.Errorf("config: chart size must be positive, got %dx%d", c.ChartWidth, c.ChartHeight)
	}
	return nil
}

// SourceZone returns the fixed zone used to read offset-less feed timestamps.
func (c *Config) SourceZone() *time.Location {
	return fixedZone(c.SourceOffset)
}

func fixedZone(offset time.Duration) *time.Location {
	secs := int(offset / time.Second)
	if secs == 0 {
		return time.UTC
	}
	return time.FixedZone(fmt.Sprintf("UTC%+d", secs/60), secs)
}

// SimConfig configures the replay server.
type SimConfig struct {
	Addr         string
	DBPath       string
	ImportCSV    string
	Symbol       string
	TicksPerBar  int
	SourceOffset time.Duration
	LogLevel     string
}

// LoadSim reads the replay server configuration from the environment.
func LoadSim() (*SimConfig, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SIM_ADDR", ":8000")
	v.SetDefault("SIM_DB_PATH", "data/candles.db")
	v.SetDefault("SIM_IMPORT_CSV", "")
	v.SetDefault("SIM_SYMBOL", "NIFTY 50")
	v.SetDefault("SIM_TICKS_PER_CANDLE", 0)
	v.SetDefault("SOURCE_UTC_OFFSET_SECONDS", 19800)
	v.SetDefault("LOG_LEVEL", "info")

	cfg := &SimConfig{
		Addr:         v.GetString("SIM_ADDR"),
		DBPath:       v.GetString("SIM_DB_PATH"),
		ImportCSV:    v.GetString("SIM_IMPORT_CSV"),
		Symbol:       v.GetString("SIM_SYMBOL"),
		TicksPerBar:  v.GetInt("SIM_TICKS_PER_CANDLE"),
		SourceOffset: time.Duration(v.GetInt64("SOURCE_UTC_OFFSET_SECONDS")) * time.Second,
		LogLevel:     v.GetString("LOG_LEVEL"),
	}
	if cfg.Addr == "" || cfg.DBPath == "" {
		return nil, fmt.Errorf("config: SIM_ADDR and SIM_DB_PATH must not be empty")
	}
	if cfg.TicksPerBar < 0 {
		return nil, fmt.Errorf("config: SIM_TICKS_PER_CANDLE must be >= 0, got %d", cfg.TicksPerBar)
	}
	return cfg, nil
}

// SourceZone returns the zone bars are labelled in on the wire.
func (c *SimConfig) SourceZone() *time.Location {
	return fixedZone(c.SourceOffset)
}
