package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"mfsync/internal/browser"
	"mfsync/internal/endpoint"
	"mfsync/internal/navigator"
	"mfsync/internal/orchestrator"
	"mfsync/internal/period"
	"mfsync/internal/scrapers/moneyforward"
	"mfsync/pkg/configutil"
	"mfsync/pkg/sqliteutil"
)

type EndpointConfig struct {
	// URL is used when no address was stored with `mfsync endpoint set`.
	URL               string  `json:"url"`
	Retries           int     `json:"retries"`
	RetryDelayMs      int     `json:"retry_delay_ms"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
	RequestsPerSecond float64 `json:"requests_per_second"`
}

type SyncConfig struct {
	IncrementalMonths int `json:"incremental_months"`
	// FullAnchor is the oldest month of a full sync, "YYYY-MM".
	FullAnchor       string `json:"full_anchor"`
	PollIntervalMs   int    `json:"poll_interval_ms"`
	MaxPolls         int    `json:"max_polls"`
	SettleDelayMs    int    `json:"settle_delay_ms"`
	LoadingTimeoutMs int    `json:"loading_timeout_ms"`
	LocateTimeoutMs  int    `json:"locate_timeout_ms"`
	Timezone         string `json:"timezone"`
}

type AutoConfig struct {
	Cron             string `json:"cron"`
	MinIntervalHours int    `json:"min_interval_hours"`
	PerfStatsSeconds int    `json:"perf_stats_seconds"`
}

type Config struct {
	Debug     bool                   `json:"debug"`
	Browser   browser.RodOptions     `json:"browser"`
	Store     sqliteutil.Config      `json:"store"`
	Endpoint  EndpointConfig         `json:"endpoint"`
	Sync      SyncConfig             `json:"sync"`
	Auto      AutoConfig             `json:"auto"`
	Selectors moneyforward.Selectors `json:"selectors"`
}

func defaultConfig() Config {
	return Config{
		Browser: browser.RodOptions{
			UserDataDir: ".mfsync/browser",
			PageURL:     "https://moneyforward.com/cf",
		},
		Store: sqliteutil.Config{
			File: ".mfsync/state.db",
		},
		Endpoint: EndpointConfig{
			Retries:           2,
			RetryDelayMs:      2000,
			TimeoutSeconds:    60,
			RequestsPerSecond: 1,
		},
		Sync: SyncConfig{
			IncrementalMonths: 6,
			FullAnchor:        "2021-09",
			PollIntervalMs:    500,
			MaxPolls:          20,
			SettleDelayMs:     3000,
			LoadingTimeoutMs:  10000,
			LocateTimeoutMs:   10000,
			Timezone:          "Asia/Tokyo",
		},
		Auto: AutoConfig{
			Cron:             "0 6 * * *",
			MinIntervalHours: 12,
			PerfStatsSeconds: 60,
		},
		Selectors: moneyforward.DefaultSelectors(),
	}
}

// loadConfig reads path (and its .local override), a missing file means
// every default applies.
func loadConfig(path string) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}
	err = configutil.WithDefaults(&cfg, defaultConfig())
	if err != nil {
		return Config{}, fmt.Errorf("apply defaults: %w", err)
	}
	return cfg, nil
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func (c Config) endpointOptions() endpoint.Options {
	return endpoint.Options{
		Retries:           c.Endpoint.Retries,
		RetryDelay:        millis(c.Endpoint.RetryDelayMs),
		Timeout:           time.Duration(c.Endpoint.TimeoutSeconds) * time.Second,
		RequestsPerSecond: c.Endpoint.RequestsPerSecond,
	}
}

func (c Config) orchestratorOptions() (orchestrator.Options, error) {
	anchor, err := period.Parse(c.Sync.FullAnchor)
	if err != nil {
		return orchestrator.Options{}, fmt.Errorf("sync.full_anchor: %w", err)
	}
	return orchestrator.Options{
		IncrementalMonths: c.Sync.IncrementalMonths,
		FullAnchor:        anchor,
		PollInterval:      millis(c.Sync.PollIntervalMs),
		MaxPolls:          c.Sync.MaxPolls,
		Navigation: navigator.Options{
			SettleDelay:    millis(c.Sync.SettleDelayMs),
			LoadingTimeout: millis(c.Sync.LoadingTimeoutMs),
			PollInterval:   millis(c.Sync.PollIntervalMs),
		},
	}, nil
}
