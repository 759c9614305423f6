package config

import (
	"fmt"

	"github.com/recwatch/recwatch"
)

// BuildTarget converts the url and interval settings into an SDK Target.
// An empty URL selects [recwatch.DefaultURL].
func BuildTarget(cfg *Config) (recwatch.Target, error) {
	rawURL := cfg.URL
	if rawURL == "" {
		rawURL = recwatch.DefaultURL
	}
	target, err := recwatch.NewTarget(rawURL, cfg.Interval.Duration())
	if err != nil {
		return recwatch.Target{}, fmt.Errorf("invalid target: %w", err)
	}
	return target, nil
}

// BuildOptions converts parsed configuration into SDK options.
//
// The returned options do not include a logger; callers append
// [recwatch.WithLogger] themselves.
func BuildOptions(cfg *Config) ([]recwatch.Option, error) {
	target, err := BuildTarget(cfg)
	if err != nil {
		return nil, err
	}

	opts := []recwatch.Option{
		recwatch.WithTarget(target),
		recwatch.WithPort(cfg.Port),
		recwatch.WithAutoStart(cfg.AutoStart),
		recwatch.WithFetchOptions(buildFetchOptions(cfg.Fetch)),
		recwatch.WithNotifyOptions(buildNotifyOptions(cfg.Notify)),
	}

	if cfg.Title != "" {
		opts = append(opts, recwatch.WithTitle(cfg.Title))
	}
	if cfg.Telegram.Token != "" {
		opts = append(opts, recwatch.WithTelegramToken(cfg.Telegram.Token))
	}
	if len(cfg.AllowedOrigins) > 0 {
		opts = append(opts, recwatch.WithAllowedOrigins(cfg.AllowedOrigins...))
	}

	return opts, nil
}

func buildFetchOptions(fc FetchConfig) recwatch.FetchOptions {
	return recwatch.FetchOptions{
		Engine:        recwatch.FetchEngine(fc.Engine),
		BrowserPath:   fc.BrowserPath,
		Timeout:       fc.Timeout.Duration(),
		Settle:        fc.Settle.Duration(),
		UserAgent:     fc.UserAgent,
		EnrollPhrases: fc.EnrollPhrases,
		FullPhrases:   fc.FullPhrases,
	}
}

// buildNotifyOptions applies the on-by-default local alerts.
func buildNotifyOptions(nc NotifyConfig) recwatch.NotifyOptions {
	return recwatch.NotifyOptions{
		Desktop:  boolOr(nc.Desktop, true),
		AutoOpen: boolOr(nc.AutoOpen, true),
		Title:    nc.Title,
	}
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
