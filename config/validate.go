package config

import (
	"net/url"

	"github.com/pedramamini/pedster/errors"
)

// Validate checks that the configuration is valid. It fails fast on
// values that would only surface as confusing errors mid-pipeline.
func (c *Config) Validate() error {
	if c.Database.Dir == "" {
		return errors.New("database.dir cannot be empty")
	}

	if c.OpenRouter.Temperature != nil && (*c.OpenRouter.Temperature < 0 || *c.OpenRouter.Temperature > 2) {
		return errors.Newf("openrouter.temperature must be in [0, 2], got %f", *c.OpenRouter.Temperature)
	}
	if c.OpenRouter.MaxTokens != nil && *c.OpenRouter.MaxTokens <= 0 {
		return errors.Newf("openrouter.max_tokens must be > 0, got %d", *c.OpenRouter.MaxTokens)
	}

	if c.Ollama.Enabled {
		if c.Ollama.BaseURL == "" {
			return errors.New("ollama.base_url cannot be empty when enabled")
		}
		if c.Ollama.Model == "" {
			return errors.New("ollama.model cannot be empty when enabled")
		}
		if c.Ollama.TimeoutSeconds <= 0 {
			return errors.Newf("ollama.timeout_seconds must be > 0, got %d", c.Ollama.TimeoutSeconds)
		}
	}

	for _, feed := range append(append([]FeedConfig{}, c.RSS.Feeds...), c.Podcast.Feeds...) {
		if feed.URL == "" {
			return errors.New("feed url cannot be empty")
		}
		u, err := url.Parse(feed.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return errors.Newf("feed url must be http(s), got %q", feed.URL)
		}
	}

	if c.RSS.LookbackDays < 0 {
		return errors.Newf("rss.lookback_days must be >= 0, got %d", c.RSS.LookbackDays)
	}
	if c.Podcast.LookbackDays < 0 {
		return errors.Newf("podcast.lookback_days must be >= 0, got %d", c.Podcast.LookbackDays)
	}
	if c.Messages.LookbackHours < 0 {
		return errors.Newf("messages.lookback_hours must be >= 0, got %d", c.Messages.LookbackHours)
	}

	if c.IMessage.MaxLength < 0 {
		return errors.Newf("imessage.max_length must be >= 0, got %d", c.IMessage.MaxLength)
	}

	if c.Schedule.TickerIntervalSeconds < 0 {
		return errors.Newf("schedule.ticker_interval_seconds must be >= 0, got %d", c.Schedule.TickerIntervalSeconds)
	}

	return nil
}
