package config

import "github.com/spf13/viper"

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.dir", "~/.pedster")

	// Vault defaults
	v.SetDefault("vault.filename_template", "{title}")
	v.SetDefault("vault.create_folders", true)

	// OpenRouter defaults
	v.SetDefault("openrouter.model", "openai/gpt-4o")
	v.SetDefault("openrouter.temperature", 0.2)
	v.SetDefault("openrouter.max_tokens", 4000)
	v.SetDefault("openrouter.compare_models", []string{"gpt4o", "claude", "o3mini"})

	// Local inference (Ollama) defaults
	v.SetDefault("ollama.enabled", false)
	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model", "deepseek-r1:14b")
	v.SetDefault("ollama.timeout_seconds", 300)

	// Feed polling defaults
	v.SetDefault("rss.lookback_days", 7)
	v.SetDefault("rss.max_per_feed", 25)
	v.SetDefault("rss.enrich", true)
	v.SetDefault("rss.host_interval_ms", 2000)

	v.SetDefault("podcast.lookback_days", 7)
	v.SetDefault("podcast.max_per_feed", 10)
	v.SetDefault("podcast.download_audio", false)
	v.SetDefault("podcast.host_interval_ms", 2000)

	// Message history defaults
	v.SetDefault("messages.db_path", "~/Library/Messages/chat.db")
	v.SetDefault("messages.trigger_word", "")
	v.SetDefault("messages.lookback_hours", 24)
	v.SetDefault("messages.max_messages", 100)

	// iMessage delivery defaults
	v.SetDefault("imessage.max_length", 2000)
	v.SetDefault("imessage.split", true)

	// Transcription defaults
	v.SetDefault("transcribe.binary", "whisper")
	v.SetDefault("transcribe.model_size", "base")

	// Scheduler defaults
	v.SetDefault("schedule.ticker_interval_seconds", 1)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables.
// API keys never come from config file defaults.
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("openrouter.api_key", "PEDSTER_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")
}
