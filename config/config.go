// Package config loads pedster configuration from TOML files and
// environment variables.
package config

// Config represents the full pedster configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Vault      VaultConfig      `mapstructure:"vault"`
	OpenRouter OpenRouterConfig `mapstructure:"openrouter"`
	Ollama     OllamaConfig     `mapstructure:"ollama"`
	RSS        RSSConfig        `mapstructure:"rss"`
	Podcast    PodcastConfig    `mapstructure:"podcast"`
	Messages   MessagesConfig   `mapstructure:"messages"`
	IMessage   IMessageConfig   `mapstructure:"imessage"`
	Transcribe TranscribeConfig `mapstructure:"transcribe"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
}

// DatabaseConfig locates the per-family catalog files
type DatabaseConfig struct {
	Dir string `mapstructure:"dir"` // directory holding rss.db, podcast.db, messages.db, schedule.db
}

// VaultConfig configures the Obsidian sink
type VaultConfig struct {
	Path             string   `mapstructure:"path"` // vault root, required for vault pipelines
	Folder           string   `mapstructure:"folder"`
	FilenameTemplate string   `mapstructure:"filename_template"`
	Tags             []string `mapstructure:"tags"`
	CreateFolders    bool     `mapstructure:"create_folders"`
	Append           bool     `mapstructure:"append"`
	Prepend          bool     `mapstructure:"prepend"`
	Overwrite        bool     `mapstructure:"overwrite"`
}

// OpenRouterConfig configures OpenRouter.ai API access
type OpenRouterConfig struct {
	APIKey        string   `mapstructure:"api_key"` // env only, never from file defaults
	Model         string   `mapstructure:"model"`
	Temperature   *float64 `mapstructure:"temperature"`    // nil = default 0.2
	MaxTokens     *int     `mapstructure:"max_tokens"`     // nil = default 4000
	CompareModels []string `mapstructure:"compare_models"` // aliases fanned out by the comparison pipeline
}

// OllamaConfig configures local model inference
type OllamaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"` // e.g. "http://localhost:11434"
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// FeedConfig is one subscribed feed
type FeedConfig struct {
	URL         string `mapstructure:"url"`
	PeerThrough bool   `mapstructure:"peer_through"` // extract the linked article instead of the entry body
}

// RSSConfig configures the feed ingestor
type RSSConfig struct {
	Feeds          []FeedConfig `mapstructure:"feeds"`
	LookbackDays   int          `mapstructure:"lookback_days"`
	MaxPerFeed     int          `mapstructure:"max_per_feed"`
	Enrich         bool         `mapstructure:"enrich"` // re-fetch truncated entries from the source page
	HostIntervalMS int          `mapstructure:"host_interval_ms"`
}

// PodcastConfig configures the podcast ingestor
type PodcastConfig struct {
	Feeds          []FeedConfig `mapstructure:"feeds"`
	LookbackDays   int          `mapstructure:"lookback_days"`
	MaxPerFeed     int          `mapstructure:"max_per_feed"`
	DownloadAudio  bool         `mapstructure:"download_audio"` // fetch enclosures when no transcript is published
	AudioDir       string       `mapstructure:"audio_dir"`
	HostIntervalMS int          `mapstructure:"host_interval_ms"`
}

// MessagesConfig configures iMessage history ingestion
type MessagesConfig struct {
	DBPath         string   `mapstructure:"db_path"` // chat.db, default ~/Library/Messages/chat.db
	TriggerWord    string   `mapstructure:"trigger_word"`
	LookbackHours  int      `mapstructure:"lookback_hours"`
	MaxMessages    int      `mapstructure:"max_messages"`
	IncludeSenders []string `mapstructure:"include_senders"`
	ExcludeSenders []string `mapstructure:"exclude_senders"`
	IncludeFromMe  bool     `mapstructure:"include_from_me"`
}

// IMessageConfig configures the iMessage sink
type IMessageConfig struct {
	Recipients []string `mapstructure:"recipients"`
	Prefix     string   `mapstructure:"prefix"`
	Suffix     string   `mapstructure:"suffix"`
	MaxLength  int      `mapstructure:"max_length"`
	Split      bool     `mapstructure:"split"` // chunk long messages instead of truncating
}

// TranscribeConfig configures the local speech-to-text processor
type TranscribeConfig struct {
	Binary          string `mapstructure:"binary"`
	ModelSize       string `mapstructure:"model_size"` // tiny, base, small, medium, large
	Language        string `mapstructure:"language"`
	Threads         int    `mapstructure:"threads"`
	OutputDir       string `mapstructure:"output_dir"`
	CorrectionModel string `mapstructure:"correction_model"` // empty = no LLM correction pass
}

// ScheduleConfig configures the daemon scheduler
type ScheduleConfig struct {
	TickerIntervalSeconds int `mapstructure:"ticker_interval_seconds"`
}
