package pipelines

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pedramamini/pedster/ai"
	"github.com/pedramamini/pedster/ai/ollama"
	"github.com/pedramamini/pedster/ai/openrouter"
	"github.com/pedramamini/pedster/config"
	"github.com/pedramamini/pedster/db"
	"github.com/pedramamini/pedster/errors"
	"github.com/pedramamini/pedster/ingest/messages"
	"github.com/pedramamini/pedster/ingest/podcast"
	"github.com/pedramamini/pedster/ingest/rss"
	"github.com/pedramamini/pedster/ingest/web"
	"github.com/pedramamini/pedster/output/imessage"
	"github.com/pedramamini/pedster/output/obsidian"
	"github.com/pedramamini/pedster/pipeline"
	"github.com/pedramamini/pedster/process/llm"
	"github.com/pedramamini/pedster/process/mapreduce"
	"github.com/pedramamini/pedster/process/transcribe"
)

// Builder constructs named pipelines from configuration. Catalogs are
// opened and migrated lazily, one handle per family, shared by every
// pipeline the builder produces.
type Builder struct {
	cfg    *config.Config
	logger *zap.SugaredLogger

	mu       sync.Mutex
	catalogs map[db.Family]*sql.DB
}

// Payload carries per-run overrides forwarded by the scheduler or the
// run command.
type Payload struct {
	Model  string   `json:"model,omitempty"`  // model alias override for LLM stages
	Prompt string   `json:"prompt,omitempty"` // prompt template override
	URLs   []string `json:"urls,omitempty"`   // web pipeline page list
}

func NewBuilder(cfg *config.Config, logger *zap.SugaredLogger) *Builder {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Builder{
		cfg:      cfg,
		logger:   logger,
		catalogs: map[db.Family]*sql.DB{},
	}
}

// Names lists the pipelines this builder can construct.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run builds and executes one named pipeline. It satisfies the
// scheduler's Runner interface.
func (b *Builder) Run(ctx context.Context, name string, rawPayload []byte) error {
	var payload Payload
	if len(rawPayload) > 0 {
		if err := json.Unmarshal(rawPayload, &payload); err != nil {
			return errors.Wrapf(err, "bad payload for pipeline %s", name)
		}
	}

	p, err := b.Build(name, payload)
	if err != nil {
		return err
	}
	_, err = p.Run(ctx)
	return err
}

// Build constructs a named pipeline without running it.
func (b *Builder) Build(name string, payload Payload) (*Pipeline, error) {
	build, ok := builders[name]
	if !ok {
		return nil, errors.Newf("unknown pipeline %q (known: %v)", name, Names())
	}
	return build(b, payload)
}

// Close releases every catalog handle the builder opened.
func (b *Builder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for family, conn := range b.catalogs {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "close %s catalog", family)
		}
		delete(b.catalogs, family)
	}
	return firstErr
}

// Catalog opens and migrates the family's database on first use.
func (b *Builder) Catalog(family db.Family) (*sql.DB, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if conn, ok := b.catalogs[family]; ok {
		return conn, nil
	}

	path := filepath.Join(b.cfg.Database.Dir, string(family)+".db")
	conn, err := db.Open(path, b.logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(conn, family, b.logger); err != nil {
		conn.Close()
		return nil, err
	}
	b.catalogs[family] = conn
	return conn, nil
}

var builders = map[string]func(*Builder, Payload) (*Pipeline, error){
	"rss-to-obsidian":         buildRSSToObsidian,
	"rss-compare-to-obsidian": buildRSSCompareToObsidian,
	"podcast-to-obsidian":     buildPodcastToObsidian,
	"messages-to-reply":       buildMessagesToReply,
	"web-to-obsidian":         buildWebToObsidian,
}

func buildRSSToObsidian(b *Builder, payload Payload) (*Pipeline, error) {
	ingestor, err := b.rssIngestor()
	if err != nil {
		return nil, err
	}

	summarize, err := b.summarizer("summarize-article", payload)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		Name:       "rss-to-obsidian",
		Ingestor:   ingestor,
		Processors: []pipeline.Processor{summarize},
		Outputs:    []pipeline.Output{b.vault()},
		Logger:     b.logger,
	}, nil
}

// buildRSSCompareToObsidian fans each article out to every configured
// comparison model in parallel and writes the combined sections to the
// vault as one note per article.
func buildRSSCompareToObsidian(b *Builder, payload Payload) (*Pipeline, error) {
	ingestor, err := b.rssIngestor()
	if err != nil {
		return nil, err
	}

	compare, err := b.comparator(payload)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		Name:       "rss-compare-to-obsidian",
		Ingestor:   ingestor,
		Processors: []pipeline.Processor{compare},
		Outputs:    []pipeline.Output{b.vault()},
		Logger:     b.logger,
	}, nil
}

func (b *Builder) rssIngestor() (*rss.Ingestor, error) {
	if len(b.cfg.RSS.Feeds) == 0 {
		return nil, errors.New("no rss feeds configured")
	}

	conn, err := b.Catalog(db.FamilyRSS)
	if err != nil {
		return nil, err
	}

	feeds := make([]rss.FeedConfig, 0, len(b.cfg.RSS.Feeds))
	for _, f := range b.cfg.RSS.Feeds {
		feeds = append(feeds, rss.FeedConfig{URL: f.URL, PeerThrough: f.PeerThrough})
	}

	return rss.New(rss.NewStore(conn), rss.Config{
		Feeds:        feeds,
		Lookback:     time.Duration(b.cfg.RSS.LookbackDays) * 24 * time.Hour,
		MaxPerFeed:   b.cfg.RSS.MaxPerFeed,
		Enrich:       b.cfg.RSS.Enrich,
		HostInterval: time.Duration(b.cfg.RSS.HostIntervalMS) * time.Millisecond,
		Logger:       b.logger,
	}), nil
}

func buildPodcastToObsidian(b *Builder, payload Payload) (*Pipeline, error) {
	if len(b.cfg.Podcast.Feeds) == 0 {
		return nil, errors.New("no podcast feeds configured")
	}

	conn, err := b.Catalog(db.FamilyPodcast)
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(b.cfg.Podcast.Feeds))
	for _, f := range b.cfg.Podcast.Feeds {
		urls = append(urls, f.URL)
	}

	ingestor := podcast.New(podcast.NewStore(conn), podcast.Config{
		FeedURLs:      urls,
		Lookback:      time.Duration(b.cfg.Podcast.LookbackDays) * 24 * time.Hour,
		MaxPerFeed:    b.cfg.Podcast.MaxPerFeed,
		DownloadAudio: b.cfg.Podcast.DownloadAudio,
		AudioDir:      b.cfg.Podcast.AudioDir,
		HostInterval:  time.Duration(b.cfg.Podcast.HostIntervalMS) * time.Millisecond,
		Logger:        b.logger,
	})

	transcriber := transcribe.New(transcribe.Config{
		Binary:          b.cfg.Transcribe.Binary,
		ModelSize:       b.cfg.Transcribe.ModelSize,
		Language:        b.cfg.Transcribe.Language,
		Threads:         b.cfg.Transcribe.Threads,
		OutputDir:       b.cfg.Transcribe.OutputDir,
		Corrector:       b.corrector(),
		CorrectionModel: b.cfg.Transcribe.CorrectionModel,
		Logger:          b.logger,
	})

	summarize, err := b.summarizer("summarize-episode", payload)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		Name:       "podcast-to-obsidian",
		Ingestor:   ingestor,
		Processors: []pipeline.Processor{transcriber, summarize},
		Outputs:    []pipeline.Output{b.vault()},
		Logger:     b.logger,
	}, nil
}

func buildMessagesToReply(b *Builder, payload Payload) (*Pipeline, error) {
	if b.cfg.Messages.TriggerWord == "" {
		return nil, errors.New("messages.trigger_word not configured")
	}
	if len(b.cfg.IMessage.Recipients) == 0 {
		return nil, errors.New("imessage.recipients not configured")
	}

	reader, err := messages.OpenReader(b.cfg.Messages.DBPath)
	if err != nil {
		return nil, err
	}

	conn, err := b.Catalog(db.FamilyMessages)
	if err != nil {
		return nil, err
	}

	ingestor := messages.New(reader, messages.NewStore(conn), messages.Config{
		TriggerWord:    b.cfg.Messages.TriggerWord,
		IncludeSenders: b.cfg.Messages.IncludeSenders,
		ExcludeSenders: b.cfg.Messages.ExcludeSenders,
		Lookback:       time.Duration(b.cfg.Messages.LookbackHours) * time.Hour,
		MaxMessages:    b.cfg.Messages.MaxMessages,
		IncludeFromMe:  b.cfg.Messages.IncludeFromMe,
		Logger:         b.logger,
	})

	reply, err := b.replier(payload)
	if err != nil {
		return nil, err
	}

	sink, err := imessage.New(imessage.Config{
		Recipients: b.cfg.IMessage.Recipients,
		Prefix:     b.cfg.IMessage.Prefix,
		Suffix:     b.cfg.IMessage.Suffix,
		MaxLength:  b.cfg.IMessage.MaxLength,
		Split:      b.cfg.IMessage.Split,
		Logger:     b.logger,
	})
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		Name:       "messages-to-reply",
		Ingestor:   ingestor,
		Processors: []pipeline.Processor{reply},
		Outputs:    []pipeline.Output{sink},
		Logger:     b.logger,
	}, nil
}

func buildWebToObsidian(b *Builder, payload Payload) (*Pipeline, error) {
	if len(payload.URLs) == 0 {
		return nil, errors.New("web pipeline needs urls in its payload")
	}

	ingestor := web.New(web.Config{
		URLs:   payload.URLs,
		Logger: b.logger,
	})

	summarize, err := b.summarizer("summarize-page", payload)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		Name:       "web-to-obsidian",
		Ingestor:   ingestor,
		Processors: []pipeline.Processor{summarize},
		Outputs:    []pipeline.Output{b.vault()},
		Logger:     b.logger,
	}, nil
}

const summarizeTemplate = `Summarize the following content. Lead with the key points,
then notable details worth keeping. Preserve any links that matter.

{content}`

const replyTemplate = `You received this message. Write a concise, helpful reply.

{content}`

// summarizer builds the LLM stage shared by the vault pipelines.
func (b *Builder) summarizer(name string, payload Payload) (*llm.Processor, error) {
	client, model, provider, err := b.chatClient(payload.Model)
	if err != nil {
		return nil, err
	}

	body := summarizeTemplate
	if payload.Prompt != "" {
		body = payload.Prompt
	}

	return llm.New(client, llm.Config{
		Name:        name,
		Template:    llm.Template{Body: body},
		Model:       model,
		Provider:    provider,
		Temperature: b.cfg.OpenRouter.Temperature,
		MaxTokens:   b.cfg.OpenRouter.MaxTokens,
		Logger:      b.logger,
	}), nil
}

// comparator builds the fan-out stage: one child LLM processor per
// configured comparison alias, run in parallel with combined output.
func (b *Builder) comparator(payload Payload) (*mapreduce.Processor, error) {
	aliases := b.cfg.OpenRouter.CompareModels
	if len(aliases) == 0 {
		return nil, errors.New("openrouter.compare_models not configured")
	}

	body := summarizeTemplate
	if payload.Prompt != "" {
		body = payload.Prompt
	}

	children := make([]pipeline.Processor, 0, len(aliases))
	for _, alias := range aliases {
		client, model, provider, err := b.chatClient(alias)
		if err != nil {
			return nil, err
		}
		children = append(children, llm.New(client, llm.Config{
			Name:        alias,
			Template:    llm.Template{Body: body},
			Model:       model,
			Provider:    provider,
			Temperature: b.cfg.OpenRouter.Temperature,
			MaxTokens:   b.cfg.OpenRouter.MaxTokens,
			Logger:      b.logger,
		}))
	}

	return mapreduce.New(mapreduce.Config{
		Name:       "model-compare",
		Processors: children,
		Parallel:   true,
		Combine:    true,
		Logger:     b.logger,
	}), nil
}

func (b *Builder) replier(payload Payload) (*llm.Processor, error) {
	client, model, provider, err := b.chatClient(payload.Model)
	if err != nil {
		return nil, err
	}

	body := replyTemplate
	if payload.Prompt != "" {
		body = payload.Prompt
	}

	return llm.New(client, llm.Config{
		Name:       "draft-reply",
		Template:   llm.Template{Body: body},
		Model:      model,
		Provider:   provider,
		OutputType: pipeline.ContentText,
		Logger:     b.logger,
	}), nil
}

// chatClient picks the provider for an optional model alias, falling
// back to the configured defaults.
func (b *Builder) chatClient(alias string) (llm.Client, string, string, error) {
	if alias != "" {
		spec, err := ai.Resolve(alias)
		if err != nil {
			return nil, "", "", err
		}
		switch spec.Provider {
		case ai.ProviderOllama:
			return b.ollamaClient(spec.Model), spec.Model, string(spec.Provider), nil
		default:
			return b.openRouterClient(spec.Model), spec.Model, string(spec.Provider), nil
		}
	}

	if b.cfg.Ollama.Enabled {
		return b.ollamaClient(b.cfg.Ollama.Model), b.cfg.Ollama.Model, string(ai.ProviderOllama), nil
	}
	return b.openRouterClient(b.cfg.OpenRouter.Model), b.cfg.OpenRouter.Model, string(ai.ProviderOpenRouter), nil
}

// corrector returns the client used for transcript correction, or nil
// when no correction model is configured.
func (b *Builder) corrector() llm.Client {
	if b.cfg.Transcribe.CorrectionModel == "" {
		return nil
	}
	return b.openRouterClient(b.cfg.Transcribe.CorrectionModel)
}

func (b *Builder) openRouterClient(model string) *openrouter.Client {
	return openrouter.NewClient(openrouter.Config{
		APIKey:      b.cfg.OpenRouter.APIKey,
		Model:       model,
		Temperature: b.cfg.OpenRouter.Temperature,
		MaxTokens:   b.cfg.OpenRouter.MaxTokens,
		Logger:      b.logger,
	})
}

func (b *Builder) ollamaClient(model string) *ollama.Client {
	return ollama.NewClient(ollama.Config{
		BaseURL:        b.cfg.Ollama.BaseURL,
		Model:          model,
		TimeoutSeconds: b.cfg.Ollama.TimeoutSeconds,
		Logger:         b.logger,
	})
}

func (b *Builder) vault() *obsidian.Output {
	return obsidian.New(obsidian.Config{
		Vault:            b.cfg.Vault.Path,
		Folder:           b.cfg.Vault.Folder,
		FilenameTemplate: b.cfg.Vault.FilenameTemplate,
		Tags:             b.cfg.Vault.Tags,
		CreateFolders:    b.cfg.Vault.CreateFolders,
		Append:           b.cfg.Vault.Append,
		Prepend:          b.cfg.Vault.Prepend,
		Overwrite:        b.cfg.Vault.Overwrite,
		Logger:           b.logger,
	})
}
