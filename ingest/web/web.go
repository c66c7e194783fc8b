// Package web ingests arbitrary web pages as markdown records.
package web

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/pedramamini/pedster/internal/htmltext"
	"github.com/pedramamini/pedster/internal/httpclient"
	"github.com/pedramamini/pedster/internal/ratelimit"
	"github.com/pedramamini/pedster/pipeline"
)

// Ingestor fetches configured URLs and extracts their main content.
// A failing URL is logged and skipped; it never aborts the batch.
type Ingestor struct {
	urls    []string
	client  *httpclient.SaferClient
	limiter *ratelimit.HostLimiter
	logger  *zap.SugaredLogger
}

// Config for the web ingestor.
type Config struct {
	URLs         []string
	Client       *httpclient.SaferClient // nil = default hardened client
	HostInterval time.Duration           // min spacing per host, 0 = 2s
	Logger       *zap.SugaredLogger
}

func New(cfg Config) *Ingestor {
	client := cfg.Client
	if client == nil {
		client = httpclient.New(30 * time.Second)
	}
	if cfg.HostInterval == 0 {
		cfg.HostInterval = 2 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Ingestor{
		urls:    cfg.URLs,
		client:  client,
		limiter: ratelimit.NewHostLimiter(cfg.HostInterval),
		logger:  logger,
	}
}

func (i *Ingestor) Name() string { return "web" }

// Ingest fetches every configured URL and emits one markdown record per
// page that yields any readable text.
func (i *Ingestor) Ingest(ctx context.Context) ([]pipeline.Data, error) {
	var records []pipeline.Data

	for _, pageURL := range i.urls {
		select {
		case <-ctx.Done():
			return records, ctx.Err()
		default:
		}

		d, err := i.fetchPage(ctx, pageURL)
		if err != nil {
			i.logger.Warnw("Failed to ingest page", "url", pageURL, "error", err)
			continue
		}
		records = append(records, d)
	}

	return records, nil
}

func (i *Ingestor) fetchPage(ctx context.Context, pageURL string) (pipeline.Data, error) {
	parsed, err := i.client.ValidateURL(pageURL)
	if err != nil {
		return pipeline.Data{}, err
	}

	if err := i.limiter.Wait(ctx, parsed.Hostname()); err != nil {
		return pipeline.Data{}, err
	}

	resp, err := i.client.Get(pageURL)
	if err != nil {
		return pipeline.Data{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return pipeline.Data{}, err
	}

	html := string(body)
	title := htmltext.ExtractTitle(html)
	if title == "" {
		title = hostnameTitle(pageURL)
	}
	text := htmltext.ExtractText(html)

	content := fmt.Sprintf("# %s\n\n%s\n\nSource: %s", title, text, pageURL)

	d := pipeline.NewData(content, pipeline.ContentMarkdown, "web:"+parsed.Hostname())
	d.Metadata["url"] = pageURL
	d.Metadata["title"] = title
	d.Metadata["status_code"] = resp.StatusCode

	i.logger.Debugw("Ingested page",
		"url", pageURL,
		"title", title,
		"content_length", len(text),
	)
	return d, nil
}

func hostnameTitle(pageURL string) string {
	if u, err := url.Parse(pageURL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return pageURL
}
