// Package rss ingests RSS and Atom feeds into pipeline records, backed
// by a durable catalog for deduplication and source health tracking.
package rss

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/pedramamini/pedster/errors"
	"github.com/pedramamini/pedster/internal/htmltext"
	"github.com/pedramamini/pedster/internal/httpclient"
	"github.com/pedramamini/pedster/internal/ratelimit"
	"github.com/pedramamini/pedster/pipeline"
)

const (
	fetchAttempts    = 3
	fetchBackoffUnit = 2 * time.Second
	defaultMaxItems  = 25
	defaultLookback  = 7 * 24 * time.Hour
)

// FeedConfig is one subscribed feed.
type FeedConfig struct {
	URL         string
	PeerThrough bool // entry links point at an aggregator; extract the origin URL
}

// Config for the rss ingestor.
type Config struct {
	Feeds        []FeedConfig
	Lookback     time.Duration // 0 = 7 days
	MaxPerFeed   int           // 0 = 25
	Enrich       bool          // fetch full pages for truncated entries
	Client       *httpclient.SaferClient
	HostInterval time.Duration // 0 = 2s
	RetryDelay   time.Duration // backoff unit between fetch attempts, 0 = 2s
	Logger       *zap.SugaredLogger
}

// Ingestor polls configured feeds. One feed's failure never aborts the
// others in the same call.
type Ingestor struct {
	store      *Store
	feeds      []FeedConfig
	lookback   time.Duration
	maxItems   int
	enrich     bool
	client     *httpclient.SaferClient
	limiter    *ratelimit.HostLimiter
	parser     *gofeed.Parser
	retryDelay time.Duration
	logger     *zap.SugaredLogger
}

func New(store *Store, cfg Config) *Ingestor {
	if cfg.Lookback == 0 {
		cfg.Lookback = defaultLookback
	}
	if cfg.MaxPerFeed == 0 {
		cfg.MaxPerFeed = defaultMaxItems
	}
	if cfg.Client == nil {
		cfg.Client = httpclient.New(30 * time.Second)
	}
	if cfg.HostInterval == 0 {
		cfg.HostInterval = 2 * time.Second
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = fetchBackoffUnit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	parser := gofeed.NewParser()
	parser.Client = cfg.Client.Client

	return &Ingestor{
		store:      store,
		feeds:      cfg.Feeds,
		lookback:   cfg.Lookback,
		maxItems:   cfg.MaxPerFeed,
		enrich:     cfg.Enrich,
		client:     cfg.Client,
		limiter:    ratelimit.NewHostLimiter(cfg.HostInterval),
		parser:     parser,
		retryDelay: cfg.RetryDelay,
		logger:     logger,
	}
}

func (i *Ingestor) Name() string { return "rss" }

// Ingest polls every configured feed in list order and returns records
// for articles not previously surfaced.
func (i *Ingestor) Ingest(ctx context.Context) ([]pipeline.Data, error) {
	var records []pipeline.Data

	for _, fc := range i.feeds {
		select {
		case <-ctx.Done():
			return records, ctx.Err()
		default:
		}

		feedRecords, err := i.ingestFeed(ctx, fc)
		if err != nil {
			if errors.Is(err, errors.ErrSourceMuted) {
				i.logger.Debugw("Skipping muted feed", "url", fc.URL)
				continue
			}
			i.logger.Warnw("Feed ingestion failed", "url", fc.URL, "error", err)
			continue
		}
		records = append(records, feedRecords...)
	}

	return records, nil
}

func (i *Ingestor) ingestFeed(ctx context.Context, fc FeedConfig) ([]pipeline.Data, error) {
	feed, err := i.store.GetOrCreateFeed(ctx, fc.URL, fc.PeerThrough)
	if err != nil {
		return nil, err
	}

	if feed.Muted {
		return nil, errors.Wrapf(errors.ErrSourceMuted, "feed %s (%s)", feed.URL, feed.MutedReason)
	}

	parsed, fetchErr := i.fetchFeed(ctx, fc.URL)
	if fetchErr != nil {
		muted, recErr := i.store.RecordFetchError(ctx, feed.ID, fetchErr.Error())
		if recErr != nil {
			i.logger.Errorw("Failed to record fetch error", "url", fc.URL, "error", recErr)
		}
		if muted {
			i.logger.Errorw("Feed auto-muted after repeated errors",
				"url", fc.URL, "last_error", fetchErr.Error())
		}
		return nil, fetchErr
	}

	if err := i.store.UpdateFeedInfo(ctx, feed.ID, parsed.Title, parsed.Description, parsed.Link); err != nil {
		i.logger.Warnw("Failed to update feed info", "url", fc.URL, "error", err)
	}

	items := i.eligibleItems(parsed.Items)
	if len(items) == 0 {
		count, err := i.store.RecordEmptyPoll(ctx, feed.ID)
		if err != nil {
			return nil, err
		}
		if count >= emptyPollWarnThreshold {
			i.logger.Warnw("Feed has returned no entries repeatedly",
				"url", fc.URL, "consecutive_empty_polls", count)
		}
		return nil, nil
	}

	newCount := 0
	for _, item := range items {
		inserted, err := i.storeItem(ctx, feed, fc, item)
		if err != nil {
			i.logger.Warnw("Failed to store entry", "url", fc.URL, "guid", item.GUID, "error", err)
			continue
		}
		if inserted {
			newCount++
		}
	}

	if err := i.store.RecordFetchSuccess(ctx, feed.ID); err != nil {
		i.logger.Warnw("Failed to record fetch success", "url", fc.URL, "error", err)
	}

	i.logger.Infow("Polled feed",
		"url", fc.URL,
		"title", parsed.Title,
		"entries", len(items),
		"new", newCount,
	)

	return i.collectRecords(ctx, feed, parsed.Title)
}

// fetchFeed retries transient failures with linearly increasing delay.
func (i *Ingestor) fetchFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	u, err := i.client.ValidateURL(feedURL)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * i.retryDelay
			i.logger.Debugw("Retrying feed fetch", "url", feedURL, "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := i.limiter.Wait(ctx, u.Hostname()); err != nil {
			return nil, err
		}

		parsed, err := i.parser.ParseURLWithContext(feedURL, ctx)
		if err == nil {
			return parsed, nil
		}
		lastErr = err
	}

	return nil, lastErr
}

// eligibleItems applies the lookback window, sorts newest first with
// undated entries leading, and caps the batch. Undated entries always
// pass the window.
func (i *Ingestor) eligibleItems(items []*gofeed.Item) []*gofeed.Item {
	cutoff := time.Now().Add(-i.lookback)

	var eligible []*gofeed.Item
	for _, item := range items {
		if item == nil {
			continue
		}
		if item.PublishedParsed != nil && item.PublishedParsed.Before(cutoff) {
			continue
		}
		eligible = append(eligible, item)
	}

	sort.SliceStable(eligible, func(a, b int) bool {
		pa, pb := eligible[a].PublishedParsed, eligible[b].PublishedParsed
		if pa == nil {
			return pb != nil
		}
		if pb == nil {
			return false
		}
		return pa.After(*pb)
	})

	if len(eligible) > i.maxItems {
		eligible = eligible[:i.maxItems]
	}
	return eligible
}

func (i *Ingestor) storeItem(ctx context.Context, feed *Feed, fc FeedConfig, item *gofeed.Item) (bool, error) {
	guid := item.GUID
	if guid == "" {
		guid = item.Link
	}
	if guid == "" {
		return false, nil
	}

	articleURL := item.Link
	if fc.PeerThrough {
		if origin := extractOriginURL(item.Description); origin != "" {
			articleURL = origin
		}
	}

	content := item.Content
	if content == "" {
		content = item.Description
	}

	enriched := false
	if i.enrich && articleURL != "" && looksTruncated(content) {
		if full := i.fetchFullContent(ctx, articleURL); len(full) > len(htmltext.StripTags(content)) {
			content = full
			enriched = true
		}
	}

	if !enriched {
		content = htmltext.StripTags(content)
	}

	a := &Article{
		FeedID:      feed.ID,
		GUID:        guid,
		URL:         articleURL,
		Title:       item.Title,
		Description: htmltext.StripTags(item.Description),
		Content:     content,
		Author:      itemAuthor(item),
		WordCount:   wordCount(content),
		Enriched:    enriched,
		PublishedAt: item.PublishedParsed,
	}
	return i.store.InsertArticle(ctx, a)
}

// fetchFullContent pulls the article page and extracts its main text.
// Any failure returns "" so the feed-supplied content stands.
func (i *Ingestor) fetchFullContent(ctx context.Context, articleURL string) string {
	u, err := i.client.ValidateURL(articleURL)
	if err != nil {
		return ""
	}
	if err := i.limiter.Wait(ctx, u.Hostname()); err != nil {
		return ""
	}

	resp, err := i.client.Get(articleURL)
	if err != nil {
		i.logger.Debugw("Enrichment fetch failed", "url", articleURL, "error", err)
		return ""
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return ""
	}
	return htmltext.ExtractText(string(body))
}

// collectRecords converts unprocessed catalog rows into pipeline
// records and flags them processed.
func (i *Ingestor) collectRecords(ctx context.Context, feed *Feed, feedTitle string) ([]pipeline.Data, error) {
	articles, err := i.store.ListUnprocessed(ctx, feed.ID)
	if err != nil {
		return nil, err
	}

	var records []pipeline.Data
	for _, a := range articles {
		content := a.Content
		if a.Title != "" {
			content = fmt.Sprintf("# %s\n\n%s", a.Title, content)
		}
		if a.URL != "" {
			content += "\n\nSource: " + a.URL
		}

		d := pipeline.NewData(content, pipeline.ContentMarkdown, "rss:"+sourceLabel(feedTitle, feed.URL))
		d.Metadata["title"] = a.Title
		d.Metadata["url"] = a.URL
		d.Metadata["guid"] = a.GUID
		d.Metadata["feed_url"] = feed.URL
		d.Metadata["word_count"] = a.WordCount
		d.Metadata["enriched"] = a.Enriched
		if a.Author != "" {
			d.Metadata["author"] = a.Author
		}
		if a.PublishedAt != nil {
			d.Metadata["published_at"] = a.PublishedAt.Format(time.RFC3339)
		}

		if err := i.store.MarkProcessed(ctx, a.ID); err != nil {
			i.logger.Warnw("Failed to mark article processed", "guid", a.GUID, "error", err)
			continue
		}
		records = append(records, d)
	}
	return records, nil
}

func itemAuthor(item *gofeed.Item) string {
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		return item.Authors[0].Name
	}
	if item.Author != nil {
		return item.Author.Name
	}
	return ""
}

func sourceLabel(title, feedURL string) string {
	if title != "" {
		return title
	}
	if u, err := url.Parse(feedURL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return feedURL
}
