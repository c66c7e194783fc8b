// Package podcast ingests podcast feeds: new episodes are deduplicated
// through a durable catalog and surfaced either as text records (when a
// published transcript exists) or audio records pointing at a local
// download for the speech-to-text processor.
package podcast

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
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
	defaultMaxItems  = 10
	defaultLookback  = 7 * 24 * time.Hour
)

// Config for the podcast ingestor.
type Config struct {
	FeedURLs      []string
	Lookback      time.Duration // 0 = 7 days
	MaxPerFeed    int           // 0 = 10
	DownloadAudio bool          // fetch enclosures for episodes without transcripts
	AudioDir      string        // 0 = os.TempDir()
	Client        *httpclient.SaferClient
	HostInterval  time.Duration // 0 = 2s
	RetryDelay    time.Duration // 0 = 2s
	Logger        *zap.SugaredLogger
}

// Ingestor polls configured podcast feeds.
type Ingestor struct {
	store         *Store
	feedURLs      []string
	lookback      time.Duration
	maxItems      int
	downloadAudio bool
	audioDir      string
	client        *httpclient.SaferClient
	limiter       *ratelimit.HostLimiter
	parser        *gofeed.Parser
	retryDelay    time.Duration
	logger        *zap.SugaredLogger
}

func New(store *Store, cfg Config) *Ingestor {
	if cfg.Lookback == 0 {
		cfg.Lookback = defaultLookback
	}
	if cfg.MaxPerFeed == 0 {
		cfg.MaxPerFeed = defaultMaxItems
	}
	if cfg.AudioDir == "" {
		cfg.AudioDir = os.TempDir()
	}
	if cfg.Client == nil {
		cfg.Client = httpclient.New(60 * time.Second)
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
		store:         store,
		feedURLs:      cfg.FeedURLs,
		lookback:      cfg.Lookback,
		maxItems:      cfg.MaxPerFeed,
		downloadAudio: cfg.DownloadAudio,
		audioDir:      cfg.AudioDir,
		client:        cfg.Client,
		limiter:       ratelimit.NewHostLimiter(cfg.HostInterval),
		parser:        parser,
		retryDelay:    cfg.RetryDelay,
		logger:        logger,
	}
}

func (i *Ingestor) Name() string { return "podcast" }

// Ingest polls every configured feed in list order. One show's failure
// never aborts the others.
func (i *Ingestor) Ingest(ctx context.Context) ([]pipeline.Data, error) {
	var records []pipeline.Data

	for _, feedURL := range i.feedURLs {
		select {
		case <-ctx.Done():
			return records, ctx.Err()
		default:
		}

		feedRecords, err := i.ingestPodcast(ctx, feedURL)
		if err != nil {
			if errors.Is(err, errors.ErrSourceMuted) {
				i.logger.Debugw("Skipping muted podcast", "url", feedURL)
				continue
			}
			i.logger.Warnw("Podcast ingestion failed", "url", feedURL, "error", err)
			continue
		}
		records = append(records, feedRecords...)
	}

	return records, nil
}

func (i *Ingestor) ingestPodcast(ctx context.Context, feedURL string) ([]pipeline.Data, error) {
	pod, err := i.store.GetOrCreatePodcast(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	if pod.Muted {
		return nil, errors.Wrapf(errors.ErrSourceMuted, "podcast %s (%s)", pod.FeedURL, pod.MutedReason)
	}

	parsed, fetchErr := i.fetchFeed(ctx, feedURL)
	if fetchErr != nil {
		muted, recErr := i.store.RecordFetchError(ctx, pod.ID, fetchErr.Error())
		if recErr != nil {
			i.logger.Errorw("Failed to record fetch error", "url", feedURL, "error", recErr)
		}
		if muted {
			i.logger.Errorw("Podcast auto-muted after repeated errors",
				"url", feedURL, "last_error", fetchErr.Error())
		}
		return nil, fetchErr
	}

	author := ""
	if parsed.ITunesExt != nil {
		author = parsed.ITunesExt.Author
	}
	if err := i.store.UpdatePodcastInfo(ctx, pod.ID, parsed.Title, author, parsed.Description); err != nil {
		i.logger.Warnw("Failed to update podcast info", "url", feedURL, "error", err)
	}

	items := i.eligibleItems(parsed.Items)
	if len(items) == 0 {
		count, err := i.store.RecordEmptyPoll(ctx, pod.ID)
		if err != nil {
			return nil, err
		}
		if count >= emptyPollWarnThreshold {
			i.logger.Warnw("Podcast has returned no episodes repeatedly",
				"url", feedURL, "consecutive_empty_polls", count)
		}
		return nil, nil
	}

	for _, item := range items {
		if err := i.storeEpisode(ctx, pod, item); err != nil {
			i.logger.Warnw("Failed to store episode", "url", feedURL, "guid", item.GUID, "error", err)
		}
	}

	if err := i.store.RecordFetchSuccess(ctx, pod.ID); err != nil {
		i.logger.Warnw("Failed to record fetch success", "url", feedURL, "error", err)
	}

	return i.collectRecords(ctx, pod, parsed.Title)
}

func (i *Ingestor) fetchFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	u, err := i.client.ValidateURL(feedURL)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * i.retryDelay
			i.logger.Debugw("Retrying podcast fetch", "url", feedURL, "attempt", attempt, "delay", delay)
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

func (i *Ingestor) storeEpisode(ctx context.Context, pod *Podcast, item *gofeed.Item) error {
	guid := item.GUID
	if guid == "" {
		guid = item.Link
	}
	if guid == "" {
		return nil
	}

	audioURL := findAudioEnclosure(item)
	if audioURL == "" {
		i.logger.Debugw("Episode has no audio enclosure, skipping", "guid", guid, "title", item.Title)
		return nil
	}

	e := &Episode{
		PodcastID:     pod.ID,
		GUID:          guid,
		Title:         item.Title,
		Description:   htmltext.StripTags(item.Description),
		AudioURL:      audioURL,
		TranscriptURL: findTranscriptLink(item),
		PublishedAt:   item.PublishedParsed,
	}

	inserted, err := i.store.InsertEpisode(ctx, e)
	if err != nil || !inserted {
		return err
	}

	// Fetch the published transcript for fresh episodes only.
	if e.TranscriptURL != "" {
		if transcript, mime := i.fetchTranscript(ctx, e.TranscriptURL); transcript != "" {
			if err := i.store.SetTranscriptByGUID(ctx, guid, transcript, "feed:"+mime); err != nil {
				i.logger.Warnw("Failed to store transcript", "guid", guid, "error", err)
			}
		}
	}

	return nil
}

func (i *Ingestor) fetchTranscript(ctx context.Context, transcriptURL string) (text, mime string) {
	u, err := i.client.ValidateURL(transcriptURL)
	if err != nil {
		return "", ""
	}
	if err := i.limiter.Wait(ctx, u.Hostname()); err != nil {
		return "", ""
	}

	resp, err := i.client.Get(transcriptURL)
	if err != nil {
		i.logger.Debugw("Transcript fetch failed", "url", transcriptURL, "error", err)
		return "", ""
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", ""
	}

	mime = resp.Header.Get("Content-Type")
	return DecodeTranscript(string(body), mime), mime
}

// collectRecords converts unprocessed episodes. Episodes with a
// transcript become text records; the rest become audio records
// pointing at a local download when downloading is enabled.
func (i *Ingestor) collectRecords(ctx context.Context, pod *Podcast, title string) ([]pipeline.Data, error) {
	episodes, err := i.store.ListUnprocessed(ctx, pod.ID)
	if err != nil {
		return nil, err
	}

	source := "podcast:" + sourceLabel(title, pod.FeedURL)

	var records []pipeline.Data
	for _, e := range episodes {
		var d pipeline.Data

		switch {
		case e.Transcript != "":
			content := e.Transcript
			if e.Title != "" {
				content = fmt.Sprintf("# %s\n\n%s", e.Title, content)
			}
			d = pipeline.NewData(content, pipeline.ContentText, source)
			d.Metadata["transcript_source"] = e.TranscriptSource

		case i.downloadAudio:
			path, err := i.downloadEnclosure(ctx, e.AudioURL)
			if err != nil {
				// Left unprocessed so the next poll retries the download.
				i.logger.Warnw("Failed to download episode audio",
					"guid", e.GUID, "url", e.AudioURL, "error", err)
				continue
			}
			d = pipeline.NewData(path, pipeline.ContentAudio, source)
			d.Metadata["audio_url"] = e.AudioURL

		default:
			i.logger.Debugw("Episode has no transcript and downloading is off, skipping",
				"guid", e.GUID)
			if err := i.store.MarkProcessed(ctx, e.ID); err != nil {
				i.logger.Warnw("Failed to mark episode processed", "guid", e.GUID, "error", err)
			}
			continue
		}

		d.Metadata["title"] = e.Title
		d.Metadata["guid"] = e.GUID
		d.Metadata["episode_id"] = e.ID
		if e.Description != "" {
			d.Metadata["description"] = e.Description
		}
		if e.PublishedAt != nil {
			d.Metadata["published_at"] = e.PublishedAt.Format(time.RFC3339)
		}

		if err := i.store.MarkProcessed(ctx, e.ID); err != nil {
			i.logger.Warnw("Failed to mark episode processed", "guid", e.GUID, "error", err)
			continue
		}
		records = append(records, d)
	}
	return records, nil
}

// downloadEnclosure streams the audio file to the configured directory.
func (i *Ingestor) downloadEnclosure(ctx context.Context, audioURL string) (string, error) {
	u, err := i.client.ValidateURL(audioURL)
	if err != nil {
		return "", err
	}
	if err := i.limiter.Wait(ctx, u.Hostname()); err != nil {
		return "", err
	}

	resp, err := i.client.Get(audioURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	ext := filepath.Ext(u.Path)
	if ext == "" {
		ext = ".mp3"
	}
	path := filepath.Join(i.audioDir, "pedster_"+uuid.NewString()+ext)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// findAudioEnclosure returns the first audio enclosure URL.
func findAudioEnclosure(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc == nil {
			continue
		}
		if strings.HasPrefix(enc.Type, "audio/") || enc.Type == "" {
			return enc.URL
		}
	}
	return ""
}

// findTranscriptLink checks the podcast-namespace transcript extension,
// then falls back to any link that looks like a transcript.
func findTranscriptLink(item *gofeed.Item) string {
	if ext, ok := item.Extensions["podcast"]; ok {
		for _, t := range ext["transcript"] {
			if u := t.Attrs["url"]; u != "" {
				return u
			}
		}
	}
	for _, link := range item.Links {
		if strings.Contains(strings.ToLower(link), "transcript") {
			return link
		}
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
