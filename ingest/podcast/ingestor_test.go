package podcast

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedramamini/pedster/db"
	"github.com/pedramamini/pedster/errors"
	"github.com/pedramamini/pedster/internal/httpclient"
	ptesting "github.com/pedramamini/pedster/internal/testing"
	"github.com/pedramamini/pedster/pipeline"
)

func podcastXML(serverURL, transcriptPath string) string {
	transcriptLink := ""
	if transcriptPath != "" {
		transcriptLink = fmt.Sprintf(`<podcast:transcript url="%s%s" type="text/vtt"/>`, serverURL, transcriptPath)
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:podcast="https://podcastindex.org/namespace/1.0">
<channel>
<title>Test Show</title>
<description>A show for tests</description>
<item>
<guid>ep-1</guid>
<title>Episode One</title>
<description>The first episode</description>
<enclosure url="%s/audio/ep1.mp3" type="audio/mpeg" length="1000"/>
%s
<pubDate>%s</pubDate>
</item>
</channel>
</rss>`, serverURL, transcriptLink, time.Now().Format(time.RFC1123Z))
}

func newTestIngestor(t *testing.T, mux *http.ServeMux, cfg Config) (*Ingestor, *Store, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	store := NewStore(ptesting.CreateTestCatalog(t, db.FamilyPodcast))
	cfg.Client = httpclient.WrapClient(server.Client())
	cfg.HostInterval = time.Millisecond
	cfg.RetryDelay = time.Millisecond
	return New(store, cfg), store, server
}

func TestIngestor_TranscriptFromFeed(t *testing.T) {
	mux := http.NewServeMux()
	var serverURL string
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(podcastXML(serverURL, "/transcripts/ep1.vtt")))
	})
	mux.HandleFunc("/transcripts/ep1.vtt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/vtt")
		w.Write([]byte("WEBVTT\n\n00:00.000 --> 00:04.000\nSpoken words here.\n"))
	})

	ing, _, server := newTestIngestor(t, mux, Config{})
	serverURL = server.URL
	ing.feedURLs = []string{server.URL + "/feed.xml"}

	records, err := ing.Ingest(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, pipeline.ContentText, records[0].ContentType)
	assert.Contains(t, records[0].Content, "# Episode One")
	assert.Contains(t, records[0].Content, "Spoken words here.")
	assert.Equal(t, "podcast:Test Show", records[0].Source)
	assert.Equal(t, "feed:text/vtt", records[0].Metadata["transcript_source"])

	// Second poll: episode already cataloged, nothing new
	records, err = ing.Ingest(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestIngestor_DownloadsAudioWithoutTranscript(t *testing.T) {
	mux := http.NewServeMux()
	var serverURL string
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(podcastXML(serverURL, "")))
	})
	mux.HandleFunc("/audio/ep1.mp3", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake-audio-bytes"))
	})

	ing, _, server := newTestIngestor(t, mux, Config{
		DownloadAudio: true,
		AudioDir:      t.TempDir(),
	})
	serverURL = server.URL
	ing.feedURLs = []string{server.URL + "/feed.xml"}

	records, err := ing.Ingest(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, pipeline.ContentAudio, records[0].ContentType)
	assert.FileExists(t, records[0].Content)
	assert.Equal(t, serverURL+"/audio/ep1.mp3", records[0].Metadata["audio_url"])
}

func TestIngestor_SkipsEpisodeWithoutEnclosure(t *testing.T) {
	feed := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>No Audio</title>
<item><guid>x</guid><title>No enclosure</title><pubDate>` + time.Now().Format(time.RFC1123Z) + `</pubDate></item>
</channel></rss>`

	mux := http.NewServeMux()
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feed))
	})

	ing, store, server := newTestIngestor(t, mux, Config{DownloadAudio: true, AudioDir: t.TempDir()})
	ing.feedURLs = []string{server.URL + "/feed.xml"}

	records, err := ing.Ingest(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)

	pod, err := store.GetPodcastByURL(context.Background(), server.URL+"/feed.xml")
	require.NoError(t, err)
	assert.False(t, pod.Muted)
}

func TestStore_InsertEpisodeDedup(t *testing.T) {
	store := NewStore(ptesting.CreateTestCatalog(t, db.FamilyPodcast))
	ctx := context.Background()

	pod, err := store.GetOrCreatePodcast(ctx, "https://example.com/show.xml")
	require.NoError(t, err)

	e := &Episode{PodcastID: pod.ID, GUID: "ep-1", Title: "One", AudioURL: "https://example.com/1.mp3"}

	inserted, err := store.InsertEpisode(ctx, e)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.InsertEpisode(ctx, e)
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestStore_ErrorMuting(t *testing.T) {
	store := NewStore(ptesting.CreateTestCatalog(t, db.FamilyPodcast))
	ctx := context.Background()

	pod, err := store.GetOrCreatePodcast(ctx, "https://example.com/show.xml")
	require.NoError(t, err)

	for n := 1; n < muteThreshold; n++ {
		muted, err := store.RecordFetchError(ctx, pod.ID, "boom")
		require.NoError(t, err)
		assert.False(t, muted)
	}
	muted, err := store.RecordFetchError(ctx, pod.ID, "last error")
	require.NoError(t, err)
	assert.True(t, muted)

	pod, err = store.GetPodcastByURL(ctx, pod.FeedURL)
	require.NoError(t, err)
	assert.Equal(t, "last error", pod.MutedReason)
}

func TestIngestor_MutedPodcastSkipped(t *testing.T) {
	requested := false
	mux := http.NewServeMux()
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		requested = true
	})

	ing, store, server := newTestIngestor(t, mux, Config{})
	ctx := context.Background()

	feedURL := server.URL + "/feed.xml"
	ing.feedURLs = []string{feedURL}

	pod, err := store.GetOrCreatePodcast(ctx, feedURL)
	require.NoError(t, err)
	require.NoError(t, store.Mute(ctx, pod.FeedURL, "manual"))

	_, err = ing.ingestPodcast(ctx, feedURL)
	assert.True(t, errors.Is(err, errors.ErrSourceMuted))

	records, err := ing.Ingest(ctx)
	require.NoError(t, err, "batch-level calls never fail on a muted show")
	assert.Empty(t, records)
	assert.False(t, requested, "muted podcast must not be fetched")
}
