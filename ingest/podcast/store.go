package podcast

import (
	"context"
	"database/sql"
	"time"

	"github.com/pedramamini/pedster/errors"
)

// Health thresholds shared with the rss catalog model: five consecutive
// fetch errors mute a podcast; empty polls only ever warn.
const (
	muteThreshold          = 5
	emptyPollWarnThreshold = 5
)

// Podcast is a catalog row for a subscribed show.
type Podcast struct {
	ID             int64
	FeedURL        string
	Title          string
	Author         string
	Description    string
	Muted          bool
	MutedReason    string
	ErrorCount     int
	NoEntriesCount int
	LastError      string
	LastChecked    *time.Time
}

// Episode is a catalog row for a seen episode.
type Episode struct {
	ID               int64
	PodcastID        int64
	GUID             string
	Title            string
	Description      string
	AudioURL         string
	Transcript       string
	TranscriptSource string
	TranscriptURL    string
	Processed        bool
	PublishedAt      *time.Time
}

// Store owns the podcast catalog. The podcast ingestor is its sole
// writer.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) GetOrCreatePodcast(ctx context.Context, feedURL string) (*Podcast, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO podcasts (feed_url) VALUES (?)`, feedURL)
	if err != nil {
		return nil, errors.Wrap(err, "create podcast")
	}
	return s.GetPodcastByURL(ctx, feedURL)
}

func (s *Store) GetPodcastByURL(ctx context.Context, feedURL string) (*Podcast, error) {
	row := s.db.QueryRowContext(ctx, podcastColumns+` WHERE feed_url = ?`, feedURL)
	return scanPodcast(row)
}

func (s *Store) ListPodcasts(ctx context.Context) ([]*Podcast, error) {
	rows, err := s.db.QueryContext(ctx, podcastColumns+` ORDER BY feed_url`)
	if err != nil {
		return nil, errors.Wrap(err, "list podcasts")
	}
	defer rows.Close()

	var out []*Podcast
	for rows.Next() {
		p, err := scanPodcast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpdatePodcastInfo(ctx context.Context, id int64, title, author, description string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE podcasts SET title = ?, author = ?, description = ?, last_checked = ? WHERE id = ?`,
		title, author, description, time.Now().UTC(), id)
	return errors.Wrap(err, "update podcast info")
}

// RecordFetchError mirrors the rss health machinery: the counter
// crossing the threshold sets the sticky mute flag.
func (s *Store) RecordFetchError(ctx context.Context, id int64, fetchErr string) (muted bool, err error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE podcasts
		 SET error_count = error_count + 1,
		     last_error = ?,
		     last_checked = ?,
		     muted = CASE WHEN error_count + 1 >= ? THEN 1 ELSE muted END,
		     muted_reason = CASE WHEN error_count + 1 >= ? THEN ? ELSE muted_reason END
		 WHERE id = ?
		 RETURNING muted`,
		fetchErr, time.Now().UTC(), muteThreshold, muteThreshold, fetchErr, id)

	var m int
	if err := row.Scan(&m); err != nil {
		return false, errors.Wrap(err, "record fetch error")
	}
	return m != 0, nil
}

func (s *Store) RecordFetchSuccess(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE podcasts SET error_count = 0, last_error = '', no_entries_count = 0, last_checked = ? WHERE id = ?`,
		time.Now().UTC(), id)
	return errors.Wrap(err, "record fetch success")
}

func (s *Store) RecordEmptyPoll(ctx context.Context, id int64) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE podcasts SET no_entries_count = no_entries_count + 1, last_checked = ? WHERE id = ? RETURNING no_entries_count`,
		time.Now().UTC(), id)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, errors.Wrap(err, "record empty poll")
	}
	return count, nil
}

func (s *Store) Mute(ctx context.Context, feedURL, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE podcasts SET muted = 1, muted_reason = ? WHERE feed_url = ?`, reason, feedURL)
	if err != nil {
		return errors.Wrap(err, "mute podcast")
	}
	return requireRow(res, feedURL)
}

func (s *Store) Unmute(ctx context.Context, feedURL string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE podcasts SET muted = 0, muted_reason = '', error_count = 0, no_entries_count = 0 WHERE feed_url = ?`, feedURL)
	if err != nil {
		return errors.Wrap(err, "unmute podcast")
	}
	return requireRow(res, feedURL)
}

// InsertEpisode records a newly seen episode; a duplicate guid is a
// no-op returning inserted=false.
func (s *Store) InsertEpisode(ctx context.Context, e *Episode) (inserted bool, err error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO episodes (podcast_id, guid, title, description, audio_url, transcript, transcript_source, transcript_url, published_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.PodcastID, e.GUID, e.Title, e.Description, e.AudioURL,
		e.Transcript, e.TranscriptSource, e.TranscriptURL, e.PublishedAt)
	if err != nil {
		return false, errors.Wrap(err, "insert episode")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "insert episode rows affected")
	}
	return n > 0, nil
}

// SetTranscript stores a transcript produced after insertion (e.g. by
// the speech-to-text processor).
func (s *Store) SetTranscript(ctx context.Context, episodeID int64, transcript, source string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE episodes SET transcript = ?, transcript_source = ? WHERE id = ?`,
		transcript, source, episodeID)
	return errors.Wrap(err, "set transcript")
}

// SetTranscriptByGUID stores a transcript keyed by the feed guid.
func (s *Store) SetTranscriptByGUID(ctx context.Context, guid, transcript, source string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE episodes SET transcript = ?, transcript_source = ? WHERE guid = ?`,
		transcript, source, guid)
	return errors.Wrap(err, "set transcript")
}

// ListUnprocessed returns episodes not yet converted to pipeline
// records, newest first with undated episodes leading.
func (s *Store) ListUnprocessed(ctx context.Context, podcastID int64) ([]*Episode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, podcast_id, guid, title, description, audio_url, transcript, transcript_source, transcript_url, processed, published_at
		 FROM episodes
		 WHERE podcast_id = ? AND processed = 0
		 ORDER BY published_at IS NULL DESC, published_at DESC`,
		podcastID)
	if err != nil {
		return nil, errors.Wrap(err, "list unprocessed episodes")
	}
	defer rows.Close()

	var out []*Episode
	for rows.Next() {
		e := &Episode{}
		var processed int
		var published sql.NullTime
		if err := rows.Scan(&e.ID, &e.PodcastID, &e.GUID, &e.Title, &e.Description,
			&e.AudioURL, &e.Transcript, &e.TranscriptSource, &e.TranscriptURL,
			&processed, &published); err != nil {
			return nil, errors.Wrap(err, "scan episode")
		}
		e.Processed = processed != 0
		if published.Valid {
			t := published.Time
			e.PublishedAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) MarkProcessed(ctx context.Context, episodeID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE episodes SET processed = 1 WHERE id = ?`, episodeID)
	return errors.Wrap(err, "mark episode processed")
}

const podcastColumns = `SELECT id, feed_url, title, author, description, muted, muted_reason,
	error_count, no_entries_count, last_error, last_checked
	FROM podcasts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPodcast(row rowScanner) (*Podcast, error) {
	p := &Podcast{}
	var muted int
	var lastChecked sql.NullTime
	err := row.Scan(&p.ID, &p.FeedURL, &p.Title, &p.Author, &p.Description,
		&muted, &p.MutedReason, &p.ErrorCount, &p.NoEntriesCount,
		&p.LastError, &lastChecked)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan podcast")
	}
	p.Muted = muted != 0
	if lastChecked.Valid {
		t := lastChecked.Time
		p.LastChecked = &t
	}
	return p, nil
}

func requireRow(res sql.Result, feedURL string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return errors.Wrapf(errors.ErrNotFound, "podcast %s", feedURL)
	}
	return nil
}
