package rss

import (
	"context"
	"database/sql"
	"time"

	"github.com/pedramamini/pedster/errors"
)

// muteThreshold is the consecutive-error count at which a feed is
// auto-muted. Muting is sticky; only an explicit Unmute clears it.
const muteThreshold = 5

// emptyPollWarnThreshold triggers a warning after this many consecutive
// zero-entry polls. Empty polls never mute.
const emptyPollWarnThreshold = 5

// Feed is a catalog row for a subscribed feed.
type Feed struct {
	ID             int64
	URL            string
	Title          string
	Description    string
	WebsiteURL     string
	PeerThrough    bool
	Muted          bool
	MutedReason    string
	ErrorCount     int
	NoEntriesCount int
	LastError      string
	LastChecked    *time.Time
	LastUpdated    *time.Time
	ArticleCount   int
}

// Article is a catalog row for a seen feed entry.
type Article struct {
	ID          int64
	FeedID      int64
	GUID        string
	URL         string
	Title       string
	Description string
	Content     string
	Author      string
	WordCount   int
	Enriched    bool
	Processed   bool
	PublishedAt *time.Time
}

// Store owns the rss catalog. The rss ingestor is its sole writer.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetOrCreateFeed returns the catalog row for url, creating it on first
// contact.
func (s *Store) GetOrCreateFeed(ctx context.Context, url string, peerThrough bool) (*Feed, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO feeds (url, peer_through) VALUES (?, ?)`,
		url, boolToInt(peerThrough))
	if err != nil {
		return nil, errors.Wrap(err, "create feed")
	}
	return s.GetFeedByURL(ctx, url)
}

// GetFeedByURL looks up one feed row.
func (s *Store) GetFeedByURL(ctx context.Context, url string) (*Feed, error) {
	row := s.db.QueryRowContext(ctx, feedColumns+` WHERE url = ?`, url)
	return scanFeed(row)
}

// ListFeeds returns all feeds ordered by URL.
func (s *Store) ListFeeds(ctx context.Context) ([]*Feed, error) {
	rows, err := s.db.QueryContext(ctx, feedColumns+` ORDER BY url`)
	if err != nil {
		return nil, errors.Wrap(err, "list feeds")
	}
	defer rows.Close()

	var feeds []*Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

// UpdateFeedInfo refreshes title and description from a parsed feed and
// stamps last_checked.
func (s *Store) UpdateFeedInfo(ctx context.Context, id int64, title, description, websiteURL string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE feeds SET title = ?, description = ?, website_url = ?, last_checked = ? WHERE id = ?`,
		title, description, websiteURL, time.Now().UTC(), id)
	return errors.Wrap(err, "update feed info")
}

// RecordFetchError bumps the consecutive-error counter and stores the
// error text. Crossing the threshold sets the sticky mute flag with the
// last error as the reason.
func (s *Store) RecordFetchError(ctx context.Context, id int64, fetchErr string) (muted bool, err error) {
	res := s.db.QueryRowContext(ctx,
		`UPDATE feeds
		 SET error_count = error_count + 1,
		     last_error = ?,
		     last_checked = ?,
		     muted = CASE WHEN error_count + 1 >= ? THEN 1 ELSE muted END,
		     muted_reason = CASE WHEN error_count + 1 >= ? THEN ? ELSE muted_reason END
		 WHERE id = ?
		 RETURNING muted`,
		fetchErr, time.Now().UTC(), muteThreshold, muteThreshold, fetchErr, id)

	var m int
	if err := res.Scan(&m); err != nil {
		return false, errors.Wrap(err, "record fetch error")
	}
	return m != 0, nil
}

// RecordFetchSuccess clears the consecutive-error state.
func (s *Store) RecordFetchSuccess(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE feeds SET error_count = 0, last_error = '', no_entries_count = 0, last_checked = ?, last_updated = ? WHERE id = ?`,
		time.Now().UTC(), time.Now().UTC(), id)
	return errors.Wrap(err, "record fetch success")
}

// RecordEmptyPoll bumps the consecutive-empty counter and returns its
// new value. Empty polls are a health signal only; they never mute.
func (s *Store) RecordEmptyPoll(ctx context.Context, id int64) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE feeds SET no_entries_count = no_entries_count + 1, last_checked = ? WHERE id = ? RETURNING no_entries_count`,
		time.Now().UTC(), id)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, errors.Wrap(err, "record empty poll")
	}
	return count, nil
}

// Mute sets the sticky mute flag manually.
func (s *Store) Mute(ctx context.Context, url, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE feeds SET muted = 1, muted_reason = ? WHERE url = ?`, reason, url)
	if err != nil {
		return errors.Wrap(err, "mute feed")
	}
	return requireRow(res, url)
}

// Unmute clears the mute flag and resets health counters so the feed
// gets a clean slate.
func (s *Store) Unmute(ctx context.Context, url string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE feeds SET muted = 0, muted_reason = '', error_count = 0, no_entries_count = 0 WHERE url = ?`, url)
	if err != nil {
		return errors.Wrap(err, "unmute feed")
	}
	return requireRow(res, url)
}

// InsertArticle records a newly seen entry. A duplicate guid is a
// no-op and returns inserted=false: the unique constraint is the dedup
// mechanism.
func (s *Store) InsertArticle(ctx context.Context, a *Article) (inserted bool, err error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO articles (feed_id, guid, url, title, description, content, author, word_count, enriched, published_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.FeedID, a.GUID, a.URL, a.Title, a.Description, a.Content, a.Author,
		a.WordCount, boolToInt(a.Enriched), a.PublishedAt)
	if err != nil {
		return false, errors.Wrap(err, "insert article")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "insert article rows affected")
	}
	if n > 0 {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE feeds SET article_count = article_count + 1 WHERE id = ?`, a.FeedID); err != nil {
			return true, errors.Wrap(err, "bump article count")
		}
	}
	return n > 0, nil
}

// ListUnprocessed returns articles not yet converted to pipeline
// records, newest first.
func (s *Store) ListUnprocessed(ctx context.Context, feedID int64) ([]*Article, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, feed_id, guid, url, title, description, content, author, word_count, enriched, processed, published_at
		 FROM articles
		 WHERE feed_id = ? AND processed = 0
		 ORDER BY published_at IS NULL DESC, published_at DESC`,
		feedID)
	if err != nil {
		return nil, errors.Wrap(err, "list unprocessed articles")
	}
	defer rows.Close()

	var out []*Article
	for rows.Next() {
		a := &Article{}
		var enriched, processed int
		var published sql.NullTime
		if err := rows.Scan(&a.ID, &a.FeedID, &a.GUID, &a.URL, &a.Title, &a.Description,
			&a.Content, &a.Author, &a.WordCount, &enriched, &processed, &published); err != nil {
			return nil, errors.Wrap(err, "scan article")
		}
		a.Enriched = enriched != 0
		a.Processed = processed != 0
		if published.Valid {
			t := published.Time
			a.PublishedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkProcessed flags an article as converted to a pipeline record.
func (s *Store) MarkProcessed(ctx context.Context, articleID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE articles SET processed = 1 WHERE id = ?`, articleID)
	return errors.Wrap(err, "mark article processed")
}

const feedColumns = `SELECT id, url, title, description, website_url, peer_through, muted, muted_reason,
	error_count, no_entries_count, last_error, last_checked, last_updated, article_count
	FROM feeds`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeed(row rowScanner) (*Feed, error) {
	f := &Feed{}
	var peerThrough, muted int
	var lastChecked, lastUpdated sql.NullTime
	err := row.Scan(&f.ID, &f.URL, &f.Title, &f.Description, &f.WebsiteURL,
		&peerThrough, &muted, &f.MutedReason, &f.ErrorCount, &f.NoEntriesCount,
		&f.LastError, &lastChecked, &lastUpdated, &f.ArticleCount)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan feed")
	}
	f.PeerThrough = peerThrough != 0
	f.Muted = muted != 0
	if lastChecked.Valid {
		t := lastChecked.Time
		f.LastChecked = &t
	}
	if lastUpdated.Valid {
		t := lastUpdated.Time
		f.LastUpdated = &t
	}
	return f, nil
}

func requireRow(res sql.Result, url string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return errors.Wrapf(errors.ErrNotFound, "feed %s", url)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
