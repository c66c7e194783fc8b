package messages

import (
	"context"
	"database/sql"

	"github.com/pedramamini/pedster/errors"
)

// Store is the durable dedup catalog for the message-history ingestor.
// Rows are keyed by the source store's rowid; re-presenting a message
// is a no-op.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetOrCreateThread returns the thread id for a chat identifier.
func (s *Store) GetOrCreateThread(ctx context.Context, chatIdentifier, displayName string) (int64, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO message_threads (chat_identifier, display_name) VALUES (?, ?)`,
		chatIdentifier, displayName)
	if err != nil {
		return 0, errors.Wrap(err, "create thread")
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM message_threads WHERE chat_identifier = ?`, chatIdentifier).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "get thread")
	}
	return id, nil
}

// LastSeenNs returns the thread's read cursor in unix nanoseconds, or
// zero when the thread is unknown.
func (s *Store) LastSeenNs(ctx context.Context, chatIdentifier string) (int64, error) {
	var ns int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_seen_ns FROM message_threads WHERE chat_identifier = ?`, chatIdentifier).Scan(&ns)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "get last seen")
	}
	return ns, nil
}

// AdvanceCursor moves the thread's read cursor forward. A cursor never
// moves backwards.
func (s *Store) AdvanceCursor(ctx context.Context, threadID, sentAtNs int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE message_threads SET last_seen_ns = MAX(last_seen_ns, ?) WHERE id = ?`,
		sentAtNs, threadID)
	return errors.Wrap(err, "advance cursor")
}

// InsertMessage records a seen message. A duplicate source rowid is a
// no-op returning inserted=false.
func (s *Store) InsertMessage(ctx context.Context, threadID int64, msg RawMessage) (inserted bool, err error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO messages (thread_id, source_rowid, sender, body, sent_at_ns)
		 VALUES (?, ?, ?, ?, ?)`,
		threadID, msg.RowID, msg.Sender, msg.Text, msg.SentAtNs)
	if err != nil {
		return false, errors.Wrap(err, "insert message")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "insert message rows affected")
	}
	return n > 0, nil
}

// MarkProcessed flags a message as converted to a pipeline record.
func (s *Store) MarkProcessed(ctx context.Context, sourceRowID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET processed = 1 WHERE source_rowid = ?`, sourceRowID)
	return errors.Wrap(err, "mark message processed")
}
