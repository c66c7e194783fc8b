package messages

import (
	"context"
	"database/sql"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pedramamini/pedster/errors"
	"github.com/pedramamini/pedster/internal/util"
)

// appleEpochOffset converts macOS Messages timestamps (nanoseconds
// since 2001-01-01) to unix nanoseconds.
const appleEpochOffset = 978307200 * int64(time.Second)

// RawMessage is one row read from the Messages store.
type RawMessage struct {
	RowID          int64
	ChatIdentifier string
	Sender         string // handle id, or display name when resolvable
	Text           string
	SentAtNs       int64 // unix nanoseconds
	FromMe         bool
}

// Reader provides read-only access to the macOS Messages database
// (chat.db). It never writes: pedster's own dedup state lives in its
// separate catalog.
type Reader struct {
	db *sql.DB
}

// OpenReader opens chat.db in read-only mode.
func OpenReader(path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "messages database %s", path)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "open messages database")
	}
	return &Reader{db: db}, nil
}

// NewReaderFromDB wraps an existing handle. Tests build a fixture
// schema in memory and pass it here.
func NewReaderFromDB(db *sql.DB) *Reader {
	return &Reader{db: db}
}

func (r *Reader) Close() error {
	return r.db.Close()
}

// Query returns messages sent after cutoff (unix nanoseconds),
// optionally containing trigger as a substring, oldest first, capped at
// limit. Sender display names resolve best-effort through the chat's
// display name and silently fall back to the raw handle.
func (r *Reader) Query(ctx context.Context, cutoffNs int64, trigger string, limit int) ([]RawMessage, error) {
	query := `
		SELECT m.ROWID, COALESCE(c.chat_identifier, ''), COALESCE(h.id, ''),
		       COALESCE(m.text, ''), m.date, m.is_from_me
		FROM message m
		LEFT JOIN handle h ON m.handle_id = h.ROWID
		LEFT JOIN chat_message_join cmj ON cmj.message_id = m.ROWID
		LEFT JOIN chat c ON c.ROWID = cmj.chat_id
		WHERE m.date > ? AND m.text IS NOT NULL AND m.text != ''`
	args := []any{cutoffNs - appleEpochOffset}

	if trigger != "" {
		query += ` AND m.text LIKE ?`
		args = append(args, "%"+trigger+"%")
	}

	query += ` ORDER BY m.date ASC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query messages")
	}
	defer rows.Close()

	var out []RawMessage
	for rows.Next() {
		var msg RawMessage
		var appleNs int64
		var fromMe int
		if err := rows.Scan(&msg.RowID, &msg.ChatIdentifier, &msg.Sender,
			&msg.Text, &appleNs, &fromMe); err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		msg.SentAtNs = appleNs + appleEpochOffset
		msg.FromMe = fromMe != 0

		msg.Sender = util.FirstNonEmpty(r.displayName(ctx, msg.ChatIdentifier), msg.Sender)
		out = append(out, msg)
	}
	return out, rows.Err()
}

// displayName is a best-effort secondary lookup that is allowed to
// silently fail.
func (r *Reader) displayName(ctx context.Context, chatIdentifier string) string {
	if chatIdentifier == "" {
		return ""
	}
	var name sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT display_name FROM chat WHERE chat_identifier = ?`, chatIdentifier).Scan(&name)
	if err != nil || !name.Valid {
		return ""
	}
	return name.String
}
