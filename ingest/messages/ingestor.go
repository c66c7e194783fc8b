// Package messages ingests the local iMessage history. A trigger word
// marks which incoming messages are actionable, and only the text after
// the trigger becomes record content.
package messages

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pedramamini/pedster/pipeline"
)

const defaultMaxMessages = 100

// Config for the message-history ingestor.
type Config struct {
	TriggerWord    string // required: substring marking actionable messages
	IncludeSenders []string
	ExcludeSenders []string
	Lookback       time.Duration // 0 = 24h
	MaxMessages    int           // 0 = 100
	IncludeFromMe  bool
	Logger         *zap.SugaredLogger
}

// Ingestor polls the Messages store for new trigger-word messages.
type Ingestor struct {
	reader *Reader
	store  *Store
	cfg    Config
	logger *zap.SugaredLogger
}

func New(reader *Reader, store *Store, cfg Config) *Ingestor {
	if cfg.Lookback == 0 {
		cfg.Lookback = 24 * time.Hour
	}
	if cfg.MaxMessages == 0 {
		cfg.MaxMessages = defaultMaxMessages
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Ingestor{
		reader: reader,
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

func (i *Ingestor) Name() string { return "messages" }

// Ingest surfaces messages newer than the lookback window that carry
// the trigger word and have not been seen before.
func (i *Ingestor) Ingest(ctx context.Context) ([]pipeline.Data, error) {
	cutoffNs := time.Now().Add(-i.cfg.Lookback).UnixNano()

	raw, err := i.reader.Query(ctx, cutoffNs, i.cfg.TriggerWord, i.cfg.MaxMessages)
	if err != nil {
		return nil, err
	}

	var records []pipeline.Data
	for _, msg := range raw {
		if msg.FromMe && !i.cfg.IncludeFromMe {
			continue
		}
		if !i.senderAllowed(msg.Sender) {
			continue
		}

		content := extractAfterTrigger(msg.Text, i.cfg.TriggerWord)
		if content == "" {
			continue
		}

		// Messages strictly behind the thread cursor were surfaced in an
		// earlier poll; the rowid catalog still backstops equal timestamps.
		lastSeen, err := i.store.LastSeenNs(ctx, msg.ChatIdentifier)
		if err != nil {
			i.logger.Warnw("Failed to read thread cursor", "chat", msg.ChatIdentifier, "error", err)
		} else if msg.SentAtNs < lastSeen {
			continue
		}

		threadID, err := i.store.GetOrCreateThread(ctx, msg.ChatIdentifier, msg.Sender)
		if err != nil {
			i.logger.Warnw("Failed to resolve thread", "chat", msg.ChatIdentifier, "error", err)
			continue
		}

		inserted, err := i.store.InsertMessage(ctx, threadID, msg)
		if err != nil {
			i.logger.Warnw("Failed to catalog message", "rowid", msg.RowID, "error", err)
			continue
		}
		if !inserted {
			continue
		}

		if err := i.store.AdvanceCursor(ctx, threadID, msg.SentAtNs); err != nil {
			i.logger.Warnw("Failed to advance cursor", "chat", msg.ChatIdentifier, "error", err)
		}

		d := pipeline.NewData(content, pipeline.ContentText, "imessage:"+msg.ChatIdentifier)
		d.Metadata["sender"] = msg.Sender
		d.Metadata["chat_identifier"] = msg.ChatIdentifier
		d.Metadata["sent_at"] = time.Unix(0, msg.SentAtNs).Format(time.RFC3339)
		d.Metadata["source_rowid"] = msg.RowID

		if err := i.store.MarkProcessed(ctx, msg.RowID); err != nil {
			i.logger.Warnw("Failed to mark message processed", "rowid", msg.RowID, "error", err)
			continue
		}
		records = append(records, d)
	}

	i.logger.Debugw("Polled message history",
		"candidates", len(raw),
		"new", len(records),
	)
	return records, nil
}

func (i *Ingestor) senderAllowed(sender string) bool {
	for _, ex := range i.cfg.ExcludeSenders {
		if strings.EqualFold(sender, ex) {
			return false
		}
	}
	if len(i.cfg.IncludeSenders) == 0 {
		return true
	}
	for _, inc := range i.cfg.IncludeSenders {
		if strings.EqualFold(sender, inc) {
			return true
		}
	}
	return false
}

// extractAfterTrigger returns the trimmed substring after the first
// case-insensitive occurrence of trigger, or "" when the trigger is
// absent or nothing follows it.
func extractAfterTrigger(text, trigger string) string {
	if trigger == "" {
		return strings.TrimSpace(text)
	}
	idx := strings.Index(strings.ToLower(text), strings.ToLower(trigger))
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(text[idx+len(trigger):])
}
