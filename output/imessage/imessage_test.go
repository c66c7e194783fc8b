package imessage

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedramamini/pedster/errors"
	"github.com/pedramamini/pedster/pipeline"
)

type sentMessage struct {
	recipient string
	body      string
}

// recorder captures sends and optionally fails for specific
// recipients.
type recorder struct {
	sent    []sentMessage
	failFor map[string]bool
}

func (r *recorder) send(ctx context.Context, recipient, body string) error {
	if r.failFor[recipient] {
		return errors.New("send failed")
	}
	r.sent = append(r.sent, sentMessage{recipient: recipient, body: body})
	return nil
}

func newOutput(t *testing.T, cfg Config, rec *recorder) *Output {
	t.Helper()
	if cfg.Recipients == nil {
		cfg.Recipients = []string{"+15551234567"}
	}
	cfg.Send = rec.send
	out, err := New(cfg)
	require.NoError(t, err)
	return out
}

func textRecord(content string) pipeline.Data {
	return pipeline.NewData(content, pipeline.ContentText, "test")
}

func TestRequiresRecipients(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestShortMessageSentWhole(t *testing.T) {
	rec := &recorder{}
	out := newOutput(t, Config{}, rec)

	require.True(t, out.Write(context.Background(), textRecord("hello there")))

	require.Len(t, rec.sent, 1)
	assert.Equal(t, "hello there", rec.sent[0].body)
}

func TestPrefixSuffix(t *testing.T) {
	rec := &recorder{}
	out := newOutput(t, Config{Prefix: "Daily summary:", Suffix: "- pedster"}, rec)

	require.True(t, out.Write(context.Background(), textRecord("the body")))

	require.Len(t, rec.sent, 1)
	assert.True(t, strings.HasPrefix(rec.sent[0].body, "Daily summary:"))
	assert.True(t, strings.HasSuffix(rec.sent[0].body, "- pedster"))
	assert.Contains(t, rec.sent[0].body, "the body")
}

func TestTruncationWithoutSplit(t *testing.T) {
	rec := &recorder{}
	out := newOutput(t, Config{MaxLength: 100}, rec)

	long := strings.Repeat("abcde ", 50)
	require.True(t, out.Write(context.Background(), textRecord(long)))

	require.Len(t, rec.sent, 1)
	assert.LessOrEqual(t, len(rec.sent[0].body), 100)
	assert.True(t, strings.HasSuffix(rec.sent[0].body, "[Message truncated]"))
}

func TestChunkingReassemblesOriginal(t *testing.T) {
	rec := &recorder{}
	out := newOutput(t, Config{MaxLength: 120, Split: true}, rec)

	var paragraphs []string
	for i := 0; i < 12; i++ {
		paragraphs = append(paragraphs, fmt.Sprintf("paragraph number %d with some words in it", i))
	}
	original := strings.Join(paragraphs, "\n\n")

	require.True(t, out.Write(context.Background(), textRecord(original)))

	require.Greater(t, len(rec.sent), 1)

	var rebuilt []string
	for i, msg := range rec.sent {
		assert.LessOrEqual(t, len(msg.body), 120)

		header := fmt.Sprintf("[Part %d/%d]\n\n", i+1, len(rec.sent))
		require.True(t, strings.HasPrefix(msg.body, header), "part %d missing header", i+1)
		rebuilt = append(rebuilt, strings.TrimPrefix(msg.body, header))
	}

	joined := strings.Join(rebuilt, "\n\n")
	assert.Equal(t, original, joined)
}

func TestChunkingManyPartsStaysWithinLimit(t *testing.T) {
	rec := &recorder{}
	out := newOutput(t, Config{MaxLength: 40, Split: true}, rec)

	var paragraphs []string
	for i := 0; i < 150; i++ {
		paragraphs = append(paragraphs, fmt.Sprintf("short paragraph %03d", i))
	}
	require.True(t, out.Write(context.Background(), textRecord(strings.Join(paragraphs, "\n\n"))))

	// Three-digit part counts widen the headers; every rendered part
	// still has to respect the limit.
	require.Greater(t, len(rec.sent), 99)
	for i, msg := range rec.sent {
		assert.LessOrEqual(t, len(msg.body), 40, "part %d exceeds max", i+1)
	}
}

func TestChunkingKeepsRuneBoundary(t *testing.T) {
	rec := &recorder{}
	out := newOutput(t, Config{MaxLength: 60, Split: true}, rec)

	require.True(t, out.Write(context.Background(), textRecord(strings.Repeat("日", 120))))

	require.Greater(t, len(rec.sent), 1)
	for _, msg := range rec.sent {
		assert.LessOrEqual(t, len(msg.body), 60)
		assert.True(t, utf8.ValidString(msg.body))
	}
}

func TestTruncationKeepsRuneBoundary(t *testing.T) {
	rec := &recorder{}
	out := newOutput(t, Config{MaxLength: 100}, rec)

	require.True(t, out.Write(context.Background(), textRecord(strings.Repeat("日", 100))))

	require.Len(t, rec.sent, 1)
	body := rec.sent[0].body
	assert.LessOrEqual(t, len(body), 100)
	assert.True(t, utf8.ValidString(body))
	assert.True(t, strings.HasSuffix(body, "[Message truncated]"))
}

func TestAllRecipientsReceiveAllParts(t *testing.T) {
	rec := &recorder{}
	out := newOutput(t, Config{
		Recipients: []string{"alice@example.com", "bob@example.com"},
		MaxLength:  80,
		Split:      true,
	}, rec)

	body := strings.Repeat("some sentence here. ", 20)
	require.True(t, out.Write(context.Background(), textRecord(body)))

	perRecipient := map[string]int{}
	for _, msg := range rec.sent {
		perRecipient[msg.recipient]++
	}
	assert.Equal(t, perRecipient["alice@example.com"], perRecipient["bob@example.com"])
	assert.Greater(t, perRecipient["alice@example.com"], 1)
}

func TestPartialDeliveryFails(t *testing.T) {
	rec := &recorder{failFor: map[string]bool{"bob@example.com": true}}
	out := newOutput(t, Config{
		Recipients: []string{"alice@example.com", "bob@example.com"},
	}, rec)

	ok := out.Write(context.Background(), textRecord("hello"))
	assert.False(t, ok)

	// alice still got hers
	require.Len(t, rec.sent, 1)
	assert.Equal(t, "alice@example.com", rec.sent[0].recipient)
}

func TestRejectsUnsupportedContentType(t *testing.T) {
	rec := &recorder{}
	out := newOutput(t, Config{}, rec)

	d := pipeline.NewData("/tmp/a.mp3", pipeline.ContentAudio, "podcast:Show")
	assert.False(t, out.CanOutput(d))
	assert.False(t, out.Write(context.Background(), d))
	assert.Empty(t, rec.sent)
}
