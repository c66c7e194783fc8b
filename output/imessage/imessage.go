// Package imessage delivers pipeline records as iMessages via the
// macOS Messages app, chunking or truncating text that exceeds the
// platform's comfortable message length.
package imessage

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/pedramamini/pedster/errors"
	"github.com/pedramamini/pedster/pipeline"
)

const defaultMaxLength = 2000

// SendFunc executes one AppleScript send. Swapped in tests.
type SendFunc func(ctx context.Context, recipient, body string) error

// Config for a messaging sink.
type Config struct {
	Recipients []string // phone numbers or Apple IDs, required
	Prefix     string
	Suffix     string
	MaxLength  int  // 0 = 2000
	Split      bool // chunk instead of truncating
	Send       SendFunc
	Logger     *zap.SugaredLogger
}

// Output sends records to a fixed recipient list.
type Output struct {
	cfg    Config
	logger *zap.SugaredLogger
	send   SendFunc
}

// New returns an error when no recipients are configured, since a
// sink with nowhere to deliver is a wiring mistake.
func New(cfg Config) (*Output, error) {
	if len(cfg.Recipients) == 0 {
		return nil, errors.New("imessage output requires at least one recipient")
	}
	if cfg.MaxLength == 0 {
		cfg.MaxLength = defaultMaxLength
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	send := cfg.Send
	if send == nil {
		send = osascriptSend
	}
	return &Output{cfg: cfg, logger: logger, send: send}, nil
}

func (o *Output) Name() string { return "imessage" }

func (o *Output) AcceptedTypes() []pipeline.ContentType {
	return []pipeline.ContentType{pipeline.ContentText, pipeline.ContentMarkdown}
}

func (o *Output) CanOutput(d pipeline.Data) bool {
	return pipeline.Accepts(o.AcceptedTypes(), d.ContentType)
}

// Write formats the record and delivers every chunk to every
// recipient. It reports success only when all sends succeeded.
func (o *Output) Write(ctx context.Context, d pipeline.Data) bool {
	if !o.CanOutput(d) {
		o.logger.Warnw("Unsupported content type for imessage", "content_type", d.ContentType)
		return false
	}

	body := strings.TrimSpace(d.Content)
	if o.cfg.Prefix != "" {
		body = o.cfg.Prefix + "\n\n" + body
	}
	if o.cfg.Suffix != "" {
		body = body + "\n\n" + o.cfg.Suffix
	}

	chunks := o.prepare(body)

	ok := true
	for _, recipient := range o.cfg.Recipients {
		for i, chunk := range chunks {
			if err := o.send(ctx, recipient, chunk); err != nil {
				o.logger.Errorw("Failed to send message",
					"recipient", recipient, "part", i+1, "parts", len(chunks), "err", err)
				ok = false
			}
		}
	}
	if ok {
		o.logger.Infow("Delivered message",
			"recipients", len(o.cfg.Recipients), "parts", len(chunks), "source", d.Source)
	}
	return ok
}

// prepare applies the max-length policy: chunk when splitting is on,
// otherwise truncate with a marker.
func (o *Output) prepare(body string) []string {
	if len(body) <= o.cfg.MaxLength {
		return []string{body}
	}
	if !o.cfg.Split {
		return []string{truncate(body, o.cfg.MaxLength)}
	}
	return chunk(body, o.cfg.MaxLength)
}

const truncationMarker = "...\n[Message truncated]"

func truncate(body string, max int) string {
	keep := max - len(truncationMarker)
	if keep < 0 {
		keep = 0
	}
	keep = runeBoundary(body, keep)
	return body[:keep] + truncationMarker
}

// chunk splits body into ordered parts, each prefixed with a
// "[Part i/n]" header and no longer than max. Split points prefer
// paragraph breaks, then line breaks, then sentence ends, then a hard
// cut.
func chunk(body string, max int) []string {
	// Header length depends on the part count, which is unknown until
	// the body is split. Start with a two-digit reserve and re-split
	// wider when the count outgrows it.
	for digits := 2; ; digits++ {
		reserve := len("[Part /]\n\n") + 2*digits
		budget := max - reserve
		if budget < 1 {
			budget = 1
		}

		parts := splitBody(body, budget)
		if countDigits(len(parts)) > digits {
			continue
		}

		for i, p := range parts {
			parts[i] = fmt.Sprintf("[Part %d/%d]\n\n%s", i+1, len(parts), p)
		}
		return parts
	}
}

func splitBody(body string, budget int) []string {
	var parts []string
	rest := body
	for len(rest) > 0 {
		if len(rest) <= budget {
			parts = append(parts, rest)
			break
		}
		cut := splitPoint(rest, budget)
		parts = append(parts, strings.TrimSpace(rest[:cut]))
		rest = strings.TrimSpace(rest[cut:])
	}
	return parts
}

// splitPoint finds the best break at or before limit.
func splitPoint(s string, limit int) int {
	limit = runeBoundary(s, limit)
	window := s[:limit]
	for _, sep := range []string{"\n\n", "\n", ". "} {
		if idx := strings.LastIndex(window, sep); idx > 0 {
			return idx + len(sep)
		}
	}
	if limit == 0 {
		_, n := utf8.DecodeRuneInString(s)
		return n
	}
	return limit
}

// runeBoundary walks cut back to the start of the rune it lands in so
// byte slicing never splits a multi-byte character.
func runeBoundary(s string, cut int) int {
	for cut > 0 && cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return cut
}

func countDigits(n int) int {
	digits := 1
	for n >= 10 {
		n /= 10
		digits++
	}
	return digits
}

// osascriptSend drives Messages.app through AppleScript.
func osascriptSend(ctx context.Context, recipient, body string) error {
	script := fmt.Sprintf(`tell application "Messages"
	set targetService to 1st account whose service type = iMessage
	set targetBuddy to participant %q of targetService
	send %q to targetBuddy
end tell`, recipient, body)

	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	if out, err := cmd.CombinedOutput(); err != nil {
		return errors.Wrapf(err, "osascript failed: %s", strings.TrimSpace(string(out)))
	}
	return nil
}
