// Package obsidian writes pipeline records into an Obsidian vault as
// markdown notes with YAML front matter.
package obsidian

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/pedramamini/pedster/pipeline"
)

// Config for a vault sink.
type Config struct {
	Vault            string // vault root, required
	Folder           string // subfolder within the vault, optional
	FilenameTemplate string // default "{title}"
	Append           bool   // append to an existing note
	Prepend          bool   // prepend to an existing note
	Overwrite        bool   // replace an existing note
	CreateFolders    bool
	Tags             []string
	NoFrontMatter    bool
	Logger           *zap.SugaredLogger
}

// Output writes notes into a vault directory.
type Output struct {
	cfg    Config
	logger *zap.SugaredLogger

	// now is swapped in tests that exercise the collision suffix.
	now func() time.Time
}

func New(cfg Config) *Output {
	if cfg.FilenameTemplate == "" {
		cfg.FilenameTemplate = "{title}"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Output{cfg: cfg, logger: logger, now: time.Now}
}

func (o *Output) Name() string { return "obsidian" }

func (o *Output) AcceptedTypes() []pipeline.ContentType {
	return []pipeline.ContentType{pipeline.ContentText, pipeline.ContentMarkdown}
}

func (o *Output) CanOutput(d pipeline.Data) bool {
	return pipeline.Accepts(o.AcceptedTypes(), d.ContentType)
}

// Write persists the record as a vault note. Existing-file handling
// follows append, then prepend, then overwrite; with none set a
// timestamp-suffixed sibling is created and the original is untouched.
func (o *Output) Write(ctx context.Context, d pipeline.Data) bool {
	if err := ctx.Err(); err != nil {
		o.logger.Warnw("Skipping vault write, context done", "err", err)
		return false
	}
	if !o.CanOutput(d) {
		o.logger.Warnw("Unsupported content type for vault", "content_type", d.ContentType)
		return false
	}

	path, err := o.notePath(d)
	if err != nil {
		o.logger.Errorw("Failed to derive note path", "err", err)
		return false
	}

	body := d.Content
	if !o.cfg.NoFrontMatter && !strings.HasPrefix(strings.TrimSpace(body), "---") {
		fm, err := o.frontMatter(d)
		if err != nil {
			o.logger.Errorw("Failed to render front matter", "err", err)
			return false
		}
		body = fm + body
	}
	if !strings.HasSuffix(body, "\n") {
		body += "\n"
	}

	if err := o.persist(path, body); err != nil {
		o.logger.Errorw("Failed to write vault note", "path", path, "err", err)
		return false
	}
	o.logger.Infow("Wrote vault note", "path", path, "source", d.Source)
	return true
}

// notePath renders the filename template and joins it under the vault.
func (o *Output) notePath(d pipeline.Data) (string, error) {
	dir := o.cfg.Vault
	if o.cfg.Folder != "" {
		dir = filepath.Join(dir, o.cfg.Folder)
	}

	if o.cfg.CreateFolders {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	} else if _, err := os.Stat(dir); err != nil {
		return "", err
	}

	now := o.now()
	name := o.cfg.FilenameTemplate
	name = strings.ReplaceAll(name, "{title}", safeTitle(noteTitle(d)))
	name = strings.ReplaceAll(name, "{date}", now.Format("2006-01-02"))
	name = strings.ReplaceAll(name, "{time}", now.Format("150405"))
	name = strings.ReplaceAll(name, "{id}", d.ID)
	name = strings.ReplaceAll(name, "{source}", safeTitle(d.Source))
	if !strings.HasSuffix(name, ".md") {
		name += ".md"
	}
	return filepath.Join(dir, name), nil
}

// persist applies the existing-file policy and writes the note.
func (o *Output) persist(path, body string) error {
	existing, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return os.WriteFile(path, []byte(body), 0o644)
	}
	if err != nil {
		return err
	}

	switch {
	case o.cfg.Append:
		merged := string(existing)
		if !strings.HasSuffix(merged, "\n") {
			merged += "\n"
		}
		return os.WriteFile(path, []byte(merged+"\n"+body), 0o644)
	case o.cfg.Prepend:
		return os.WriteFile(path, []byte(body+"\n"+string(existing)), 0o644)
	case o.cfg.Overwrite:
		return os.WriteFile(path, []byte(body), 0o644)
	default:
		stem := strings.TrimSuffix(path, ".md")
		sibling := fmt.Sprintf("%s_%s.md", stem, o.now().Format("20060102150405"))
		return os.WriteFile(sibling, []byte(body), 0o644)
	}
}

// frontMatter renders the YAML block: title, date, source, tags, and
// any scalar metadata the pipeline stamped on the record.
func (o *Output) frontMatter(d pipeline.Data) (string, error) {
	fields := map[string]any{
		"title":  noteTitle(d),
		"date":   d.Timestamp.Format("2006-01-02 15:04:05"),
		"source": d.Source,
	}

	tags := append([]string{}, o.cfg.Tags...)
	if extra, ok := d.Metadata["tags"].([]string); ok {
		tags = append(tags, extra...)
	}
	if len(tags) > 0 {
		fields["tags"] = tags
	}

	keys := make([]string, 0, len(d.Metadata))
	for k := range d.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "tags" || k == "title" {
			continue
		}
		switch v := d.Metadata[k].(type) {
		case string, bool, int, int64, float64:
			fields[k] = v
		}
	}

	raw, err := yaml.Marshal(fields)
	if err != nil {
		return "", err
	}
	return "---\n" + string(raw) + "---\n\n", nil
}

// noteTitle prefers explicit metadata, then the first markdown heading,
// then the source label.
func noteTitle(d pipeline.Data) string {
	if t, ok := d.Metadata["title"].(string); ok && t != "" {
		return t
	}
	for _, line := range strings.Split(d.Content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	if d.Source != "" {
		return d.Source
	}
	return "untitled"
}

// safeTitle keeps letters, digits, dashes and underscores, mapping
// spaces to underscores and dropping everything else.
func safeTitle(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == ' ':
			b.WriteRune('_')
		case r == '-' || r == '_':
			b.WriteRune(r)
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "untitled"
	}
	return b.String()
}
