// Package stdin ingests piped text from standard input.
package stdin

import (
	"context"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/pedramamini/pedster/errors"
	"github.com/pedramamini/pedster/pipeline"
)

// Ingestor reads one record from an input stream, os.Stdin unless a
// reader is injected.
type Ingestor struct {
	reader   io.Reader
	maxBytes int64
	logger   *zap.SugaredLogger
}

// Config for the stdin ingestor.
type Config struct {
	Reader   io.Reader // nil = os.Stdin
	MaxBytes int64     // 0 = 10 MiB
	Logger   *zap.SugaredLogger
}

func New(cfg Config) *Ingestor {
	if cfg.Reader == nil {
		cfg.Reader = os.Stdin
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = 10 << 20
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Ingestor{
		reader:   cfg.Reader,
		maxBytes: cfg.MaxBytes,
		logger:   logger,
	}
}

func (i *Ingestor) Name() string { return "stdin" }

// Ingest reads the stream to EOF and returns at most one text record.
// Blank input yields ErrNoInput so the CLI can warn and exit non-zero
// without touching a model.
func (i *Ingestor) Ingest(ctx context.Context) ([]pipeline.Data, error) {
	raw, err := io.ReadAll(io.LimitReader(i.reader, i.maxBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read stdin")
	}

	content := strings.TrimSpace(string(raw))
	if content == "" {
		return nil, errors.ErrNoInput
	}

	d := pipeline.NewData(content, pipeline.ContentText, "stdin")
	d.Metadata["size_bytes"] = len(content)

	i.logger.Debugw("Read stdin record", "size_bytes", len(content))
	return []pipeline.Data{d}, nil
}
