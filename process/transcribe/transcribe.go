// Package transcribe converts audio records to text with a local
// whisper binary, optionally passing the transcript through an LLM
// domain-correction step.
package transcribe

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pedramamini/pedster/errors"
	"github.com/pedramamini/pedster/pipeline"
	"github.com/pedramamini/pedster/process/llm"
)

// RunFunc executes an external command and returns its combined output.
// Injectable so tests never need a whisper install.
type RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func defaultRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Config for the transcription processor.
type Config struct {
	Binary    string // default "whisper"
	ModelSize string // default "base"
	Language  string // empty = auto-detect
	Threads   int
	OutputDir string // default os.TempDir()

	// Corrector enables domain-aware correction when set.
	Corrector       llm.Client
	CorrectionModel string

	Run    RunFunc
	Logger *zap.SugaredLogger
}

// Processor runs whisper over local audio files.
type Processor struct {
	cfg    Config
	run    RunFunc
	logger *zap.SugaredLogger

	resolveOnce sync.Once
	binaryPath  string
	resolveErr  error
}

func New(cfg Config) *Processor {
	if cfg.Binary == "" {
		cfg.Binary = "whisper"
	}
	if cfg.ModelSize == "" {
		cfg.ModelSize = "base"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = os.TempDir()
	}
	run := cfg.Run
	if run == nil {
		run = defaultRun
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Processor{cfg: cfg, run: run, logger: logger}
}

func (p *Processor) Name() string { return "transcribe" }

func (p *Processor) InputTypes() []pipeline.ContentType {
	return []pipeline.ContentType{pipeline.ContentAudio}
}

func (p *Processor) OutputType() pipeline.ContentType {
	return pipeline.ContentText
}

// Process transcribes the audio file named by the record's content.
// A missing file is a failure envelope, not an error; the correction
// step falls back to the raw transcript on any failure.
func (p *Processor) Process(ctx context.Context, d pipeline.Data) pipeline.Result {
	start := time.Now()

	if !pipeline.Accepts(p.InputTypes(), d.ContentType) {
		err := errors.Wrapf(errors.ErrUnsupportedContent,
			"transcribe does not accept %s content", d.ContentType)
		return pipeline.Failure(d, err.Error())
	}

	audioPath := d.Content
	if _, err := os.Stat(audioPath); err != nil {
		return pipeline.Failure(d, fmt.Sprintf("audio file not found: %s", audioPath))
	}

	binary, err := p.resolveBinary()
	if err != nil {
		return pipeline.Failure(d, err.Error())
	}

	transcript, err := p.transcribe(ctx, binary, audioPath)
	if err != nil {
		p.logger.Warnw("Transcription failed", "audio", audioPath, "error", err)
		result := pipeline.Failure(d, err.Error())
		pipeline.Measure(start, &result.Metrics)
		return result
	}

	out := d.Clone()
	out.ContentType = pipeline.ContentText
	out.Metadata["model_size"] = p.cfg.ModelSize
	if p.cfg.Language != "" {
		out.Metadata["language"] = p.cfg.Language
	}

	if p.cfg.Corrector != nil {
		corrected, notes, corrErr := p.correct(ctx, transcript)
		if corrErr != nil {
			p.logger.Warnw("Domain correction failed, keeping raw transcript", "error", corrErr)
			out.Metadata["correction"] = "failed"
		} else {
			transcript = corrected
			out.Metadata["correction"] = "applied"
			if notes != "" {
				out.Metadata["correction_notes"] = notes
			}
		}
	}

	out.Content = transcript

	result := pipeline.Succeed(out)
	pipeline.Measure(start, &result.Metrics)
	result.Data.Metrics = result.Metrics
	return result
}

// resolveBinary locates the whisper executable once and caches the
// result across calls.
func (p *Processor) resolveBinary() (string, error) {
	p.resolveOnce.Do(func() {
		if filepath.IsAbs(p.cfg.Binary) {
			p.binaryPath = p.cfg.Binary
			return
		}
		path, err := exec.LookPath(p.cfg.Binary)
		if err != nil {
			p.resolveErr = fmt.Errorf("whisper binary %q not found in PATH", p.cfg.Binary)
			return
		}
		p.binaryPath = path
	})
	return p.binaryPath, p.resolveErr
}

// transcribe invokes whisper and reads the text file it writes next to
// the configured output directory.
func (p *Processor) transcribe(ctx context.Context, binary, audioPath string) (string, error) {
	args := []string{
		audioPath,
		"--model", p.cfg.ModelSize,
		"--output_format", "txt",
		"--output_dir", p.cfg.OutputDir,
	}
	if p.cfg.Language != "" {
		args = append(args, "--language", p.cfg.Language)
	}
	if p.cfg.Threads > 0 {
		args = append(args, "--threads", strconv.Itoa(p.cfg.Threads))
	}

	output, err := p.run(ctx, binary, args...)
	if err != nil {
		return "", fmt.Errorf("whisper failed: %v: %s", err, strings.TrimSpace(string(output)))
	}

	stem := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	txtPath := filepath.Join(p.cfg.OutputDir, stem+".txt")

	raw, readErr := os.ReadFile(txtPath)
	if readErr != nil {
		// Some whisper builds print the transcript to stdout instead.
		if text := strings.TrimSpace(string(output)); text != "" {
			return text, nil
		}
		return "", fmt.Errorf("transcript output not found at %s", txtPath)
	}
	defer os.Remove(txtPath)

	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "", fmt.Errorf("whisper produced an empty transcript for %s", audioPath)
	}
	return text, nil
}
