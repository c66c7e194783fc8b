// Package mapreduce implements the fan-out comparator: one input
// record dispatched to several child processors, results merged back
// into a single envelope.
package mapreduce

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pedramamini/pedster/pipeline"
)

const (
	defaultWorkers = 3
	defaultTimeout = 120 * time.Second
)

// Config for the comparator.
type Config struct {
	Name       string
	Processors []pipeline.Processor
	Parallel   bool
	Workers    int           // 0 = 3
	Timeout    time.Duration // parallel mode only, 0 = 120s
	Combine    bool          // merge all results into one document
	Logger     *zap.SugaredLogger
}

// Processor fans an input out to child processors.
type Processor struct {
	cfg    Config
	logger *zap.SugaredLogger
}

func New(cfg Config) *Processor {
	if cfg.Name == "" {
		cfg.Name = "mapreduce"
	}
	if cfg.Workers == 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Processor{cfg: cfg, logger: logger}
}

func (p *Processor) Name() string { return p.cfg.Name }

// InputTypes is the union of the children's accepted types.
func (p *Processor) InputTypes() []pipeline.ContentType {
	seen := map[pipeline.ContentType]bool{}
	var out []pipeline.ContentType
	for _, child := range p.cfg.Processors {
		for _, ct := range child.InputTypes() {
			if !seen[ct] {
				seen[ct] = true
				out = append(out, ct)
			}
		}
	}
	return out
}

func (p *Processor) OutputType() pipeline.ContentType {
	return pipeline.ContentMarkdown
}

// childResult pairs a child's envelope with its name and latency for
// the combined document.
type childResult struct {
	name    string
	elapsed time.Duration
	result  pipeline.Result
}

// Process dispatches the record to every child and reduces the
// envelopes per the combine policy.
func (p *Processor) Process(ctx context.Context, d pipeline.Data) pipeline.Result {
	mr := p.Run(ctx, d)

	if p.cfg.Combine {
		if mr.CombinedContent == "" {
			return pipeline.Failure(d, "no child processors produced any result")
		}
		out := d.Clone()
		out.Content = mr.CombinedContent
		out.ContentType = pipeline.ContentMarkdown
		out.Metadata["processor"] = p.cfg.Name
		out.Metadata["children"] = len(mr.Results)
		result := pipeline.Succeed(out)
		result.Metrics = mr.Metrics
		return result
	}

	for _, r := range mr.Results {
		if r.Success {
			return r
		}
	}
	if len(mr.Results) > 0 {
		return mr.Results[0]
	}
	return pipeline.Failure(d, "no child processors produced any result")
}

// Run executes the fan-out and returns the full per-child result set.
// In parallel mode section order follows completion order, which is
// accepted to vary across runs.
func (p *Processor) Run(ctx context.Context, d pipeline.Data) pipeline.MapReduceResult {
	var collected []childResult
	if p.cfg.Parallel {
		collected = p.runParallel(ctx, d)
	} else {
		collected = p.runSequential(ctx, d)
	}

	mr := pipeline.MapReduceResult{}
	for _, cr := range collected {
		mr.Results = append(mr.Results, cr.result)
		mr.Metrics.Add(cr.result.Metrics)
	}

	if p.cfg.Combine && len(collected) > 0 {
		mr.CombinedContent = combine(collected)
	}
	return mr
}

func (p *Processor) runSequential(ctx context.Context, d pipeline.Data) []childResult {
	var out []childResult
	for _, child := range p.cfg.Processors {
		out = append(out, p.invoke(ctx, child, d))
	}
	return out
}

func (p *Processor) runParallel(ctx context.Context, d pipeline.Data) []childResult {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	jobs := make(chan pipeline.Processor)
	// Buffered so abandoned children can finish without ever blocking.
	results := make(chan childResult, len(p.cfg.Processors))

	workers := p.cfg.Workers
	if workers > len(p.cfg.Processors) {
		workers = len(p.cfg.Processors)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for child := range jobs {
				results <- p.invoke(ctx, child, d)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, child := range p.cfg.Processors {
			select {
			case jobs <- child:
			case <-ctx.Done():
				return
			}
		}
	}()

	var out []childResult
	for range p.cfg.Processors {
		select {
		case cr := <-results:
			out = append(out, cr)
		case <-ctx.Done():
			p.logger.Warnw("Fan-out timed out, abandoning unfinished children",
				"completed", len(out), "total", len(p.cfg.Processors))
			return out
		}
	}
	return out
}

// invoke runs one child, converting a panic into a failed envelope so
// siblings are unaffected.
func (p *Processor) invoke(ctx context.Context, child pipeline.Processor, d pipeline.Data) (cr childResult) {
	start := time.Now()
	cr.name = child.Name()

	defer func() {
		cr.elapsed = time.Since(start)
		if r := recover(); r != nil {
			p.logger.Errorw("Child processor panicked", "child", cr.name, "panic", r)
			cr.result = pipeline.Failure(d, fmt.Sprintf("%s panicked: %v", cr.name, r))
		}
	}()

	cr.result = child.Process(ctx, d.Clone())
	return cr
}

// combine renders one markdown section per envelope, successful or not,
// tagged with the child's name and latency.
func combine(collected []childResult) string {
	var b strings.Builder
	for i, cr := range collected {
		if i > 0 {
			b.WriteString("\n\n")
		}
		header := fmt.Sprintf("## %s (%.0fms)", cr.name, float64(cr.elapsed.Microseconds())/1000.0)
		if model, ok := cr.result.Data.Metadata["model"].(string); ok && model != "" {
			header = fmt.Sprintf("## %s [%s] (%.0fms)", cr.name, model, float64(cr.elapsed.Microseconds())/1000.0)
		}
		b.WriteString(header)
		b.WriteString("\n\n")
		if cr.result.Success {
			b.WriteString(cr.result.Data.Content)
		} else {
			b.WriteString("_failed: " + cr.result.ErrorMessage + "_")
		}
	}
	return b.String()
}
