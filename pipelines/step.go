// Package pipelines wires ingestors, processors, and outputs into the
// named graphs the scheduler and CLI run.
package pipelines

import (
	"context"

	"go.uber.org/zap"

	"github.com/pedramamini/pedster/pipeline"
)

// Pipeline is one ingest-process-output graph. Processors apply in
// order; a processor that does not accept a record's content type is
// skipped, not failed.
type Pipeline struct {
	Name       string
	Ingestor   pipeline.Ingestor
	Processors []pipeline.Processor
	Outputs    []pipeline.Output
	Logger     *zap.SugaredLogger
}

// StepStats summarizes one pipeline run.
type StepStats struct {
	Ingested  int
	Processed int
	Failed    int
	Written   int
	Metrics   pipeline.Metrics
}

// Run executes one full step. Per-record failures are logged and
// counted, never escaping: the returned error only covers ingestion
// itself being impossible.
func (p *Pipeline) Run(ctx context.Context) (StepStats, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	var stats StepStats

	records, err := p.Ingestor.Ingest(ctx)
	if err != nil {
		return stats, err
	}
	stats.Ingested = len(records)
	logger.Infow("Pipeline step ingested records",
		"pipeline", p.Name, "ingestor", p.Ingestor.Name(), "records", len(records))

	for _, record := range records {
		current := record
		failed := false

		for _, proc := range p.Processors {
			if !pipeline.Accepts(proc.InputTypes(), current.ContentType) {
				continue
			}
			result := proc.Process(ctx, current)
			stats.Metrics.Add(result.Metrics)
			if !result.Success {
				logger.Warnw("Processor failed",
					"pipeline", p.Name, "processor", proc.Name(),
					"record", current.ID, "err", result.ErrorMessage)
				stats.Failed++
				failed = true
				break
			}
			current = result.Data
		}
		if failed {
			continue
		}
		stats.Processed++

		for _, out := range p.Outputs {
			if !out.CanOutput(current) {
				continue
			}
			if out.Write(ctx, current) {
				stats.Written++
			} else {
				logger.Warnw("Output failed",
					"pipeline", p.Name, "output", out.Name(), "record", current.ID)
				stats.Failed++
			}
		}
	}

	logger.Infow("Pipeline step done",
		"pipeline", p.Name,
		"ingested", stats.Ingested,
		"processed", stats.Processed,
		"written", stats.Written,
		"failed", stats.Failed)
	return stats, nil
}
