package pipeline

import "context"

// Ingestor produces records from an external source. Ingest must be
// safe to call repeatedly on a schedule: each call surfaces only items
// not previously seen, and per-item failures are logged and skipped
// rather than aborting the batch.
type Ingestor interface {
	Name() string
	Ingest(ctx context.Context) ([]Data, error)
}

// Processor converts one record into another. Process never returns an
// error: mismatched content kinds and internal failures both come back
// as a failed Result wrapping the input.
type Processor interface {
	Name() string
	InputTypes() []ContentType
	OutputType() ContentType
	Process(ctx context.Context, d Data) Result
}

// Output delivers a record to an external destination. Write reports
// delivery success; callers filter with CanOutput first.
type Output interface {
	Name() string
	AcceptedTypes() []ContentType
	CanOutput(d Data) bool
	Write(ctx context.Context, d Data) bool
}

// Accepts reports whether ct is one of types.
func Accepts(types []ContentType, ct ContentType) bool {
	for _, t := range types {
		if t == ct {
			return true
		}
	}
	return false
}
