// Package pipeline defines the record model flowing between ingestors,
// processors, and outputs, and the adapter interfaces each role
// implements. Every stage consumes and produces the same Data envelope.
package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// ContentType tags the kind of payload a Data record carries. Adapters
// declare which kinds they accept and produce; a mismatch is rejected,
// never coerced.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentAudio    ContentType = "audio"
	ContentVideo    ContentType = "video"
	ContentImage    ContentType = "image"
	ContentMarkdown ContentType = "markdown"
	ContentURL      ContentType = "url"
	ContentJSON     ContentType = "json"
)

// Metrics accumulates per-record instrumentation as a record moves
// through the pipeline.
type Metrics struct {
	ExecutionTimeMS float64 `json:"execution_time_ms"`
	TokensIn        int     `json:"tokens_in"`
	TokensOut       int     `json:"tokens_out"`
	CallCount       int     `json:"call_count"`
	Errors          int     `json:"errors"`
}

// Add folds another metrics snapshot into m.
func (m *Metrics) Add(other Metrics) {
	m.ExecutionTimeMS += other.ExecutionTimeMS
	m.TokensIn += other.TokensIn
	m.TokensOut += other.TokensOut
	m.CallCount += other.CallCount
	m.Errors += other.Errors
}

// Data is the canonical content envelope. Content is a string payload
// whose interpretation depends on ContentType (body text, a local file
// path for audio, a URL, serialized JSON). Processors construct a fresh
// Data per step rather than mutating their input.
type Data struct {
	ID          string
	Content     string
	ContentType ContentType
	Source      string
	Timestamp   time.Time
	Metadata    map[string]any
	Metrics     Metrics
}

// NewData creates a record with a fresh identity and timestamp.
func NewData(content string, ct ContentType, source string) Data {
	return Data{
		ID:          uuid.NewString(),
		Content:     content,
		ContentType: ct,
		Source:      source,
		Timestamp:   time.Now(),
		Metadata:    map[string]any{},
		Metrics:     Metrics{CallCount: 1},
	}
}

// Clone returns an independent copy with its own metadata map, so a
// downstream stage can enrich metadata without aliasing the input.
func (d Data) Clone() Data {
	out := d
	out.Metadata = make(map[string]any, len(d.Metadata))
	for k, v := range d.Metadata {
		out.Metadata[k] = v
	}
	return out
}

// Result wraps one processing outcome. On failure Data is always the
// original input so callers keep the context needed for diagnostics.
type Result struct {
	Data         Data
	Success      bool
	ErrorMessage string
	Metrics      Metrics
}

// Succeed wraps a transformed record in a successful Result.
func Succeed(d Data) Result {
	return Result{Data: d, Success: true, Metrics: d.Metrics}
}

// Failure wraps the untouched input in a failed Result carrying msg.
func Failure(input Data, msg string) Result {
	m := input.Metrics
	m.Errors++
	return Result{Data: input, Success: false, ErrorMessage: msg, Metrics: m}
}

// MapReduceResult collects the per-child envelopes of one fan-out
// invocation plus the optional merged document.
type MapReduceResult struct {
	Results         []Result
	CombinedContent string
	Metrics         Metrics
}
