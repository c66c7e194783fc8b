package mapreduce

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedramamini/pedster/pipeline"
)

// stubProcessor is a scriptable child for fan-out tests.
type stubProcessor struct {
	name    string
	output  string
	model   string
	fail    bool
	panics  bool
	delay   time.Duration
	inputs  []pipeline.ContentType
	visited chan string
}

func (s *stubProcessor) Name() string { return s.name }

func (s *stubProcessor) InputTypes() []pipeline.ContentType {
	if len(s.inputs) > 0 {
		return s.inputs
	}
	return []pipeline.ContentType{pipeline.ContentText, pipeline.ContentMarkdown}
}

func (s *stubProcessor) OutputType() pipeline.ContentType { return pipeline.ContentMarkdown }

func (s *stubProcessor) Process(ctx context.Context, d pipeline.Data) pipeline.Result {
	if s.visited != nil {
		s.visited <- s.name
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
		}
	}
	if s.panics {
		panic("stub exploded")
	}
	if s.fail {
		return pipeline.Failure(d, s.name+" failed")
	}
	out := d.Clone()
	out.Content = s.output
	out.ContentType = pipeline.ContentMarkdown
	if s.model != "" {
		out.Metadata["model"] = s.model
	}
	return pipeline.Succeed(out)
}

func input(t *testing.T) pipeline.Data {
	t.Helper()
	return pipeline.NewData("compare these models", pipeline.ContentText, "test")
}

func TestCombineAllSucceed(t *testing.T) {
	proc := New(Config{
		Processors: []pipeline.Processor{
			&stubProcessor{name: "claude", output: "claude says hi", model: "anthropic/claude-3.5-sonnet"},
			&stubProcessor{name: "gpt4o", output: "gpt says hi", model: "openai/gpt-4o"},
		},
		Combine: true,
	})

	result := proc.Process(context.Background(), input(t))
	require.True(t, result.Success)

	assert.Equal(t, pipeline.ContentMarkdown, result.Data.ContentType)
	assert.Contains(t, result.Data.Content, "## claude")
	assert.Contains(t, result.Data.Content, "## gpt4o")
	assert.Contains(t, result.Data.Content, "claude says hi")
	assert.Contains(t, result.Data.Content, "gpt says hi")
	assert.Contains(t, result.Data.Content, "anthropic/claude-3.5-sonnet")
	assert.Equal(t, 2, result.Data.Metadata["children"])
}

func TestCombineOneChildFails(t *testing.T) {
	proc := New(Config{
		Processors: []pipeline.Processor{
			&stubProcessor{name: "good", output: "fine answer"},
			&stubProcessor{name: "bad", fail: true},
		},
		Combine: true,
	})

	result := proc.Process(context.Background(), input(t))
	require.True(t, result.Success)

	assert.Contains(t, result.Data.Content, "fine answer")
	assert.Contains(t, result.Data.Content, "## bad")
	assert.Contains(t, result.Data.Content, "bad failed")
}

func TestChildPanicIsolated(t *testing.T) {
	proc := New(Config{
		Processors: []pipeline.Processor{
			&stubProcessor{name: "boom", panics: true},
			&stubProcessor{name: "calm", output: "still here"},
		},
		Combine: true,
	})

	result := proc.Process(context.Background(), input(t))
	require.True(t, result.Success)

	assert.Contains(t, result.Data.Content, "boom panicked")
	assert.Contains(t, result.Data.Content, "still here")
}

func TestNoCombineReturnsFirstSuccess(t *testing.T) {
	proc := New(Config{
		Processors: []pipeline.Processor{
			&stubProcessor{name: "first", fail: true},
			&stubProcessor{name: "second", output: "winner"},
		},
	})

	result := proc.Process(context.Background(), input(t))
	require.True(t, result.Success)
	assert.Equal(t, "winner", result.Data.Content)
}

func TestNoCombineAllFail(t *testing.T) {
	proc := New(Config{
		Processors: []pipeline.Processor{
			&stubProcessor{name: "a", fail: true},
			&stubProcessor{name: "b", fail: true},
		},
	})

	result := proc.Process(context.Background(), input(t))
	assert.False(t, result.Success)
	assert.Equal(t, "a failed", result.ErrorMessage)
}

func TestNoChildren(t *testing.T) {
	proc := New(Config{})

	result := proc.Process(context.Background(), input(t))
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "no child processors")
}

func TestParallelTimeoutAbandonsSlowChildren(t *testing.T) {
	proc := New(Config{
		Processors: []pipeline.Processor{
			&stubProcessor{name: "fast", output: "quick answer"},
			&stubProcessor{name: "slow", output: "never seen", delay: 5 * time.Second},
		},
		Parallel: true,
		Timeout:  100 * time.Millisecond,
		Combine:  true,
	})

	start := time.Now()
	result := proc.Process(context.Background(), input(t))
	require.Less(t, time.Since(start), 2*time.Second)

	require.True(t, result.Success)
	assert.Contains(t, result.Data.Content, "quick answer")
	assert.NotContains(t, result.Data.Content, "never seen")
}

func TestParallelBoundedWorkers(t *testing.T) {
	visited := make(chan string, 8)
	var children []pipeline.Processor
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		children = append(children, &stubProcessor{name: name, output: name, visited: visited})
	}

	proc := New(Config{
		Processors: children,
		Parallel:   true,
		Workers:    2,
		Combine:    true,
	})

	result := proc.Process(context.Background(), input(t))
	require.True(t, result.Success)
	assert.Len(t, visited, 5)

	for _, name := range []string{"a", "b", "c", "d", "e"} {
		assert.Contains(t, result.Data.Content, "## "+name)
	}
}

func TestSequentialPreservesOrder(t *testing.T) {
	proc := New(Config{
		Processors: []pipeline.Processor{
			&stubProcessor{name: "one", output: "1"},
			&stubProcessor{name: "two", output: "2"},
			&stubProcessor{name: "three", output: "3"},
		},
		Combine: true,
	})

	result := proc.Process(context.Background(), input(t))
	require.True(t, result.Success)

	idx1 := strings.Index(result.Data.Content, "## one")
	idx2 := strings.Index(result.Data.Content, "## two")
	idx3 := strings.Index(result.Data.Content, "## three")
	assert.True(t, idx1 < idx2 && idx2 < idx3)
}

func TestInputTypesUnion(t *testing.T) {
	proc := New(Config{
		Processors: []pipeline.Processor{
			&stubProcessor{name: "a", inputs: []pipeline.ContentType{pipeline.ContentText}},
			&stubProcessor{name: "b", inputs: []pipeline.ContentType{pipeline.ContentText, pipeline.ContentJSON}},
		},
	})

	types := proc.InputTypes()
	assert.ElementsMatch(t, []pipeline.ContentType{pipeline.ContentText, pipeline.ContentJSON}, types)
}

func TestMetricsAggregated(t *testing.T) {
	proc := New(Config{
		Processors: []pipeline.Processor{
			&stubProcessor{name: "a", output: "x"},
			&stubProcessor{name: "b", output: "y"},
		},
		Combine: true,
	})

	mr := proc.Run(context.Background(), input(t))
	require.Len(t, mr.Results, 2)
	assert.Equal(t, 2, mr.Metrics.CallCount)
}
