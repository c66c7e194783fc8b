package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewData(t *testing.T) {
	d := NewData("hello", ContentText, "stdin")

	assert.NotEmpty(t, d.ID)
	assert.Equal(t, "hello", d.Content)
	assert.Equal(t, ContentText, d.ContentType)
	assert.Equal(t, "stdin", d.Source)
	assert.Equal(t, 1, d.Metrics.CallCount)
	assert.NotNil(t, d.Metadata)
}

func TestDataClone(t *testing.T) {
	d := NewData("body", ContentMarkdown, "rss:example")
	d.Metadata["title"] = "Original"

	clone := d.Clone()
	clone.Metadata["title"] = "Changed"
	clone.Metadata["extra"] = 42

	assert.Equal(t, "Original", d.Metadata["title"])
	assert.NotContains(t, d.Metadata, "extra")
	assert.Equal(t, d.ID, clone.ID)
	assert.Equal(t, d.Content, clone.Content)
}

func TestFailureKeepsInput(t *testing.T) {
	d := NewData("payload", ContentText, "test")
	d.Metadata["key"] = "value"

	r := Failure(d, "something broke")

	require.False(t, r.Success)
	assert.Equal(t, "something broke", r.ErrorMessage)
	assert.Equal(t, d.ID, r.Data.ID)
	assert.Equal(t, d.Content, r.Data.Content)
	assert.Equal(t, "value", r.Data.Metadata["key"])
	assert.Equal(t, 1, r.Metrics.Errors)
}

func TestSucceed(t *testing.T) {
	d := NewData("done", ContentText, "test")
	r := Succeed(d)

	assert.True(t, r.Success)
	assert.Empty(t, r.ErrorMessage)
	assert.Equal(t, d.ID, r.Data.ID)
}

func TestAccepts(t *testing.T) {
	types := []ContentType{ContentText, ContentMarkdown}

	assert.True(t, Accepts(types, ContentText))
	assert.True(t, Accepts(types, ContentMarkdown))
	assert.False(t, Accepts(types, ContentAudio))
	assert.False(t, Accepts(nil, ContentText))
}

func TestMeasure(t *testing.T) {
	var m Metrics
	start := time.Now().Add(-50 * time.Millisecond)

	Measure(start, &m)

	assert.GreaterOrEqual(t, m.ExecutionTimeMS, 50.0)
	assert.Equal(t, 1, m.CallCount)
}

func TestMetricsAdd(t *testing.T) {
	m := Metrics{ExecutionTimeMS: 10, TokensIn: 5, CallCount: 1}
	m.Add(Metrics{ExecutionTimeMS: 20, TokensOut: 7, CallCount: 1, Errors: 1})

	assert.Equal(t, 30.0, m.ExecutionTimeMS)
	assert.Equal(t, 5, m.TokensIn)
	assert.Equal(t, 7, m.TokensOut)
	assert.Equal(t, 2, m.CallCount)
	assert.Equal(t, 1, m.Errors)
}
