package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedramamini/pedster/internal/httpclient"
	"github.com/pedramamini/pedster/pipeline"
)

func TestIngest(t *testing.T) {
	t.Run("extracts page content", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html><head><title>Test Page</title></head><body>
				<p>Some readable article content here.</p></body></html>`))
		}))
		defer server.Close()

		ing := New(Config{
			URLs:         []string{server.URL},
			Client:       httpclient.WrapClient(server.Client()),
			HostInterval: time.Millisecond,
		})

		records, err := ing.Ingest(context.Background())
		require.NoError(t, err)
		require.Len(t, records, 1)

		assert.Equal(t, pipeline.ContentMarkdown, records[0].ContentType)
		assert.Contains(t, records[0].Content, "# Test Page")
		assert.Contains(t, records[0].Content, "readable article content")
		assert.Contains(t, records[0].Content, "Source: "+server.URL)
		assert.Equal(t, "Test Page", records[0].Metadata["title"])
		assert.Equal(t, http.StatusOK, records[0].Metadata["status_code"])
	})

	t.Run("failing URL skipped without aborting batch", func(t *testing.T) {
		good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html><head><title>Good</title></head><body><p>content</p></body></html>`))
		}))
		defer good.Close()

		bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		bad.Close() // connection refused

		ing := New(Config{
			URLs:         []string{bad.URL, good.URL},
			Client:       httpclient.WrapClient(good.Client()),
			HostInterval: time.Millisecond,
		})

		records, err := ing.Ingest(context.Background())
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "Good", records[0].Metadata["title"])
	})

	t.Run("no URLs yields no records", func(t *testing.T) {
		ing := New(Config{HostInterval: time.Millisecond})
		records, err := ing.Ingest(context.Background())
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}
