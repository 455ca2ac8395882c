package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()

	a.SpeechBlocks.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.SpeechBlocks))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.SpeechBlocks))
}

func TestRecordTransition(t *testing.T) {
	m := New()

	m.RecordTransition("processing", true)
	m.RecordTransition("raw", false)
	m.RecordTransition("processing", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ModeTransitions.WithLabelValues("processing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModeTransitions.WithLabelValues("raw")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Mode))
}

func TestHandler(t *testing.T) {
	m := New()
	m.BlocksProcessed.WithLabelValues("raw").Add(3)
	m.BlockDuration.Observe(0.0001)
	m.Threshold.Set(0.1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)

	assert.True(t, strings.Contains(text, `gohush_blocks_processed_total{mode="raw"} 3`))
	assert.Contains(t, text, "gohush_block_processing_seconds_bucket")
	assert.Contains(t, text, "gohush_wavelet_threshold 0.1")
	assert.Contains(t, text, "go_goroutines")
}
