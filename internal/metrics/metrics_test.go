package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New()
	m.MatcherCall("llm", "matched")
	m.MatcherCall("llm", "matched")
	m.ControlSkipped("unavailable")
	m.EdgePairWritten()
	m.Imported("inserted", 3)
	m.PairFinished(time.Second, errors.New("boom"))
	m.GraphSynced(nil)
	m.Populated(errors.New("catalog down"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.matcherCalls.WithLabelValues("llm", "matched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skipped.WithLabelValues("unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.edgesWritten))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.imported.WithLabelValues("inserted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pairFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.graphSyncs.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.populations.WithLabelValues("error")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.MatcherCall("llm", "matched")
		m.EdgePairWritten()
		m.PairFinished(time.Second, nil)
		m.EdgesCleared(3)
		m.GraphSynced(nil)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.EdgePairWritten()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "crosswalk_edge_pairs_written_total 1")
}
