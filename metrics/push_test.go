package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// remoteWriteSink decodes Prometheus remote write requests.
type remoteWriteSink struct {
	mu       sync.Mutex
	requests []prompb.WriteRequest
}

func (s *remoteWriteSink) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "snappy", r.Header.Get("Content-Encoding"))
		assert.Equal(t, "application/x-protobuf", r.Header.Get("Content-Type"))

		compressed, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		raw, err := snappy.Decode(nil, compressed)
		require.NoError(t, err)

		var req prompb.WriteRequest
		require.NoError(t, proto.Unmarshal(raw, &req))

		s.mu.Lock()
		s.requests = append(s.requests, req)
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *remoteWriteSink) lastSeries(t *testing.T) prompb.TimeSeries {
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.requests)
	last := s.requests[len(s.requests)-1]
	require.Len(t, last.Timeseries, 1)
	return last.Timeseries[0]
}

func labelMap(ts prompb.TimeSeries) map[string]string {
	out := make(map[string]string, len(ts.Labels))
	for _, l := range ts.Labels {
		out[l.Name] = l.Value
	}
	return out
}

func TestPushRegistry_GaugeSet(t *testing.T) {
	sink := &remoteWriteSink{}
	srv := httptest.NewServer(sink.handler(t))
	defer srv.Close()

	reg := NewPushRegistry(PushConfig{
		URL:      srv.URL,
		Prefix:   "adlift",
		Job:      "adlift",
		Instance: "host-1",
	})

	g, err := reg.NewGauge(prometheus.GaugeOpts{Name: "launch_partial_sessions"})
	require.NoError(t, err)
	g.Set(3)

	ts := sink.lastSeries(t)
	labels := labelMap(ts)
	assert.Equal(t, "adlift_launch_partial_sessions", labels["__name__"])
	assert.Equal(t, "adlift", labels["job"])
	assert.Equal(t, "host-1", labels["instance"])
	require.Len(t, ts.Samples, 1)
	assert.Equal(t, float64(3), ts.Samples[0].Value)
}

func TestPushRegistry_CounterAccumulates(t *testing.T) {
	sink := &remoteWriteSink{}
	srv := httptest.NewServer(sink.handler(t))
	defer srv.Close()

	reg := NewPushRegistry(PushConfig{URL: srv.URL})

	c, err := reg.NewCounter(prometheus.CounterOpts{Name: "launch_steps_executed_total"})
	require.NoError(t, err)

	c.Inc()
	c.Inc()

	ts := sink.lastSeries(t)
	require.Len(t, ts.Samples, 1)
	// The counter pushes its running total, not a delta.
	assert.Equal(t, float64(2), ts.Samples[0].Value)
}

func TestPushRegistry_CounterVecLabels(t *testing.T) {
	sink := &remoteWriteSink{}
	srv := httptest.NewServer(sink.handler(t))
	defer srv.Close()

	reg := NewPushRegistry(PushConfig{URL: srv.URL})

	vec, err := reg.NewCounterVec(prometheus.CounterOpts{Name: "launch_steps_failed_total"}, []string{"objective", "step"})
	require.NoError(t, err)

	vec.With(prometheus.Labels{"objective": "leads", "step": "adSet"}).Inc()

	labels := labelMap(sink.lastSeries(t))
	assert.Equal(t, "leads", labels["objective"])
	assert.Equal(t, "adSet", labels["step"])
}
