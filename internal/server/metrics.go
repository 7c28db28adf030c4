package server

import (
	"net/http"
	"sort"

	"github.com/markus-barta/robofleet/internal/protocol"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// handleMetrics writes hub counters in the Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))

	enc := expfmt.NewEncoder(w, format)
	for _, mf := range s.metricFamilies() {
		if err := enc.Encode(mf); err != nil {
			s.log.Error().Err(err).Str("metric", mf.GetName()).Msg("failed to encode metric")
			return
		}
	}
}

func (s *Server) metricFamilies() []*dto.MetricFamily {
	st := s.hub.Stats()

	kinds := make([]protocol.Kind, 0, len(st.Frames))
	for k := range st.Frames {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	frames := &dto.MetricFamily{
		Name: ptr("robofleet_frames_total"),
		Help: ptr("Inbound frames routed, by type."),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	for _, k := range kinds {
		frames.Metric = append(frames.Metric, &dto.Metric{
			Label:   []*dto.LabelPair{{Name: ptr("type"), Value: ptr(string(k))}},
			Counter: &dto.Counter{Value: ptr(float64(st.Frames[k]))},
		})
	}

	return []*dto.MetricFamily{
		gauge("robofleet_connections", "Open WebSocket connections.", float64(st.Connections)),
		gauge("robofleet_robots", "Robots known to the fleet store.", float64(s.fleet.Len())),
		frames,
		counter("robofleet_frames_dropped_total", "Malformed, unknown or unauthenticated frames.", st.Dropped),
		counter("robofleet_auth_failures_total", "Rejected auth attempts.", st.AuthFailed),
		counter("robofleet_overflow_disconnects_total", "Connections dropped for a full send buffer.", st.Overflows),
		counter("robofleet_reaped_total", "Connections dropped by the liveness sweep.", st.Reaped),
	}
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   ptr(name),
		Help:   ptr(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: ptr(v)}}},
	}
}

func counter(name, help string, v uint64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   ptr(name),
		Help:   ptr(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: ptr(float64(v))}}},
	}
}

func ptr[T any](v T) *T { return &v }
