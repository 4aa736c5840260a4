package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/vango-dev/pulse/pkg/protocol"
	"github.com/vango-dev/pulse/pkg/realtime"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	return m.GetGauge().GetValue()
}

func histogramCount(t *testing.T, h prometheus.Histogram) (uint64, float64) {
	t.Helper()
	var m dto.Metric
	if err := h.Write(&m); err != nil {
		t.Fatalf("histogram Write() error: %v", err)
	}
	return m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum()
}

func TestObserver_ConnectionState(t *testing.T) {
	o := New(WithRegistry(prometheus.NewRegistry()))

	if got := gaugeValue(t, o.state.WithLabelValues("initialized")); got != 1 {
		t.Errorf("initialized = %v, want 1", got)
	}

	o.ConnectionStateChanged(realtime.ConnectionStateChange{
		Previous: realtime.ConnectionInitialized,
		Current:  realtime.ConnectionConnecting,
	})
	o.ConnectionStateChanged(realtime.ConnectionStateChange{
		Previous: realtime.ConnectionConnecting,
		Current:  realtime.ConnectionConnected,
	})

	tests := []struct {
		state string
		want  float64
	}{
		{"initialized", 0},
		{"connecting", 0},
		{"connected", 1},
	}
	for _, tt := range tests {
		if got := gaugeValue(t, o.state.WithLabelValues(tt.state)); got != tt.want {
			t.Errorf("state %s = %v, want %v", tt.state, got, tt.want)
		}
	}
	if got := counterValue(t, o.transitions.WithLabelValues("connecting", "connected")); got != 1 {
		t.Errorf("transitions = %v", got)
	}
}

func TestObserver_Messages(t *testing.T) {
	o := New(WithRegistry(prometheus.NewRegistry()), WithNamespace("test"))

	msg := protocol.NewProtocolMessage(protocol.ActionMessage, "demo")
	msg.Messages = []*protocol.Message{protocol.NewMessage("a", nil), protocol.NewMessage("b", nil)}
	o.MessageSent(msg)
	o.MessageSent(protocol.NewProtocolMessage(protocol.ActionAttach, "demo"))
	o.MessageReceived(protocol.NewProtocolMessage(protocol.ActionAck, ""))
	o.MessagesAcked(3)
	o.MessagesNacked(1)
	o.QueueDepth(4, 2)
	o.ConnectAttempt("fb-a", true)
	o.ChannelStateChanged("demo", realtime.ChannelStateChange{Current: realtime.ChannelAttached})

	if got := counterValue(t, o.sent.WithLabelValues("MESSAGE")); got != 1 {
		t.Errorf("sent MESSAGE = %v", got)
	}
	if got := counterValue(t, o.sent.WithLabelValues("ATTACH")); got != 1 {
		t.Errorf("sent ATTACH = %v", got)
	}
	if count, sum := histogramCount(t, o.envelopeSize); count != 1 || sum != 2 {
		t.Errorf("envelope histogram count=%d sum=%v", count, sum)
	}
	if got := counterValue(t, o.received.WithLabelValues("ACK")); got != 1 {
		t.Errorf("received ACK = %v", got)
	}
	if got := counterValue(t, o.acked); got != 3 {
		t.Errorf("acked = %v", got)
	}
	if got := counterValue(t, o.nacked); got != 1 {
		t.Errorf("nacked = %v", got)
	}
	if q, p := gaugeValue(t, o.queued), gaugeValue(t, o.pending); q != 4 || p != 2 {
		t.Errorf("queue depth = %v/%v", q, p)
	}
	if got := counterValue(t, o.connectAttempts.WithLabelValues("true")); got != 1 {
		t.Errorf("fallback attempts = %v", got)
	}
	if got := counterValue(t, o.channelStates.WithLabelValues("attached")); got != 1 {
		t.Errorf("channel transitions = %v", got)
	}
}

func TestObserver_Registry(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(WithRegistry(reg), WithConstLabels(prometheus.Labels{"app": "demo"}))

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "pulse_client_connection_state" {
			found = true
			for _, m := range f.GetMetric() {
				labels := map[string]string{}
				for _, l := range m.GetLabel() {
					labels[l.GetName()] = l.GetValue()
				}
				if labels["app"] != "demo" {
					t.Errorf("missing const label: %v", labels)
				}
			}
		}
	}
	if !found {
		t.Error("pulse_client_connection_state not registered")
	}
}
