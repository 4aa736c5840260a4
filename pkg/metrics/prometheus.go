// Package metrics exports realtime client activity as Prometheus metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/pulse/pkg/protocol"
	"github.com/vango-dev/pulse/pkg/realtime"
)

// Config configures the Prometheus observer.
type Config struct {
	// Namespace is the metrics namespace (default: "pulse").
	Namespace string

	// Subsystem is the metrics subsystem (default: "client").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for messages per envelope.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the Prometheus observer.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the envelope size histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "pulse",
		Subsystem: "client",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		Registry:  prometheus.DefaultRegisterer,
	}
}

var connectionStates = []realtime.ConnectionState{
	realtime.ConnectionInitialized,
	realtime.ConnectionConnecting,
	realtime.ConnectionConnected,
	realtime.ConnectionDisconnected,
	realtime.ConnectionSuspended,
	realtime.ConnectionClosed,
	realtime.ConnectionFailed,
}

// Observer implements realtime.Observer with Prometheus collectors.
//
// Metrics collected:
//   - pulse_client_connection_state: 1 for the current connection state
//   - pulse_client_connection_transitions_total: by from and to state
//   - pulse_client_channel_transitions_total: by target state
//   - pulse_client_envelopes_sent_total / _received_total: by action
//   - pulse_client_envelope_messages: messages per MESSAGE envelope sent
//   - pulse_client_acked_total / pulse_client_nacked_total
//   - pulse_client_queued_envelopes / pulse_client_pending_envelopes
//   - pulse_client_connect_attempts_total: by fallback
//
// Register one Observer per registry; a second New on the same registry
// panics on duplicate registration.
type Observer struct {
	state           *prometheus.GaugeVec
	transitions     *prometheus.CounterVec
	channelStates   *prometheus.CounterVec
	sent            *prometheus.CounterVec
	received        *prometheus.CounterVec
	envelopeSize    prometheus.Histogram
	acked           prometheus.Counter
	nacked          prometheus.Counter
	queued          prometheus.Gauge
	pending         prometheus.Gauge
	connectAttempts *prometheus.CounterVec
}

// New creates and registers the collectors.
func New(opts ...Option) *Observer {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	o := &Observer{
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connection_state",
			Help:        "Current connection state (1 for the active state)",
			ConstLabels: config.ConstLabels,
		}, []string{"state"}),

		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connection_transitions_total",
			Help:        "Total connection state transitions",
			ConstLabels: config.ConstLabels,
		}, []string{"from", "to"}),

		channelStates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "channel_transitions_total",
			Help:        "Total channel state transitions by target state",
			ConstLabels: config.ConstLabels,
		}, []string{"to"}),

		sent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "envelopes_sent_total",
			Help:        "Total protocol envelopes written to the transport",
			ConstLabels: config.ConstLabels,
		}, []string{"action"}),

		received: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "envelopes_received_total",
			Help:        "Total protocol envelopes received from the transport",
			ConstLabels: config.ConstLabels,
		}, []string{"action"}),

		envelopeSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "envelope_messages",
			Help:        "Messages carried per MESSAGE envelope sent",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		acked: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "acked_total",
			Help:        "Total envelopes acknowledged by the service",
			ConstLabels: config.ConstLabels,
		}),

		nacked: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "nacked_total",
			Help:        "Total envelopes rejected by the service",
			ConstLabels: config.ConstLabels,
		}),

		queued: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "queued_envelopes",
			Help:        "Envelopes waiting for the connection",
			ConstLabels: config.ConstLabels,
		}),

		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "pending_envelopes",
			Help:        "Envelopes sent and awaiting acknowledgement",
			ConstLabels: config.ConstLabels,
		}),

		connectAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connect_attempts_total",
			Help:        "Total connection attempts",
			ConstLabels: config.ConstLabels,
		}, []string{"fallback"}),
	}
	o.setState(realtime.ConnectionInitialized)
	return o
}

func (o *Observer) setState(current realtime.ConnectionState) {
	for _, s := range connectionStates {
		v := 0.0
		if s == current {
			v = 1
		}
		o.state.WithLabelValues(s.String()).Set(v)
	}
}

// ConnectionStateChanged implements realtime.Observer.
func (o *Observer) ConnectionStateChanged(change realtime.ConnectionStateChange) {
	o.setState(change.Current)
	o.transitions.WithLabelValues(change.Previous.String(), change.Current.String()).Inc()
}

// ChannelStateChanged implements realtime.Observer.
func (o *Observer) ChannelStateChanged(_ string, change realtime.ChannelStateChange) {
	// Channel names are unbounded; only the state is a label.
	o.channelStates.WithLabelValues(change.Current.String()).Inc()
}

// MessageSent implements realtime.Observer.
func (o *Observer) MessageSent(msg *protocol.ProtocolMessage) {
	o.sent.WithLabelValues(msg.Action.String()).Inc()
	if msg.Action == protocol.ActionMessage {
		o.envelopeSize.Observe(float64(len(msg.Messages)))
	}
}

// MessageReceived implements realtime.Observer.
func (o *Observer) MessageReceived(msg *protocol.ProtocolMessage) {
	o.received.WithLabelValues(msg.Action.String()).Inc()
}

// MessagesAcked implements realtime.Observer.
func (o *Observer) MessagesAcked(n int) {
	o.acked.Add(float64(n))
}

// MessagesNacked implements realtime.Observer.
func (o *Observer) MessagesNacked(n int) {
	o.nacked.Add(float64(n))
}

// QueueDepth implements realtime.Observer.
func (o *Observer) QueueDepth(queued, pending int) {
	o.queued.Set(float64(queued))
	o.pending.Set(float64(pending))
}

// ConnectAttempt implements realtime.Observer.
func (o *Observer) ConnectAttempt(_ string, fallback bool) {
	o.connectAttempts.WithLabelValues(strconv.FormatBool(fallback)).Inc()
}

var _ realtime.Observer = (*Observer)(nil)
