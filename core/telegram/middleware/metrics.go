package middleware

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	tele "gopkg.in/telebot.v4"
)

const (
	collectorsKey = "metrics_collectors"
	tallyKey      = "metrics_tally"
)

// Collectors groups the transport-level Prometheus metrics of the bot.
// A nil *Collectors is valid and records nothing.
type Collectors struct {
	Updates      *prometheus.CounterVec
	Handled      *prometheus.CounterVec
	Latency      *prometheus.HistogramVec
	Dropped      *prometheus.CounterVec
	SendFailures *prometheus.CounterVec
}

// NewCollectors creates the collectors and registers them with reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	m := &Collectors{
		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shopbot",
			Name:      "updates_total",
			Help:      "Telegram updates received, by kind.",
		}, []string{"kind"}),
		Handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shopbot",
			Name:      "handler_calls_total",
			Help:      "Handler invocations, by handler and outcome.",
		}, []string{"handler", "outcome"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shopbot",
			Name:      "handler_duration_seconds",
			Help:      "Handler latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"handler"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shopbot",
			Name:      "updates_dropped_total",
			Help:      "Updates dropped before reaching a handler, by reason.",
		}, []string{"reason"}),
		SendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shopbot",
			Name:      "send_failures_total",
			Help:      "Outbound Telegram calls that failed after retries.",
		}, []string{"action", "kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.Updates, m.Handled, m.Latency, m.Dropped, m.SendFailures)
	}
	return m
}

// ObserveHandled records one finished handler call.
func (m *Collectors) ObserveHandled(handler, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.Handled.WithLabelValues(handler, outcome).Inc()
	m.Latency.WithLabelValues(handler).Observe(took.Seconds())
}

// Drop counts an update rejected by a filter.
func (m *Collectors) Drop(reason string) {
	if m == nil {
		return
	}
	m.Dropped.WithLabelValues(reason).Inc()
}

// SendFailed counts an outbound call that gave up.
func (m *Collectors) SendFailed(action, kind string) {
	if m == nil {
		return
	}
	m.SendFailures.WithLabelValues(action, kind).Inc()
}

// CollectorsFrom returns the collectors attached by MessageMetricsMiddleware.
func CollectorsFrom(c tele.Context) *Collectors {
	m, _ := c.Get(collectorsKey).(*Collectors)
	return m
}

func updateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	default:
		return "other"
	}
}

// tally counts what handlers of one update sent. Sends may run on a
// dispatcher worker, so the fields are atomic.
type tally struct {
	messages atomic.Int32
	keyboard atomic.Bool
}

// metricsContext counts successful sends and edits made through it.
type metricsContext struct {
	tele.Context
	t *tally
}

func (m metricsContext) count(err error, opts []any) error {
	if err != nil {
		return err
	}
	m.t.messages.Add(1)
	if hasKeyboard(opts) {
		m.t.keyboard.Store(true)
	}
	return nil
}

func hasKeyboard(opts []any) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		}
	}
	return false
}

func (m metricsContext) Send(what any, opts ...any) error {
	return m.count(m.Context.Send(what, opts...), opts)
}

func (m metricsContext) Reply(what any, opts ...any) error {
	return m.count(m.Context.Reply(what, opts...), opts)
}

func (m metricsContext) Edit(what any, opts ...any) error {
	return m.count(m.Context.Edit(what, opts...), opts)
}

func (m metricsContext) EditOrSend(what any, opts ...any) error {
	return m.count(m.Context.EditOrSend(what, opts...), opts)
}

func (m metricsContext) EditOrReply(what any, opts ...any) error {
	return m.count(m.Context.EditOrReply(what, opts...), opts)
}

// MessageMetricsMiddleware counts the update, attaches m for downstream
// handlers and wraps the context so sent messages and keyboards are tallied.
func MessageMetricsMiddleware(m *Collectors) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if m != nil {
				m.Updates.WithLabelValues(updateKind(c.Update())).Inc()
				c.Set(collectorsKey, m)
			}
			t := &tally{}
			c.Set(tallyKey, t)
			return next(metricsContext{Context: c, t: t})
		}
	}
}

// GetCounters returns how many messages the update's handlers sent and
// whether any of them carried a keyboard.
func GetCounters(c tele.Context) (int, bool) {
	t, _ := c.Get(tallyKey).(*tally)
	if t == nil {
		return 0, false
	}
	return int(t.messages.Load()), t.keyboard.Load()
}
