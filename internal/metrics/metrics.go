// Package metrics records what one bot run did and ships it to a Prometheus
// Pushgateway. A run is a short batch job, so nothing is scraped; the
// registry is pushed once at the end.
package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	logx "linkkibot/pkg/logx"
)

const namespace = "linkkibot"

type Config struct {
	PushgatewayURL string
	Job            string
	Instance       string
}

// Run holds the per-run registry. Methods are safe on a nil *Run.
type Run struct {
	cfg   Config
	log   logx.Logger
	reg   *prometheus.Registry
	start time.Time

	fetched     prometheus.Counter
	newEvents   prometheus.Counter
	duplicates  prometheus.Counter
	storeErrors prometheus.Counter
	messages    *prometheus.CounterVec
	window      prometheus.Gauge
	duration    prometheus.Gauge
	lastSuccess prometheus.Gauge
}

func NewRun(cfg Config, log logx.Logger) *Run {
	if strings.TrimSpace(cfg.Job) == "" {
		cfg.Job = namespace
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Run{
		cfg:   cfg,
		log:   log.With(logx.String("comp", "metrics")),
		reg:   prometheus.NewRegistry(),
		start: time.Now(),
		fetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_fetched_total",
			Help:      "Records decoded from the upstream feed",
		}),
		newEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_new_total",
			Help:      "Records stored for the first time",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_duplicate_total",
			Help:      "Records already present in the store",
		}),
		storeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Store operations that failed",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Chat deliveries by result",
		}, []string{"result"}),
		window: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_events",
			Help:      "Events in the last summarized period",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the run",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that finished without error",
		}),
	}
	r.reg.MustRegister(r.fetched, r.newEvents, r.duplicates, r.storeErrors, r.messages, r.window, r.duration, r.lastSuccess)
	// Pre-create both label values so a push always carries them.
	r.messages.WithLabelValues("ok")
	r.messages.WithLabelValues("failed")
	return r
}

func (r *Run) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

func (r *Run) Fetched(n int) {
	if r != nil {
		r.fetched.Add(float64(n))
	}
}

func (r *Run) Stored(isNew bool) {
	if r == nil {
		return
	}
	if isNew {
		r.newEvents.Inc()
	} else {
		r.duplicates.Inc()
	}
}

func (r *Run) StoreError() {
	if r != nil {
		r.storeErrors.Inc()
	}
}

func (r *Run) Messages(ok, failed int) {
	if r == nil {
		return
	}
	r.messages.WithLabelValues("ok").Add(float64(ok))
	r.messages.WithLabelValues("failed").Add(float64(failed))
}

func (r *Run) WindowEvents(n int) {
	if r != nil {
		r.window.Set(float64(n))
	}
}

// Finish stamps the run duration and, when runErr is nil, the success time.
// With a Pushgateway configured the registry is pushed; otherwise every
// sample is logged at debug level.
func (r *Run) Finish(ctx context.Context, runErr error) error {
	if r == nil {
		return nil
	}
	now := time.Now()
	r.duration.Set(now.Sub(r.start).Seconds())
	if runErr == nil {
		r.lastSuccess.Set(float64(now.Unix()))
	}

	if strings.TrimSpace(r.cfg.PushgatewayURL) == "" {
		r.dump()
		return nil
	}
	p := push.New(r.cfg.PushgatewayURL, r.cfg.Job).Gatherer(r.reg)
	if r.cfg.Instance != "" {
		p = p.Grouping("instance", r.cfg.Instance)
	}
	if err := p.PushContext(ctx); err != nil {
		return errors.Join(errors.New("metrics: push failed"), err)
	}
	r.log.Debug("metrics pushed", logx.String("job", r.cfg.Job))
	return nil
}

func (r *Run) dump() {
	if !r.log.Enabled(logx.LevelDebug) {
		return
	}
	mfs, err := r.reg.Gather()
	if err != nil {
		r.log.Debug("metrics gather failed", logx.Err(err))
		return
	}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			v := m.GetCounter().GetValue() + m.GetGauge().GetValue()
			fields := []logx.Field{logx.String("metric", mf.GetName()), logx.Float64("value", v)}
			for _, l := range m.GetLabel() {
				fields = append(fields, logx.String(l.GetName(), l.GetValue()))
			}
			r.log.Debug("metric", fields...)
		}
	}
}
