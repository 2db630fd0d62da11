// Package metrics turns standup bus events into Prometheus counters.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"standupbot/internal/eventbus"
	"standupbot/internal/standup"
)

const namespace = "standupbot"

// Metrics holds the counters and the registry they live on.
type Metrics struct {
	Registry *prometheus.Registry

	Ticks          prometheus.Counter
	Prompted       prometheus.Counter
	PromptFailed   prometheus.Counter
	Submitted      prometheus.Counter
	ThreadsCreated prometheus.Counter
	PostFailed     prometheus.Counter
	AckFailed      prometheus.Counter
}

// New registers the counters on a fresh registry, together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	}
	return &Metrics{
		Registry:       reg,
		Ticks:          counter("ticks_total", "Schedule evaluations."),
		Prompted:       counter("prompts_sent_total", "Standup prompts delivered."),
		PromptFailed:   counter("prompts_failed_total", "Standup prompts that could not be delivered."),
		Submitted:      counter("submissions_total", "Submissions stored."),
		ThreadsCreated: counter("threads_created_total", "Daily thread roots created."),
		PostFailed:     counter("post_failures_total", "Thread root or reply failures."),
		AckFailed:      counter("ack_failures_total", "Acknowledgements that failed."),
	}
}

// Observe counts one event. Unknown topics are ignored.
func (m *Metrics) Observe(e eventbus.Event) {
	switch e.Type {
	case standup.TopicTick:
		m.Ticks.Inc()
	case standup.TopicPrompted:
		m.Prompted.Inc()
	case standup.TopicPromptFailed:
		m.PromptFailed.Inc()
	case standup.TopicSubmitted:
		m.Submitted.Inc()
	case standup.TopicThreadCreated:
		m.ThreadsCreated.Inc()
	case standup.TopicPostFailed:
		m.PostFailed.Inc()
	case standup.TopicAckFailed:
		m.AckFailed.Inc()
	}
}

// Consume observes bus events until ctx is done.
func (m *Metrics) Consume(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			m.Observe(e)
		}
	}
}
