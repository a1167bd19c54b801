package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"adspot-auction/internal/events"
	"adspot-auction/internal/httpclient"
)

var errCircuitOpen = errors.New("circuit_open")

type breakerState struct {
	consecutiveFailures int
	openUntil           time.Time
}

// Manager is an events.Notifier that fans events out to the configured
// targets through a bounded queue and a worker pool. Notify never blocks:
// when the queue is full the job is dropped and counted.
type Manager struct {
	cfg      Config
	router   Router
	adapters map[string]Adapter

	dispatchCh chan pushJob
	retryQ     *retryQueue
	done       chan struct{}
	workers    sync.WaitGroup

	mu           sync.Mutex
	started      bool
	breakerByKey map[string]breakerState
	now          func() time.Time
}

var _ events.Notifier = (*Manager)(nil)

func NewManager(cfg Config) *Manager {
	return NewManagerWithClient(cfg, httpclient.New(cfg.RequestTimeout))
}

func NewManagerWithClient(cfg Config, client *httpclient.Client) *Manager {
	if cfg.DispatchBuffer <= 0 {
		cfg.DispatchBuffer = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.CircuitOpenDuration <= 0 {
		cfg.CircuitOpenDuration = 30 * time.Second
	}
	m := &Manager{
		cfg:    cfg,
		router: Router{},
		adapters: map[string]Adapter{
			PlatformWebhook: NewWebhookAdapter(client),
			PlatformDiscord: NewDiscordAdapter(client),
		},
		dispatchCh:   make(chan pushJob, cfg.DispatchBuffer),
		done:         make(chan struct{}),
		breakerByKey: map[string]breakerState{},
		now:          time.Now,
	}
	m.retryQ = newRetryQueue(m.dispatchCh, m.done)
	return m
}

// Start launches the workers. They stop when ctx is done; Wait blocks
// until they have.
func (m *Manager) Start(ctx context.Context) {
	if !m.cfg.Enabled {
		return
	}
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	for i := 0; i < m.cfg.Workers; i++ {
		m.workers.Add(1)
		go func() {
			defer m.workers.Done()
			m.worker(ctx)
		}()
	}
	go func() {
		<-ctx.Done()
		close(m.done)
	}()
}

func (m *Manager) Wait() {
	m.workers.Wait()
}

func (m *Manager) Notify(_ context.Context, ev events.Event) {
	if !m.cfg.Enabled || ev == nil {
		return
	}
	env := events.ToEnvelope(ev)
	targets := m.router.MatchTargets(m.cfg.Targets, env)
	if len(targets) == 0 {
		return
	}
	msg := FormatMessage(env)
	for _, target := range targets {
		if !m.enqueue(pushJob{Target: target, Envelope: env, Message: msg}) {
			metricDroppedTotal.WithLabelValues("queue_full").Inc()
			log.Warn().Str("platform", target.Platform).Str("event", string(env.Type)).Msg("notify queue full, dropping")
		}
	}
}

func (m *Manager) enqueue(job pushJob) bool {
	select {
	case <-m.done:
		return false
	case m.dispatchCh <- job:
		metricQueuedTotal.Inc()
		metricQueueLen.Set(float64(len(m.dispatchCh)))
		return true
	default:
		return false
	}
}

func (m *Manager) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-m.dispatchCh:
			metricQueueLen.Set(float64(len(m.dispatchCh)))
			m.processJob(ctx, job)
		}
	}
}

func (m *Manager) processJob(ctx context.Context, job pushJob) {
	adapter := m.adapters[job.Target.Platform]
	if adapter == nil {
		metricDroppedTotal.WithLabelValues("unknown_platform").Inc()
		return
	}

	if err := m.beforeSend(job.key(), m.now()); err != nil {
		metricCircuitOpenTotal.Inc()
		m.retryOrDrop(job, err)
		return
	}

	if err := adapter.Send(ctx, job.Target, job); err != nil {
		metricFailedTotal.WithLabelValues(adapter.Name()).Inc()
		m.afterFailure(job.key(), m.now())
		m.retryOrDrop(job, err)
		return
	}
	metricSentTotal.WithLabelValues(adapter.Name()).Inc()
	m.afterSuccess(job.key())
}

func (m *Manager) retryOrDrop(job pushJob, err error) bool {
	if job.Attempt >= m.cfg.RetryMax {
		metricDroppedTotal.WithLabelValues("retries_exhausted").Inc()
		log.Warn().Err(err).
			Str("platform", job.Target.Platform).
			Str("event", string(job.Envelope.Type)).
			Int("attempts", job.Attempt+1).
			Msg("notify delivery dropped")
		return false
	}
	job.Attempt++
	metricRetryTotal.Inc()
	delay := m.cfg.RetryBase * time.Duration(1<<(job.Attempt-1))
	m.retryQ.Enqueue(job, delay)
	return true
}

func (m *Manager) beforeSend(key string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.breakerByKey[key]
	if !state.openUntil.IsZero() && now.Before(state.openUntil) {
		return errCircuitOpen
	}
	return nil
}

func (m *Manager) afterFailure(key string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.breakerByKey[key]
	state.consecutiveFailures++
	if state.consecutiveFailures >= m.cfg.FailureThreshold {
		state.openUntil = now.Add(m.cfg.CircuitOpenDuration)
		state.consecutiveFailures = 0
	}
	m.breakerByKey[key] = state
}

func (m *Manager) afterSuccess(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakerByKey[key] = breakerState{}
}
