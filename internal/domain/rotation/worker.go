package rotation

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Worker runs the rotation engine on a cron schedule. The distributed lock
// inside the engine already serializes per-campaign work, so running the
// worker alongside an external cron caller is safe.
type Worker struct {
	engine       *Engine
	spec         string
	cycleTimeout time.Duration

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// NewWorker creates a new rotation worker
func NewWorker(engine *Engine, spec string, cycleTimeout time.Duration) *Worker {
	return &Worker{
		engine:       engine,
		spec:         spec,
		cycleTimeout: cycleTimeout,
	}
}

// Start schedules rotation cycles. Overlapping runs are prevented by
// skipping a tick while the previous cycle is still in flight.
func (w *Worker) Start() error {
	w.cron = cron.New()

	_, err := w.cron.AddFunc(w.spec, w.tick)
	if err != nil {
		return err
	}

	w.cron.Start()
	log.Info().Str("schedule", w.spec).Msg("rotation worker started")
	return nil
}

// Stop halts the schedule and waits for a running cycle to finish
func (w *Worker) Stop() {
	if w.cron == nil {
		return
	}
	ctx := w.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("rotation worker stopped")
}

func (w *Worker) tick() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		log.Warn().Msg("previous rotation cycle still running, skipping tick")
		return
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), w.cycleTimeout)
	defer cancel()

	if _, err := w.engine.Run(ctx); err != nil {
		log.Error().Err(err).Msg("rotation cycle failed")
	}
}
