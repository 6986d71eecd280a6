package jobs

import (
	"context"
	"log"
	"time"

	"github.com/readstack/readstack/internal/service"
)

// Worker prunes aged audit-log rows on a fixed interval.
type Worker struct {
	logRepo   service.AuditLogRepository
	retention time.Duration
	interval  time.Duration
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewWorker creates a new Worker instance
func NewWorker(logRepo service.AuditLogRepository, retention, interval time.Duration) *Worker {
	return &Worker{
		logRepo:   logRepo,
		retention: retention,
		interval:  interval,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start begins the worker's polling loop
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.doneChan)

	log.Printf("Audit pruner started: retention=%v interval=%v", w.retention, w.interval)

	for {
		select {
		case <-ctx.Done():
			log.Println("Audit pruner stopped: context cancelled")
			return
		case <-w.stopChan:
			log.Println("Audit pruner stopped: stop signal received")
			return
		case <-ticker.C:
			w.prune(ctx)
		}
	}
}

func (w *Worker) prune(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-w.retention)
	pruned, err := w.logRepo.PruneBefore(ctx, cutoff)
	if err != nil {
		log.Printf("Error pruning audit logs: %v", err)
		return
	}
	if pruned > 0 {
		log.Printf("Pruned %d audit log rows older than %v", pruned, cutoff.Format(time.RFC3339))
	}
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
	log.Println("Audit pruner shutdown complete")
}
