package bootstrap

import (
	"context"
	"sync"
	"time"

	"concierge/pkg/logger"
)

// Lifecycle manages graceful shutdown of application components
type Lifecycle struct {
	shutdownTimeout time.Duration
}

// NewLifecycle creates a new lifecycle manager
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		shutdownTimeout: 30 * time.Second,
	}
}

// Shutdown performs coordinated cleanup in the correct order:
// 1. Close the Kafka consumer so blocked reads unblock
// 2. Wait for in-flight turns to finish
// 3. Close the producer after no more turns can publish
// 4. Stop the metrics endpoint
// 5. Flush error tracking and logs
// 6. Database connections last, other components may still need them
func (l *Lifecycle) Shutdown(c *Container) {
	log := c.Log
	shutdownCtx, cancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer cancel()

	log.Info("[1/6] Closing inbound chat consumer...")
	if err := c.Adapters.InboundChat.Close(); err != nil {
		log.Errorw("Consumer close failed", "error", err)
	}

	log.Info("[2/6] Waiting for in-flight turns...")
	l.waitForGoroutines(c.WG, 10*time.Second, log)

	log.Info("[3/6] Closing Kafka producer...")
	if err := c.Adapters.Producer.Close(); err != nil {
		log.Errorw("Producer close failed", "error", err)
	}

	log.Info("[4/6] Stopping metrics server...")
	if c.Adapters.MetricsServer != nil {
		if err := c.Adapters.MetricsServer.Shutdown(shutdownCtx); err != nil {
			log.Errorw("Metrics server shutdown failed", "error", err)
		}
	}

	log.Info("[5/6] Flushing error tracker and logs...")
	if c.ErrorTracker != nil {
		if err := c.ErrorTracker.Flush(shutdownCtx); err != nil {
			log.Warnw("Error tracker flush failed", "error", err)
		}
	}
	_ = logger.Sync()

	log.Info("[6/6] Closing data stores...")
	if err := c.PG.Close(); err != nil {
		log.Errorw("Postgres close failed", "error", err)
	}
	if err := c.CH.Close(); err != nil {
		log.Errorw("ClickHouse close failed", "error", err)
	}
	if err := c.Redis.Close(); err != nil {
		log.Errorw("Redis close failed", "error", err)
	}

	log.Info("Graceful shutdown complete")
}

func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Warnw("Some goroutines did not finish in time", "timeout", timeout)
	}
}
