package worker

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	appkafka "example.com/ribbit/internal/broker"
	"example.com/ribbit/internal/logger"
	"example.com/ribbit/internal/models"
	"github.com/segmentio/kafka-go"
)

var logg = logger.New()

// FeedRefresher rebuilds the cached public feed from the store.
type FeedRefresher interface {
	RefreshPublicFeed(ctx context.Context) ([]models.Ribbit, error)
}

// Worker consumes Ribbit events from Kafka and keeps the public feed cache warm.
type Worker struct {
	refresher    FeedRefresher
	reader       appkafka.KafkaReader
	workerCount  int
	jobQueueSize int
}

// New creates a new concurrent Worker using pre-initialized dependencies.
func New(refresher FeedRefresher, reader appkafka.KafkaReader, workerCount, jobQueueSize int) *Worker {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if jobQueueSize <= 0 {
		jobQueueSize = workerCount * 10
	}
	return &Worker{
		refresher:    refresher,
		reader:       reader,
		workerCount:  workerCount,
		jobQueueSize: jobQueueSize,
	}
}

// Run starts message reading and concurrent processing. It returns once ctx
// is canceled and every in-flight message has been handled.
func (w *Worker) Run(ctx context.Context) {
	if w.workerCount <= 0 {
		w.workerCount = 1
	}
	if w.jobQueueSize <= 0 {
		w.jobQueueSize = 10
	}

	logg.Info("worker", "Starting "+fmt.Sprint(w.workerCount)+" workers with queue size "+fmt.Sprint(w.jobQueueSize))

	jobs := make(chan kafka.Message, w.jobQueueSize)
	var wg sync.WaitGroup

	for i := 0; i < w.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processLoop(ctx, jobs)
		}()
	}

	w.readLoop(ctx, jobs)

	close(jobs)
	wg.Wait()
	logg.Info("worker", "All workers stopped gracefully")
}

// readLoop reads Kafka messages and pushes them into a job queue.
func (w *Worker) readLoop(ctx context.Context, jobs chan<- kafka.Message) {
	var retry int
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, err := w.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				backoff := time.Duration(math.Min(1000, math.Pow(2, float64(retry)))) * time.Millisecond
				logg.Error("worker", "Kafka read error, backing off", err)
				if !waitWithContext(ctx, backoff) {
					return
				}
				retry++
				continue
			}
			retry = 0

			if len(msg.Value) == 0 {
				if !waitWithContext(ctx, 50*time.Millisecond) {
					return
				}
				continue
			}

			for enqueued := false; !enqueued; {
				select {
				case jobs <- msg:
					enqueued = true
				case <-ctx.Done():
					return
				case <-time.After(100 * time.Millisecond):
					logg.Info("worker", "Queue full, waiting to enqueue Kafka message")
				}
			}
		}
	}
}

// processLoop drains the queue until it is closed. Messages already queued
// are still handled after ctx is canceled.
func (w *Worker) processLoop(ctx context.Context, jobs <-chan kafka.Message) {
	for msg := range jobs {
		if err := w.handle(ctx, msg); err != nil {
			logg.Error("worker", "Failed to handle event", err)
		}
	}
}

// handle applies a single event.
func (w *Worker) handle(ctx context.Context, msg kafka.Message) error {
	event, err := appkafka.DecodeEvent(msg)
	if err != nil {
		return err
	}

	switch event.Type {
	case appkafka.RibbitCreated:
		// finish the refresh even when shutdown has started
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		ribbits, err := w.refresher.RefreshPublicFeed(refreshCtx)
		if err != nil {
			return fmt.Errorf("refresh public feed: %w", err)
		}
		logg.Debug("worker", "Public feed refreshed with "+fmt.Sprint(len(ribbits))+" ribbits")
	case appkafka.FollowCreated:
		logg.Info("worker", "Follow recorded")
	}
	return nil
}

// waitWithContext waits for duration or context cancellation.
func waitWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Close shuts down the Kafka reader. The store and cache belong to the caller.
func (w *Worker) Close() error {
	logg.Info("worker", "Closing Kafka reader")
	if err := w.reader.Close(); err != nil {
		logg.Error("worker", "Error closing Kafka reader", err)
		return err
	}
	return nil
}
