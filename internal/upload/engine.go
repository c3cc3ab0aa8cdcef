package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"fieldscout/internal/logging"
	"fieldscout/internal/metrics"
	"fieldscout/internal/status"
	"fieldscout/internal/telemetry"
)

const defaultWorkers = 5

// Engine owns live batch delivery. Submit is asynchronous with a
// bounded worker pool; batches are independent once timestamped, so
// concurrent submissions are allowed but capped. Every delivery failure
// ends in a durable write, never in a lost batch.
type Engine struct {
	client *Client
	queue  *Queue
	col    *metrics.Collector
	sink   status.Sink

	deviceUUID   string
	sessionStart time.Time
	sleepSeconds int

	baseCtx context.Context
	sem     chan struct{}
	wg      sync.WaitGroup
}

// NewEngine returns an engine bound to one session. baseCtx carries the
// logger and bounds asynchronous submissions at shutdown.
func NewEngine(baseCtx context.Context, client *Client, queue *Queue, col *metrics.Collector, sink status.Sink, deviceUUID string, sessionStart time.Time, sleepSeconds int) *Engine {
	return &Engine{
		client:       client,
		queue:        queue,
		col:          col,
		sink:         sink,
		deviceUUID:   deviceUUID,
		sessionStart: sessionStart,
		sleepSeconds: sleepSeconds,
		baseCtx:      baseCtx,
		sem:          make(chan struct{}, defaultWorkers),
	}
}

// WriteBatch implements telemetry.BatchSink by submitting
// asynchronously. It never reports an error: failures downstream are
// converted into durable writes.
func (e *Engine) WriteBatch(batch telemetry.Batch) error {
	e.Submit(batch)
	return nil
}

// Submit hands a batch to a worker. It blocks only while all workers
// are busy, which bounds memory if the link stays down for hours.
func (e *Engine) Submit(batch telemetry.Batch) {
	if len(batch) == 0 {
		return
	}
	e.col.BatchesSubmitted.Inc()
	e.sem <- struct{}{}
	e.wg.Add(1)
	go func() {
		defer func() {
			<-e.sem
			e.wg.Done()
		}()
		e.UploadNow(e.baseCtx, batch)
	}()
}

// UploadNow is the synchronous delivery primitive: serialize, compress,
// POST with bounded retries, and on exhausted or non-retryable failure
// persist the envelope to the offline queue. The returned error is
// diagnostic; by the time it is non-nil the batch is already on disk
// (or the durable write itself failed, which is the one fatal case and
// is logged as such).
func (e *Engine) UploadNow(ctx context.Context, batch telemetry.Batch) error {
	log := logging.FromContext(ctx)
	env := telemetry.NewEnvelope(e.deviceUUID, e.sessionStart, e.sleepSeconds, batch)
	body, err := json.Marshal(env)
	if err != nil {
		// Cannot happen for our own types; treated as a persist path
		// anyway so nothing is dropped.
		log.Error("envelope serialization failed", "err", err)
		return fmt.Errorf("serialize envelope: %w", err)
	}

	err = e.client.Deliver(ctx, body, func(error) { e.col.UploadRetries.Inc() })
	if err == nil {
		e.col.BatchesUploaded.Inc()
		e.setOnline(true)
		log.Info("batch uploaded", "entries", len(batch))
		return nil
	}

	e.setOnline(false)
	name, perr := e.queue.Store(env)
	if perr != nil {
		log.Error("offline persist failed, batch at risk", "err", perr, "upload_err", err)
		e.sink.SetState(status.Fault)
		return fmt.Errorf("persist after failed upload: %w", perr)
	}
	e.col.BatchesPersisted.Inc()
	e.col.OfflineQueueDepth.Set(float64(e.queue.Depth()))
	log.Warn("batch persisted for offline replay", "file", name, "entries", len(batch), "err", err)
	return fmt.Errorf("upload failed, persisted as %s: %w", name, err)
}

// Wait blocks until all in-flight submissions finish.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) setOnline(online bool) {
	if online {
		e.col.ConnectivityOnline.Set(1)
		if e.queue.Depth() > 0 {
			e.sink.SetState(status.UploadsPending)
		} else {
			e.sink.SetState(status.Online)
		}
		return
	}
	e.col.ConnectivityOnline.Set(0)
	e.sink.SetState(status.Offline)
}
