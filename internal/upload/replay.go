package upload

import (
	"context"
	"time"

	"fieldscout/internal/logging"
	"fieldscout/internal/metrics"
	"fieldscout/internal/status"
)

// Replayer continuously drains the offline queue, independent of the
// live submit path. Files are attempted strictly in creation order; a
// file that keeps failing blocks the rest of the cycle so a later batch
// never overtakes an earlier one.
type Replayer struct {
	client   *Client
	queue    *Queue
	col      *metrics.Collector
	sink     status.Sink
	interval time.Duration
}

// NewReplayer returns a replayer cycling every interval.
func NewReplayer(client *Client, queue *Queue, col *metrics.Collector, sink status.Sink, interval time.Duration) *Replayer {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Replayer{client: client, queue: queue, col: col, sink: sink, interval: interval}
}

// Run cycles until ctx is cancelled. An idle queue costs no network
// calls.
func (r *Replayer) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	log.Info("offline replay loop started", "interval", r.interval)
	for {
		r.Cycle(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.interval):
		}
	}
}

// Cycle processes the queue once. It returns the number of files
// delivered, which tests and the replay subcommand use directly.
func (r *Replayer) Cycle(ctx context.Context) int {
	log := logging.FromContext(ctx)
	files, err := r.queue.List()
	if err != nil {
		log.Error("offline queue listing failed", "err", err)
		return 0
	}
	r.col.OfflineQueueDepth.Set(float64(len(files)))
	if len(files) == 0 {
		return 0
	}

	log.Info("replaying offline queue", "pending", len(files))
	delivered := 0
	for _, f := range files {
		if ctx.Err() != nil {
			break
		}

		// A crash mid-store can leave an empty committed file behind;
		// it carries no data and is safe to drop.
		if f.Size == 0 {
			log.Warn("deleting zero-size offline file", "file", f.Name)
			if err := r.queue.Delete(f.Name); err != nil {
				log.Error("delete failed", "file", f.Name, "err", err)
			}
			continue
		}

		_, raw, err := r.queue.Load(f.Name)
		if err != nil {
			log.Error("offline file unparseable, quarantining", "file", f.Name, "err", err)
			if qerr := r.queue.Quarantine(f.Name); qerr != nil {
				log.Error("quarantine failed", "file", f.Name, "err", qerr)
			} else {
				r.col.BatchesQuarantined.Inc()
			}
			continue
		}

		err = r.client.Deliver(ctx, raw, func(error) { r.col.UploadRetries.Inc() })
		if err != nil {
			// Preserve chronological delivery order: stop this cycle
			// rather than letting a later file overtake this one.
			log.Warn("offline replay attempt failed, stopping cycle", "file", f.Name, "err", err)
			r.col.ConnectivityOnline.Set(0)
			r.sink.SetState(status.UploadsPending)
			break
		}

		if err := r.queue.Delete(f.Name); err != nil {
			log.Error("delete after replay failed", "file", f.Name, "err", err)
			break
		}
		delivered++
		r.col.BatchesReplayed.Inc()
		r.col.ConnectivityOnline.Set(1)
		log.Info("offline batch delivered", "file", f.Name)
	}

	depth := r.queue.Depth()
	r.col.OfflineQueueDepth.Set(float64(depth))
	if depth == 0 && delivered > 0 {
		r.sink.SetState(status.Online)
	}
	return delivered
}
