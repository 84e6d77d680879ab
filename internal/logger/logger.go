// Package logger implements a non-blocking, batched assistant event log.
//
// Events are written to an internal buffered channel and flushed in batches
// by a background goroutine, so recording never blocks the query path. If
// the channel fills up (> 10 000 entries), new events are dropped and
// counted in DroppedEvents.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const (
	channelBuffer = 10_000
	batchSize     = 100
	flushInterval = time.Second
)

// Event is one completed assistant query.
type Event struct {
	RequestID    string
	Kind         string
	Model        string
	Cache        string
	Status       string
	Duration     time.Duration
	InputTokens  int
	OutputTokens int
	Time         time.Time
}

// EventSink accepts completed query events. Record must never block.
type EventSink interface {
	Record(Event)
}

// Recorder is the channel-backed EventSink used by the daemon.
type Recorder struct {
	ch        chan Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	droppedEvents int64

	baseCtx context.Context
	log     *slog.Logger
}

func New(ctx context.Context, slogger *slog.Logger) (*Recorder, error) {
	if ctx == nil {
		return nil, fmt.Errorf("logger: context must not be nil")
	}
	if slogger == nil {
		slogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	r := &Recorder{
		ch:      make(chan Event, channelBuffer),
		done:    make(chan struct{}),
		baseCtx: ctx,
		log:     slogger,
	}

	r.wg.Add(1)
	go r.run()

	return r, nil
}

func (r *Recorder) Record(e Event) {
	select {
	case r.ch <- e:
	default:
		atomic.AddInt64(&r.droppedEvents, 1)
	}
}

func (r *Recorder) DroppedEvents() int64 {
	return atomic.LoadInt64(&r.droppedEvents)
}

func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
	return nil
}

func (r *Recorder) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, batchSize)

	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		for _, e := range batch {
			r.log.InfoContext(ctx, "query",
				slog.String("request_id", e.RequestID),
				slog.String("kind", e.Kind),
				slog.String("model", e.Model),
				slog.String("cache", e.Cache),
				slog.String("status", e.Status),
				slog.Int64("duration_ms", e.Duration.Milliseconds()),
				slog.Int("input_tokens", e.InputTokens),
				slog.Int("output_tokens", e.OutputTokens),
				slog.Time("time", normalizeTime(e.Time)),
			)
		}
		batch = batch[:0]
	}

	for {
		select {
		case e := <-r.ch:
			batch = append(batch, e)
			if len(batch) >= batchSize {
				flush(r.baseCtx)
			}

		case <-ticker.C:
			flush(r.baseCtx)

		case <-r.done:
			for {
				select {
				case e := <-r.ch:
					batch = append(batch, e)
					if len(batch) >= batchSize {
						flush(r.baseCtx)
					}
				default:
					flush(r.baseCtx)
					return
				}
			}
		}
	}
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
