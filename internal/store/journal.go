package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/engine"
)

// WriteStatReport appends a stat report. Uses ON CONFLICT(seq) DO NOTHING
// for idempotency - writing the same report twice is silently ignored.
func (s *Store) WriteStatReport(ctx context.Context, r engine.StatReport) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stat_reports
		(seq, reason, time, resolve_time, estimated_resolve_time, timeline_size,
		 resolve_duration, dispatch_duration, total_duration, cache_hit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		r.Seq,
		r.Reason,
		r.Time,
		r.ResolveTime,
		r.EstimatedResolveTime,
		r.TimelineSize,
		r.ResolveDuration,
		r.DispatchDuration,
		r.TotalDuration,
		r.CacheHit,
	)
	if err != nil {
		return fmt.Errorf("write stat report: %w", err)
	}
	return nil
}

// ReadStatReports returns the latest limit reports in ascending seq order.
// A non-positive limit returns all of them.
//
// Returns an empty slice (not nil) if there are none.
func (s *Store) ReadStatReports(ctx context.Context, limit int) ([]engine.StatReport, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, reason, time, resolve_time, estimated_resolve_time, timeline_size,
		       resolve_duration, dispatch_duration, total_duration, cache_hit
		FROM (SELECT * FROM stat_reports ORDER BY seq DESC LIMIT ?)
		ORDER BY seq ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query stat reports: %w", err)
	}
	defer rows.Close()

	reports := []engine.StatReport{}
	for rows.Next() {
		var r engine.StatReport
		if err := rows.Scan(
			&r.Seq,
			&r.Reason,
			&r.Time,
			&r.ResolveTime,
			&r.EstimatedResolveTime,
			&r.TimelineSize,
			&r.ResolveDuration,
			&r.DispatchDuration,
			&r.TotalDuration,
			&r.CacheHit,
		); err != nil {
			return nil, fmt.Errorf("scan stat report: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stat reports: %w", err)
	}
	return reports, nil
}

// LastStatSeq returns the highest journaled report seq, or 0.
func (s *Store) LastStatSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM stat_reports`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last stat seq: %w", err)
	}
	return seq, nil
}

// WriteTimelineCallback appends a delivered callback. A callback with the
// same instance, edge and time is only stored once.
func (s *Store) WriteTimelineCallback(ctx context.Context, cb engine.TimelineCallback) error {
	data, err := marshalValue(cb.Data)
	if err != nil {
		return fmt.Errorf("write timeline callback: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO timeline_callbacks
		(time, instance_id, object_id, edge, callback, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(instance_id, edge, time) DO NOTHING
	`,
		cb.Time,
		cb.InstanceID,
		cb.ObjectID,
		string(cb.Edge),
		cb.Callback,
		data,
	)
	if err != nil {
		return fmt.Errorf("write timeline callback: %w", err)
	}
	return nil
}

// ReadTimelineCallbacks returns the latest limit callbacks ordered by time,
// then insertion. A non-positive limit returns all of them.
func (s *Store) ReadTimelineCallbacks(ctx context.Context, limit int) ([]engine.TimelineCallback, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT time, instance_id, object_id, edge, callback, data
		FROM (SELECT * FROM timeline_callbacks ORDER BY time DESC, id DESC LIMIT ?)
		ORDER BY time ASC, id ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query timeline callbacks: %w", err)
	}
	defer rows.Close()

	cbs := []engine.TimelineCallback{}
	for rows.Next() {
		var (
			cb         engine.TimelineCallback
			edge, data string
		)
		if err := rows.Scan(&cb.Time, &cb.InstanceID, &cb.ObjectID, &edge, &cb.Callback, &data); err != nil {
			return nil, fmt.Errorf("scan timeline callback: %w", err)
		}
		cb.Edge = engine.CallbackEdge(edge)
		if cb.Data, err = unmarshalValue(data); err != nil {
			return nil, fmt.Errorf("timeline callback %s: %w", cb.InstanceID, err)
		}
		cbs = append(cbs, cb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline callbacks: %w", err)
	}
	return cbs, nil
}

// DefaultJournalBuffer is the number of events a Journal holds before it
// starts dropping.
const DefaultJournalBuffer = 256

// Journal writes stat reports and timeline callbacks to a Store off the
// conductor loop. Listen never blocks: when the buffer is full the event is
// dropped and counted.
//
// Thread-safety: Listen may be called from any goroutine; Run from exactly
// one.
type Journal struct {
	store   *Store
	events  chan engine.Event
	dropped atomic.Int64
}

// NewJournal creates a journal. A non-positive buffer uses
// DefaultJournalBuffer.
func NewJournal(s *Store, buffer int) *Journal {
	if buffer <= 0 {
		buffer = DefaultJournalBuffer
	}
	return &Journal{store: s, events: make(chan engine.Event, buffer)}
}

// Listen is an engine.Listener.
func (j *Journal) Listen(ev engine.Event) {
	if ev.Kind != engine.EventStatReport && ev.Kind != engine.EventTimelineCallback {
		return
	}
	select {
	case j.events <- ev:
	default:
		j.dropped.Add(1)
		slog.Warn("journal full, event dropped", "kind", ev.Kind)
	}
}

// Dropped returns how many events Listen had to drop.
func (j *Journal) Dropped() int64 {
	return j.dropped.Load()
}

// Run writes events until ctx is cancelled, then writes whatever is still
// buffered and returns.
func (j *Journal) Run(ctx context.Context) error {
	wctx := context.WithoutCancel(ctx)
	for {
		select {
		case ev := <-j.events:
			j.write(wctx, ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-j.events:
					j.write(wctx, ev)
				default:
					return nil
				}
			}
		}
	}
}

func (j *Journal) write(ctx context.Context, ev engine.Event) {
	var err error
	switch {
	case ev.Kind == engine.EventStatReport && ev.Stats != nil:
		err = j.store.WriteStatReport(ctx, *ev.Stats)
	case ev.Kind == engine.EventTimelineCallback && ev.Callback != nil:
		err = j.store.WriteTimelineCallback(ctx, *ev.Callback)
	}
	if err != nil {
		slog.Error("journal write failed", "kind", ev.Kind, "error", err)
	}
}
