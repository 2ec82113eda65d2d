// Package history implements the single in-memory source of truth for the
// dashboard: the ordered collections of analysis records, activity logs and
// the flattened detection list. Mutations apply locally first and complete
// before any remote persistence I/O starts, so observers always see a
// consistent snapshot immediately after a store call returns. Remote writes
// are best-effort; the store optimizes for a responsive dashboard over strict
// consistency and relies on the next Hydrate to converge with the remote copy.
package history

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sentinelops/sentinel-go/internal/model"
)

// PersistenceClient is the remote persistence contract consumed by the store.
// Create calls are fire-and-forget, delete calls are awaited but their
// failures swallowed, and the two fetch calls feed Hydrate. Isolating the
// policy behind this interface lets a transactional client replace the
// best-effort one without touching call sites.
type PersistenceClient interface {
	FetchAnalyses(ctx context.Context) ([]model.AnalysisRecord, error)
	FetchActivityLogs(ctx context.Context) ([]model.ActivityLog, error)
	CreateAnalysis(ctx context.Context, record *model.AnalysisRecord) error
	CreateActivityLog(ctx context.Context, entry *model.ActivityLog) error
	DeleteAnalysis(ctx context.Context, analysisID string) error
	DeleteAllAnalyses(ctx context.Context) error
}

// Store owns the three entity collections for the lifetime of the session.
// All collections are newest first. Safe for concurrent use.
type Store struct {
	mu            sync.RWMutex
	analyses      []model.AnalysisRecord
	activityLogs  []model.ActivityLog
	allDetections []model.Detection
	hydrated      bool

	counters idCounters

	client PersistenceClient
	logger *slog.Logger

	subscribersMu sync.RWMutex
	subscribers   []*subscriber
	closed        bool

	// writes tracks in-flight fire-and-forget persistence goroutines so
	// Stop can drain them.
	writes sync.WaitGroup
}

// NewStore creates a store backed by the given persistence client.
// A nil logger falls back to the history service file logger.
func NewStore(client PersistenceClient, logger *slog.Logger) *Store {
	if logger == nil {
		logger = getFileLogger(false)
	}
	return &Store{
		client:   client,
		counters: newIDCounters(),
		logger:   logger,
	}
}

// AddAnalysis prepends the record and its detections to the local collections,
// then issues an asynchronous persistence write. It returns as soon as the
// local mutation is visible; the remote write is never awaited.
func (s *Store) AddAnalysis(record *model.AnalysisRecord) {
	if record == nil {
		return
	}

	s.mu.Lock()
	s.analyses = append([]model.AnalysisRecord{*record}, s.analyses...)
	s.allDetections = append(append([]model.Detection{}, record.Detections...), s.allDetections...)
	analysisCount := len(s.analyses)
	s.mu.Unlock()

	metricAnalysesAdded.Inc()
	metricAnalysesSize.Set(float64(analysisCount))

	s.broadcast(Event{Kind: EventAnalysisAdded, AnalysisID: record.ID})

	s.persistAsync("create_analysis", record.ID, func(ctx context.Context) error {
		return s.client.CreateAnalysis(ctx, record)
	})
}

// AddActivityLog prepends the entry to the activity feed and issues an
// asynchronous persistence write with the same fire-and-forget contract as
// AddAnalysis.
func (s *Store) AddActivityLog(entry *model.ActivityLog) {
	if entry == nil {
		return
	}

	s.mu.Lock()
	s.activityLogs = append([]model.ActivityLog{*entry}, s.activityLogs...)
	s.mu.Unlock()

	metricLogsAdded.Inc()

	s.broadcast(Event{Kind: EventActivityLogAdded, AnalysisID: entry.AnalysisID})

	s.persistAsync("create_activity_log", entry.ID, func(ctx context.Context) error {
		return s.client.CreateActivityLog(ctx, entry)
	})
}

// RemoveAnalysis drops the matching record, rebuilds the flattened detection
// list from the remaining records and cascades the removal to activity logs
// referencing the record. Only after the local mutation completes does it
// await the remote delete; a remote failure is logged and swallowed since the
// local view has already diverged and no retry is scheduled. Removing an
// unknown id is a no-op.
func (s *Store) RemoveAnalysis(ctx context.Context, analysisID string) {
	s.mu.Lock()
	remaining := s.analyses[:0:0]
	removed := false
	for i := range s.analyses {
		if s.analyses[i].ID == analysisID {
			removed = true
			continue
		}
		remaining = append(remaining, s.analyses[i])
	}
	if !removed {
		s.mu.Unlock()
		return
	}
	s.analyses = remaining
	s.allDetections = flattenDetections(remaining)

	keptLogs := s.activityLogs[:0:0]
	for i := range s.activityLogs {
		if s.activityLogs[i].AnalysisID == analysisID {
			continue
		}
		keptLogs = append(keptLogs, s.activityLogs[i])
	}
	s.activityLogs = keptLogs
	analysisCount := len(s.analyses)
	s.mu.Unlock()

	metricAnalysesRemoved.Inc()
	metricAnalysesSize.Set(float64(analysisCount))

	s.broadcast(Event{Kind: EventAnalysisRemoved, AnalysisID: analysisID})

	if err := s.client.DeleteAnalysis(ctx, analysisID); err != nil {
		metricPersistenceFailures.WithLabelValues("delete_analysis").Inc()
		s.logger.Warn("remote delete failed, local state is authoritative until next hydration",
			"analysis_id", analysisID,
			"error", err)
	}
}

// ClearAll empties all three collections and resets the hydrated flag, then
// awaits the remote delete-all with the same no-retry failure policy as
// RemoveAnalysis.
func (s *Store) ClearAll(ctx context.Context) {
	s.mu.Lock()
	s.analyses = nil
	s.activityLogs = nil
	s.allDetections = nil
	s.hydrated = false
	s.mu.Unlock()

	metricAnalysesSize.Set(0)

	s.broadcast(Event{Kind: EventCleared})

	if err := s.client.DeleteAllAnalyses(ctx); err != nil {
		metricPersistenceFailures.WithLabelValues("delete_all").Inc()
		s.logger.Warn("remote delete-all failed, local state is authoritative until next hydration",
			"error", err)
	}
}

// Hydrate fetches the remote analyses and activity logs in parallel and
// replaces the local collections wholesale. It resynchronizes the monotonic
// id counters from the fetched data so subsequently created local entities
// cannot collide with persisted ones. The hydrated flag is set whether or not
// the fetch succeeded; on failure the session starts with empty collections
// rather than blocking the dashboard indefinitely.
func (s *Store) Hydrate(ctx context.Context) {
	var (
		wg        sync.WaitGroup
		analyses  []model.AnalysisRecord
		logs      []model.ActivityLog
		fetchErrA error
		fetchErrL error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		analyses, fetchErrA = s.client.FetchAnalyses(ctx)
	}()
	go func() {
		defer wg.Done()
		logs, fetchErrL = s.client.FetchActivityLogs(ctx)
	}()
	wg.Wait()

	if fetchErrA != nil || fetchErrL != nil {
		metricHydrations.WithLabelValues("failure").Inc()
		s.logger.Warn("hydration failed, starting session with empty collections",
			"analyses_error", fetchErrA,
			"logs_error", fetchErrL)
		analyses = nil
		logs = nil
	} else {
		metricHydrations.WithLabelValues("success").Inc()
	}

	s.mu.Lock()
	s.analyses = analyses
	s.activityLogs = logs
	s.allDetections = flattenDetections(analyses)
	s.counters.resync(analyses, logs)
	s.hydrated = true
	analysisCount := len(s.analyses)
	s.mu.Unlock()

	metricAnalysesSize.Set(float64(analysisCount))

	s.logger.Info("store hydrated",
		"analyses", analysisCount,
		"activity_logs", len(logs))

	s.broadcast(Event{Kind: EventHydrated})
}

// Analyses returns a copy of the analysis collection, newest first.
func (s *Store) Analyses() []model.AnalysisRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AnalysisRecord, len(s.analyses))
	copy(out, s.analyses)
	return out
}

// ActivityLogs returns a copy of the activity feed, newest first.
func (s *Store) ActivityLogs() []model.ActivityLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ActivityLog, len(s.activityLogs))
	copy(out, s.activityLogs)
	return out
}

// AllDetections returns a copy of the flattened detection list,
// newest analysis first.
func (s *Store) AllDetections() []model.Detection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Detection, len(s.allDetections))
	copy(out, s.allDetections)
	return out
}

// Analysis returns the record with the given id, or false when absent.
func (s *Store) Analysis(analysisID string) (model.AnalysisRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.analyses {
		if s.analyses[i].ID == analysisID {
			return s.analyses[i], true
		}
	}
	return model.AnalysisRecord{}, false
}

// Hydrated reports whether a hydration attempt has completed this session.
func (s *Store) Hydrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydrated
}

// NextDetectionID returns the next monotonic detection id ("det-N").
func (s *Store) NextDetectionID() string {
	return s.counters.nextDetectionID()
}

// NextActivityLogID returns the next monotonic activity log id ("log-N").
func (s *Store) NextActivityLogID() string {
	return s.counters.nextActivityLogID()
}

// Stop drains in-flight persistence writes and cancels all subscribers.
func (s *Store) Stop() {
	s.writes.Wait()

	s.subscribersMu.Lock()
	s.closed = true
	for _, sub := range s.subscribers {
		sub.cancel()
	}
	s.subscribers = nil
	s.subscribersMu.Unlock()
}

// persistAsync runs a persistence write in its own goroutine. Failures are
// logged and counted, never surfaced to the caller.
func (s *Store) persistAsync(operation, entityID string, write func(context.Context) error) {
	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		if err := write(context.Background()); err != nil {
			metricPersistenceFailures.WithLabelValues(operation).Inc()
			s.logger.Warn("fire-and-forget persistence write failed",
				"operation", operation,
				"entity_id", entityID,
				"error", err)
		}
	}()
}

// flattenDetections rebuilds the flattened detection list, preserving the
// newest-analysis-first collection order.
func flattenDetections(analyses []model.AnalysisRecord) []model.Detection {
	total := 0
	for i := range analyses {
		total += len(analyses[i].Detections)
	}
	if total == 0 {
		return nil
	}
	out := make([]model.Detection, 0, total)
	for i := range analyses {
		out = append(out, analyses[i].Detections...)
	}
	return out
}
