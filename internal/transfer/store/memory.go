package store

import (
	"context"
	"sync"
	"time"

	"github.com/ruhanslop/tabpipe/internal/pkg/pkgerror"
	"github.com/ruhanslop/tabpipe/internal/transfer/entity"
	"github.com/ruhanslop/tabpipe/internal/transfer/usecase"
)

// SessionStore keeps one pipeline state per session in memory. Each record
// carries its own lock plus a settle channel that waiters block on until
// the first upload reaches a terminal parse status.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionRecord
	now      func() time.Time
}

type sessionRecord struct {
	mu        sync.RWMutex
	upload    entity.Upload
	hasUpload bool

	options    usecase.CleanOptions
	optionsRev uint64

	parsed     *entity.Table
	cleaned    *entity.Table
	cleanedRev uint64

	settled       chan struct{}
	settledClosed bool

	lastSeen time.Time
}

// EvictedSession reports a session removed by the idle janitor along with
// the spool paths it still owned.
type EvictedSession struct {
	SessionID string
	Paths     []string
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*sessionRecord),
		now:      time.Now,
	}
}

// ReplaceUpload supersedes the session's current upload with up, resetting
// parsed state and re-arming the settle channel. It returns the previous
// descriptor so the caller can reclaim its spool file.
func (s *SessionStore) ReplaceUpload(ctx context.Context, sessionID string, up entity.Upload) (entity.Upload, bool, error) {
	rec := s.getOrCreate(sessionID)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	prev, existed := rec.upload, rec.hasUpload

	rec.upload = up
	rec.hasUpload = true
	rec.parsed = nil
	rec.cleaned = nil

	// Wake any waiter parked on the old channel so it re-arms on this one.
	if !rec.settledClosed {
		close(rec.settled)
	}
	rec.settled = make(chan struct{})
	rec.settledClosed = false

	return prev, existed, nil
}

// UpdateUpload mutates the current upload's metadata. Writes targeting a
// superseded upload return usecase.ErrSuperseded and change nothing.
func (s *SessionStore) UpdateUpload(ctx context.Context, sessionID, uploadID string, fn func(meta *entity.Upload)) error {
	rec, err := s.get(sessionID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if !rec.hasUpload || rec.upload.ID != uploadID {
		return usecase.ErrSuperseded
	}

	fn(&rec.upload)

	if terminal(rec.upload.Status) && !rec.settledClosed {
		close(rec.settled)
		rec.settledClosed = true
	}

	return nil
}

// SaveTable stores the parsed table for the current upload and drops any
// memoized cleaned table derived from an earlier parse.
func (s *SessionStore) SaveTable(ctx context.Context, sessionID, uploadID string, table entity.Table) error {
	rec, err := s.get(sessionID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if !rec.hasUpload || rec.upload.ID != uploadID {
		return usecase.ErrSuperseded
	}

	rec.parsed = &table
	rec.cleaned = nil

	return nil
}

// Snapshot returns a copy of the session's current state.
func (s *SessionStore) Snapshot(ctx context.Context, sessionID string) (usecase.Session, error) {
	rec, err := s.get(sessionID)
	if err != nil {
		return usecase.Session{}, err
	}

	rec.mu.RLock()
	defer rec.mu.RUnlock()

	if !rec.hasUpload {
		return usecase.Session{}, pkgerror.ErrNotFound
	}

	return usecase.Session{Upload: rec.upload, Options: rec.options}, nil
}

// AwaitSettled blocks until the session's current upload reaches READY or
// FAILED, or ctx expires. A session that has never seen an upload is
// created implicitly so early readers wait for the first value instead of
// failing.
func (s *SessionStore) AwaitSettled(ctx context.Context, sessionID string) (usecase.Session, error) {
	rec := s.getOrCreate(sessionID)

	for {
		rec.mu.RLock()
		if rec.hasUpload && terminal(rec.upload.Status) {
			sess := usecase.Session{Upload: rec.upload, Options: rec.options}
			rec.mu.RUnlock()
			return sess, nil
		}
		settled := rec.settled
		rec.mu.RUnlock()

		select {
		case <-settled:
		case <-ctx.Done():
			return usecase.Session{}, ctx.Err()
		}
	}
}

// SetOptions replaces the cleaning toggles, bumping the revision so the
// memoized cleaned table is recomputed on next use.
func (s *SessionStore) SetOptions(ctx context.Context, sessionID string, opts usecase.CleanOptions) error {
	rec := s.getOrCreate(sessionID)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.options = opts
	rec.optionsRev++
	rec.cleaned = nil

	return nil
}

// CleanedTable returns the cleaned table for the session, computing it via
// clean only when the memoized copy is stale for the current options.
func (s *SessionStore) CleanedTable(ctx context.Context, sessionID string, clean func(entity.Table, usecase.CleanOptions) entity.Table) (entity.Table, error) {
	rec, err := s.get(sessionID)
	if err != nil {
		return entity.Table{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.parsed == nil {
		return entity.Table{}, pkgerror.ErrNotFound
	}

	if rec.cleaned != nil && rec.cleanedRev == rec.optionsRev {
		return *rec.cleaned, nil
	}

	table := clean(*rec.parsed, rec.options)
	rec.cleaned = &table
	rec.cleanedRev = rec.optionsRev

	return table, nil
}

// EvictIdle removes sessions not touched within ttl and reports the spool
// paths they still referenced.
func (s *SessionStore) EvictIdle(ttl time.Duration) []EvictedSession {
	cutoff := s.now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []EvictedSession
	for id, rec := range s.sessions {
		rec.mu.RLock()
		idle := rec.lastSeen.Before(cutoff)
		var paths []string
		if idle && rec.hasUpload && rec.upload.StoragePath != "" {
			paths = []string{rec.upload.StoragePath}
		}
		rec.mu.RUnlock()

		if !idle {
			continue
		}

		delete(s.sessions, id)
		evicted = append(evicted, EvictedSession{SessionID: id, Paths: paths})
	}

	return evicted
}

func (s *SessionStore) get(sessionID string) (*sessionRecord, error) {
	s.mu.RLock()
	rec, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, pkgerror.ErrNotFound
	}

	s.touch(rec)
	return rec, nil
}

func (s *SessionStore) getOrCreate(sessionID string) *sessionRecord {
	s.mu.Lock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		rec = &sessionRecord{settled: make(chan struct{})}
		s.sessions[sessionID] = rec
	}
	s.mu.Unlock()

	s.touch(rec)
	return rec
}

func (s *SessionStore) touch(rec *sessionRecord) {
	rec.mu.Lock()
	rec.lastSeen = s.now()
	rec.mu.Unlock()
}

func terminal(status entity.UploadStatus) bool {
	return status == entity.UploadStatusReady || status == entity.UploadStatusFailed
}
