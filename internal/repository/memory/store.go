// Package memory provides a single-process implementation of the repository contracts.
// All transactions are serialized on one mutex and rolled back by restoring a snapshot,
// which makes it suitable for development and tests but not for multiple instances.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/video-assignment-service/internal/domain"
	"github.com/spec-kit/video-assignment-service/internal/repository"
)

// FaultFunc lets tests fail a write for a given operation and video.
type FaultFunc func(op, videoID string) error

// Store holds all state in maps guarded by mu.
type Store struct {
	mu      sync.Mutex
	videos  map[string]domain.Video
	limits  []domain.StaffLimit
	history []domain.VideoHistory
	staff   map[string]domain.StaffMember
	fault   FaultFunc
}

// New creates an empty store.
func New() *Store {
	return &Store{
		videos: make(map[string]domain.Video),
		staff:  make(map[string]domain.StaffMember),
	}
}

// SetFault installs a fault hook consulted before every compare-and-write.
func (s *Store) SetFault(fn FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

// Stores returns repositories that each lock the store per call.
func (s *Store) Stores() repository.Stores {
	return s.bind(false)
}

// WithinTx runs fn with exclusive access to the store and restores the previous state
// when fn returns an error.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, stores repository.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return repository.Classify(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx, s.bind(true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) bind(inTx bool) repository.Stores {
	r := &repos{store: s, inTx: inTx}
	return repository.Stores{
		Videos:  (*videoRepo)(r),
		Limits:  (*limitRepo)(r),
		History: (*historyRepo)(r),
		Staff:   (*staffRepo)(r),
		Locks:   (*lockRepo)(r),
	}
}

type snapshot struct {
	videos  map[string]domain.Video
	limits  []domain.StaffLimit
	history []domain.VideoHistory
	staff   map[string]domain.StaffMember
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		videos:  make(map[string]domain.Video, len(s.videos)),
		limits:  append([]domain.StaffLimit(nil), s.limits...),
		history: append([]domain.VideoHistory(nil), s.history...),
		staff:   make(map[string]domain.StaffMember, len(s.staff)),
	}
	for k, v := range s.videos {
		snap.videos[k] = v
	}
	for k, v := range s.staff {
		snap.staff[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.videos = snap.videos
	s.limits = snap.limits
	s.history = snap.history
	s.staff = snap.staff
}

type repos struct {
	store *Store
	inTx  bool
}

func (r *repos) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

type videoRepo repos

func (r *videoRepo) Create(_ context.Context, video *domain.Video) error {
	defer (*repos)(r).lock()()
	if video.ID == "" {
		video.ID = uuid.NewString()
	}
	if video.State == "" {
		video.State = domain.StateUnassigned
	}
	now := time.Now().UTC()
	if video.CreatedAt.IsZero() {
		video.CreatedAt = now
	}
	video.UpdatedAt = now
	r.store.videos[video.ID] = cloneVideo(*video)
	return nil
}

func (r *videoRepo) GetByID(_ context.Context, id string) (*domain.Video, error) {
	defer (*repos)(r).lock()()
	video, ok := r.store.videos[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	v := cloneVideo(video)
	return &v, nil
}

func (r *videoRepo) CountActiveByStaff(_ context.Context, staffID string, now time.Time, urgentWindow time.Duration) (domain.ActiveCounts, error) {
	defer (*repos)(r).lock()()
	var counts domain.ActiveCounts
	for _, v := range r.store.videos {
		if v.Deleted || v.AssignedStaffID == nil || *v.AssignedStaffID != staffID {
			continue
		}
		urgent := v.IsUrgent(now, urgentWindow)
		switch v.State {
		case domain.StateInProgress:
			counts.InProgress++
		case domain.StateInRevision:
			counts.InRevision++
		}
		if urgent {
			counts.Urgent++
		}
		if v.State.IsActive() || urgent {
			counts.Total++
		}
	}
	return counts, nil
}

func (r *videoRepo) CountAssignedSince(_ context.Context, staffID string, since time.Time) (int, error) {
	defer (*repos)(r).lock()()
	count := 0
	for _, v := range r.store.videos {
		if v.Deleted || v.AssignedStaffID == nil || *v.AssignedStaffID != staffID || v.AssignedAt == nil {
			continue
		}
		if !v.AssignedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *videoRepo) expired(cutoff time.Time) []domain.Video {
	var result []domain.Video
	for _, v := range r.store.videos {
		if v.Deleted || v.AssignedStaffID == nil || v.AssignedAt == nil || !v.State.IsActive() {
			continue
		}
		if v.AssignedAt.Before(cutoff) {
			result = append(result, cloneVideo(v))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].AssignedAt.Equal(*result[j].AssignedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].AssignedAt.Before(*result[j].AssignedAt)
	})
	return result
}

func (r *videoRepo) ListExpired(_ context.Context, filter repository.ExpiredFilter) ([]domain.Video, error) {
	defer (*repos)(r).lock()()
	result := r.expired(filter.Cutoff)
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r *videoRepo) CountExpired(_ context.Context, filter repository.ExpiredFilter) (int, error) {
	defer (*repos)(r).lock()()
	return len(r.expired(filter.Cutoff)), nil
}

func (r *videoRepo) CompareAndSwap(_ context.Context, change repository.VideoChange) error {
	defer (*repos)(r).lock()()
	if r.store.fault != nil {
		if err := r.store.fault("compare_and_swap", change.VideoID); err != nil {
			return err
		}
	}
	v, ok := r.store.videos[change.VideoID]
	if !ok || v.Deleted || v.State != change.ExpectedState {
		return repository.ErrConflict
	}
	if change.ExpectedAssignedAt != nil && (v.AssignedAt == nil || !v.AssignedAt.Equal(*change.ExpectedAssignedAt)) {
		return repository.ErrConflict
	}
	v.State = change.NewState
	v.AssignedStaffID = copyString(change.NewStaffID)
	v.AssignedAt = copyTime(change.NewAssignedAt)
	if change.NewUrgent != nil {
		v.UrgentFlag = *change.NewUrgent
	}
	v.UpdatedAt = time.Now().UTC()
	r.store.videos[v.ID] = v
	return nil
}

type limitRepo repos

func (r *limitRepo) Create(_ context.Context, limit *domain.StaffLimit) error {
	defer (*repos)(r).lock()()
	if limit.ID == "" {
		limit.ID = uuid.NewString()
	}
	r.store.limits = append(r.store.limits, cloneLimit(*limit))
	return nil
}

func (r *limitRepo) GetActive(_ context.Context, staffID string) (*domain.StaffLimit, error) {
	defer (*repos)(r).lock()()
	var found *domain.StaffLimit
	for i := range r.store.limits {
		l := r.store.limits[i]
		if l.StaffID != staffID || !l.Active {
			continue
		}
		if found == nil || l.CreatedAt.After(found.CreatedAt) {
			c := cloneLimit(l)
			found = &c
		}
	}
	return found, nil
}

func (r *limitRepo) DeactivateAll(_ context.Context, staffID string) (int64, error) {
	defer (*repos)(r).lock()()
	var n int64
	for i := range r.store.limits {
		if r.store.limits[i].StaffID == staffID && r.store.limits[i].Active {
			r.store.limits[i].Active = false
			n++
		}
	}
	return n, nil
}

func (r *limitRepo) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	defer (*repos)(r).lock()()
	var n int64
	for i := range r.store.limits {
		if r.store.limits[i].Active && !r.store.limits[i].LockUntil.After(now) {
			r.store.limits[i].Active = false
			n++
		}
	}
	return n, nil
}

func (r *limitRepo) ListActive(_ context.Context) ([]domain.StaffLimit, error) {
	defer (*repos)(r).lock()()
	var result []domain.StaffLimit
	for _, l := range r.store.limits {
		if l.Active {
			result = append(result, cloneLimit(l))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LockUntil.Before(result[j].LockUntil) })
	return result, nil
}

type historyRepo repos

func (r *historyRepo) Create(_ context.Context, history *domain.VideoHistory) error {
	defer (*repos)(r).lock()()
	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	r.store.history = append(r.store.history, *history)
	return nil
}

func (r *historyRepo) ListByVideo(_ context.Context, videoID string) ([]domain.VideoHistory, error) {
	defer (*repos)(r).lock()()
	var result []domain.VideoHistory
	for _, h := range r.store.history {
		if h.VideoID == videoID {
			result = append(result, h)
		}
	}
	return result, nil
}

type staffRepo repos

func (r *staffRepo) Create(_ context.Context, staff *domain.StaffMember) error {
	defer (*repos)(r).lock()()
	if staff.ID == "" {
		staff.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	staff.CreatedAt, staff.UpdatedAt = now, now
	r.store.staff[staff.ID] = *staff
	return nil
}

func (r *staffRepo) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	defer (*repos)(r).lock()()
	staff, ok := r.store.staff[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &staff, nil
}

type lockRepo repos

// LockStaff is a no-op: the transaction already holds the store mutex.
func (r *lockRepo) LockStaff(_ context.Context, _ string) error {
	return nil
}

func cloneVideo(v domain.Video) domain.Video {
	v.AssignedStaffID = copyString(v.AssignedStaffID)
	v.AssignedAt = copyTime(v.AssignedAt)
	v.DeliveryDeadline = copyTime(v.DeliveryDeadline)
	return v
}

func cloneLimit(l domain.StaffLimit) domain.StaffLimit {
	if l.MaxPerDay != nil {
		n := *l.MaxPerDay
		l.MaxPerDay = &n
	}
	return l
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

var _ repository.Transactor = (*Store)(nil)
