package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/video-assignment-service/internal/config"
	"github.com/spec-kit/video-assignment-service/internal/domain"
	"github.com/spec-kit/video-assignment-service/internal/events"
	"github.com/spec-kit/video-assignment-service/internal/repository/memory"
)

type fixture struct {
	store    *memory.Store
	workload *WorkloadService
	limits   *StaffLimitService
	assign   *AssignmentService
	reclaim  *ReclaimService
	events   *eventLog
	now      time.Time
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) record(_ context.Context, e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) ofType(t events.EventType) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func testAssignmentConfig() config.AssignmentConfig {
	return config.AssignmentConfig{
		Timeout:       15 * time.Minute,
		MaxConcurrent: 3,
		UrgentWindow:  24 * time.Hour,
		QuotaLocation: time.UTC,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	stores := store.Stores()
	cfg := testAssignmentConfig()

	dispatcher := events.NewInMemoryDispatcher()
	log := &eventLog{}
	for _, et := range []events.EventType{
		events.EventVideoAssigned,
		events.EventVideoUnassigned,
		events.EventVideoReclaimed,
		events.EventVideoStatusChanged,
		events.EventStaffLimitSet,
		events.EventStaffLimitRemoved,
	} {
		dispatcher.Subscribe(et, log.record)
	}

	workload := NewWorkloadService(stores.Videos, cfg)
	limits := NewStaffLimitService(StaffLimitDependencies{
		LimitRepo:  stores.Limits,
		Transactor: store,
		Dispatcher: dispatcher,
		Config:     cfg,
	})
	assign := NewAssignmentService(AssignmentDependencies{
		Stores:     stores,
		Transactor: store,
		Workload:   workload,
		Limits:     limits,
		Dispatcher: dispatcher,
	})
	reclaim := NewReclaimService(ReclaimDependencies{
		VideoRepo:  stores.Videos,
		Transactor: store,
		Limits:     limits,
		Dispatcher: dispatcher,
		Assignment: cfg,
		Scheduler:  config.SchedulerConfig{BatchSize: 100},
	})

	return &fixture{
		store:    store,
		workload: workload,
		limits:   limits,
		assign:   assign,
		reclaim:  reclaim,
		events:   log,
		now:      time.Date(2026, 6, 10, 14, 0, 0, 0, time.UTC),
	}
}

// seed stores a video. A non-empty staffID marks it assigned at assignedAt.
func (f *fixture) seed(t *testing.T, id string, state domain.LifecycleState, staffID string, assignedAt time.Time) {
	t.Helper()
	video := &domain.Video{ID: id, Title: id, State: state}
	if staffID != "" {
		s, at := staffID, assignedAt
		video.AssignedStaffID = &s
		video.AssignedAt = &at
	}
	require.NoError(t, f.store.Stores().Videos.Create(context.Background(), video))
}

func (f *fixture) video(t *testing.T, id string) *domain.Video {
	t.Helper()
	v, err := f.store.Stores().Videos.GetByID(context.Background(), id)
	require.NoError(t, err)
	return v
}

func admin() domain.Actor {
	return domain.StaffActor("admin-1")
}
