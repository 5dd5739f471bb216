package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/HendryAvila/archpipe/internal/arch"
	"github.com/HendryAvila/archpipe/internal/llm"
	"github.com/HendryAvila/archpipe/internal/reasoner"
	"github.com/HendryAvila/archpipe/internal/store"
)

// --- Test doubles ---

// scriptedArchitect answers with fn, counting calls.
type scriptedArchitect struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, current arch.Architecture, req string) (*arch.ArchitectureDiff, *arch.Architecture, error)
}

func (s *scriptedArchitect) Diff(ctx context.Context, current arch.Architecture, req string) (*arch.ArchitectureDiff, *arch.Architecture, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.fn(ctx, current, req)
}

// scriptedPlanner returns answers[i] on the i-th call (the last one repeats).
type scriptedPlanner struct {
	mu      sync.Mutex
	calls   int
	answers []func(ctx context.Context, d arch.ArchitectureDiff) (*arch.TaskPlan, error)
}

func (s *scriptedPlanner) Plan(ctx context.Context, d arch.ArchitectureDiff) (*arch.TaskPlan, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.mu.Unlock()
	if i >= len(s.answers) {
		i = len(s.answers) - 1
	}
	return s.answers[i](ctx, d)
}

// stubStore lets a test fail either store operation.
type stubStore struct {
	current   *arch.Architecture
	loadErr   error
	commitErr error
	commits   []arch.CommitParams
}

func (s *stubStore) CurrentOrDefault(_ context.Context, projectID string) (*arch.Architecture, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.current == nil {
		return arch.Empty(projectID), nil
	}
	return s.current.Clone(), nil
}

func (s *stubStore) Commit(_ context.Context, p arch.CommitParams) (string, error) {
	if s.commitErr != nil {
		return "", s.commitErr
	}
	s.commits = append(s.commits, p)
	return "sess-1", nil
}

// paymentsArchitect proposes the "add payments service" change.
func paymentsArchitect() *scriptedArchitect {
	return &scriptedArchitect{fn: func(_ context.Context, current arch.Architecture, _ string) (*arch.ArchitectureDiff, *arch.Architecture, error) {
		next := current.Clone()
		next.Version++
		next.Services = append(next.Services, arch.ServiceDescriptor{Name: "payments"})
		return &arch.ArchitectureDiff{Items: []arch.DiffItem{
			{ID: "D1", Description: "add payments service", AffectedService: "payments"},
		}}, next, nil
	}}
}

func coveringPlan(_ context.Context, d arch.ArchitectureDiff) (*arch.TaskPlan, error) {
	p := &arch.TaskPlan{}
	for i, it := range d.Items {
		p.Tasks = append(p.Tasks, arch.Task{
			ID:             "T" + string(rune('1'+i)),
			Title:          "Implement " + it.Description,
			Stream:         "backend",
			ArchDiffItemID: it.ID,
		})
	}
	return p, nil
}

func uncoveredPlan(_ context.Context, _ arch.ArchitectureDiff) (*arch.TaskPlan, error) {
	return &arch.TaskPlan{Tasks: []arch.Task{
		{ID: "T1", Title: "Unrelated chore", Stream: "ops", ArchDiffItemID: "D9"},
	}}, nil
}

func newTestStores(t *testing.T) (*store.ArchitectureStore, *store.AuditLog) {
	t.Helper()
	db, err := store.Open(store.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	audit := store.NewAuditLog(db)
	return store.NewArchitectureStore(db, audit), audit
}

func wantStage(t *testing.T, err error, stage Stage, sentinel error) {
	t.Helper()
	var se *StageError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v (%T), want *StageError", err, err)
	}
	if se.Stage != stage {
		t.Errorf("Stage = %s, want %s", se.Stage, stage)
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("error = %v, want wrapping %v", err, sentinel)
	}
}

// --- Happy path ---

func TestRun_AddPaymentsService(t *testing.T) {
	archStore, audit := newTestStores(t)
	planner := &scriptedPlanner{answers: []func(context.Context, arch.ArchitectureDiff) (*arch.TaskPlan, error){coveringPlan}}
	c := New(archStore, paymentsArchitect(), planner, Options{})
	ctx := context.Background()

	res, err := c.Run(ctx, "P1", "add payments service")
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.SessionID == "" {
		t.Error("SessionID is empty")
	}
	if res.Architecture.Version != 1 {
		t.Errorf("Architecture.Version = %d, want 1", res.Architecture.Version)
	}
	if res.PlanAttempts != 1 {
		t.Errorf("PlanAttempts = %d, want 1", res.PlanAttempts)
	}

	current, err := archStore.GetCurrent(ctx, "P1")
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if current.Version != 1 || current.Services[0].Name != "payments" {
		t.Errorf("current = %+v, want v1 with payments", current)
	}

	entries, err := audit.Query(ctx, "payments")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 || entries[0].SessionID != res.SessionID {
		t.Errorf("audit entries = %+v, want the new session", entries)
	}
	if entries[0].Reason != "add payments service" {
		t.Errorf("Reason = %q, want the requirement", entries[0].Reason)
	}
}

func TestRun_PlanRetrySucceeds(t *testing.T) {
	st := &stubStore{}
	planner := &scriptedPlanner{answers: []func(context.Context, arch.ArchitectureDiff) (*arch.TaskPlan, error){
		uncoveredPlan, coveringPlan,
	}}
	c := New(st, paymentsArchitect(), planner, Options{})

	res, err := c.Run(context.Background(), "P1", "add payments service")
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if planner.calls != 2 {
		t.Errorf("planner calls = %d, want 2", planner.calls)
	}
	if res.PlanAttempts != 2 {
		t.Errorf("PlanAttempts = %d, want 2", res.PlanAttempts)
	}
	if len(st.commits) != 1 {
		t.Errorf("commits = %d, want 1", len(st.commits))
	}
}

func TestRun_MalformedPlanIsRetried(t *testing.T) {
	st := &stubStore{}
	planner := &scriptedPlanner{answers: []func(context.Context, arch.ArchitectureDiff) (*arch.TaskPlan, error){
		func(context.Context, arch.ArchitectureDiff) (*arch.TaskPlan, error) {
			return nil, arch.ErrPlanGeneration
		},
		coveringPlan,
	}}
	c := New(st, paymentsArchitect(), planner, Options{})

	if _, err := c.Run(context.Background(), "P1", "add payments service"); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if planner.calls != 2 {
		t.Errorf("planner calls = %d, want 2", planner.calls)
	}
}

// --- Failures ---

func TestRun_PlanRetryThenFailLeavesVersionZero(t *testing.T) {
	archStore, audit := newTestStores(t)
	planner := &scriptedPlanner{answers: []func(context.Context, arch.ArchitectureDiff) (*arch.TaskPlan, error){uncoveredPlan}}
	c := New(archStore, paymentsArchitect(), planner, Options{})
	ctx := context.Background()

	_, err := c.Run(ctx, "P1", "add payments service")
	wantStage(t, err, StagePlanned, arch.ErrPlanGeneration)

	if planner.calls != 2 {
		t.Errorf("planner calls = %d, want 2", planner.calls)
	}
	current, err := archStore.CurrentOrDefault(ctx, "P1")
	if err != nil {
		t.Fatalf("CurrentOrDefault: %v", err)
	}
	if current.Version != 0 {
		t.Errorf("Version = %d, want 0", current.Version)
	}
	if n, _ := audit.Count(ctx); n != 0 {
		t.Errorf("audit entries = %d, want 0", n)
	}
}

func TestRun_InvalidDiff(t *testing.T) {
	tests := []struct {
		name string
		fn   func(context.Context, arch.Architecture, string) (*arch.ArchitectureDiff, *arch.Architecture, error)
	}{
		{"empty diff", func(_ context.Context, c arch.Architecture, _ string) (*arch.ArchitectureDiff, *arch.Architecture, error) {
			next := c.Clone()
			next.Version++
			return &arch.ArchitectureDiff{}, next, nil
		}},
		{"duplicate item ids", func(_ context.Context, c arch.Architecture, _ string) (*arch.ArchitectureDiff, *arch.Architecture, error) {
			next := c.Clone()
			next.Version++
			return &arch.ArchitectureDiff{Items: []arch.DiffItem{
				{ID: "D1", Description: "a", AffectedService: "x"},
				{ID: "D1", Description: "b", AffectedService: "y"},
			}}, next, nil
		}},
		{"skipped version", func(_ context.Context, c arch.Architecture, _ string) (*arch.ArchitectureDiff, *arch.Architecture, error) {
			next := c.Clone()
			next.Version += 2
			return &arch.ArchitectureDiff{Items: []arch.DiffItem{{ID: "D1", Description: "a", AffectedService: "x"}}}, next, nil
		}},
		{"other project", func(_ context.Context, c arch.Architecture, _ string) (*arch.ArchitectureDiff, *arch.Architecture, error) {
			next := c.Clone()
			next.Version++
			next.ProjectID = "P2"
			return &arch.ArchitectureDiff{Items: []arch.DiffItem{{ID: "D1", Description: "a", AffectedService: "x"}}}, next, nil
		}},
		{"missing updated architecture", func(_ context.Context, _ arch.Architecture, _ string) (*arch.ArchitectureDiff, *arch.Architecture, error) {
			return &arch.ArchitectureDiff{Items: []arch.DiffItem{{ID: "D1", Description: "a", AffectedService: "x"}}}, nil, nil
		}},
		{"reasoner says malformed", func(context.Context, arch.Architecture, string) (*arch.ArchitectureDiff, *arch.Architecture, error) {
			return nil, nil, arch.ErrDiffGeneration
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &stubStore{}
			planner := &scriptedPlanner{answers: []func(context.Context, arch.ArchitectureDiff) (*arch.TaskPlan, error){coveringPlan}}
			c := New(st, &scriptedArchitect{fn: tt.fn}, planner, Options{})

			_, err := c.Run(context.Background(), "P1", "change")
			wantStage(t, err, StageDiffed, arch.ErrDiffGeneration)
			if planner.calls != 0 {
				t.Errorf("planner calls = %d, want 0", planner.calls)
			}
			if len(st.commits) != 0 {
				t.Errorf("commits = %d, want 0", len(st.commits))
			}
		})
	}
}

func TestRun_LoadFailureIsUpstream(t *testing.T) {
	st := &stubStore{loadErr: errors.New("database is locked")}
	c := New(st, paymentsArchitect(), &scriptedPlanner{}, Options{})

	_, err := c.Run(context.Background(), "P1", "add payments service")
	wantStage(t, err, StageLoaded, arch.ErrUpstream)
}

func TestRun_ArchitectTimeout(t *testing.T) {
	tests := []struct {
		name string
		fn   func(context.Context, arch.Architecture, string) (*arch.ArchitectureDiff, *arch.Architecture, error)
	}{
		{"honors context", func(ctx context.Context, _ arch.Architecture, _ string) (*arch.ArchitectureDiff, *arch.Architecture, error) {
			<-ctx.Done()
			return nil, nil, ctx.Err()
		}},
		{"ignores context", func(context.Context, arch.Architecture, string) (*arch.ArchitectureDiff, *arch.Architecture, error) {
			time.Sleep(500 * time.Millisecond)
			return nil, nil, nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(&stubStore{}, &scriptedArchitect{fn: tt.fn}, &scriptedPlanner{}, Options{ReasonerTimeout: 20 * time.Millisecond})

			start := time.Now()
			_, err := c.Run(context.Background(), "P1", "add payments service")
			wantStage(t, err, StageDiffed, arch.ErrUpstream)
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("error = %v, want wrapping DeadlineExceeded", err)
			}
			if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
				t.Errorf("Run took %s, want the timeout to cut it short", elapsed)
			}
		})
	}
}

func TestRun_PlannerUpstreamIsNotRetried(t *testing.T) {
	planner := &scriptedPlanner{answers: []func(context.Context, arch.ArchitectureDiff) (*arch.TaskPlan, error){
		func(context.Context, arch.ArchitectureDiff) (*arch.TaskPlan, error) {
			return nil, errors.New("503 service unavailable")
		},
	}}
	c := New(&stubStore{}, paymentsArchitect(), planner, Options{})

	_, err := c.Run(context.Background(), "P1", "add payments service")
	wantStage(t, err, StagePlanned, arch.ErrUpstream)
	if planner.calls != 1 {
		t.Errorf("planner calls = %d, want 1", planner.calls)
	}
}

func TestRun_CommitConflictStaysDetectable(t *testing.T) {
	st := &stubStore{commitErr: arch.ErrVersionConflict}
	planner := &scriptedPlanner{answers: []func(context.Context, arch.ArchitectureDiff) (*arch.TaskPlan, error){coveringPlan}}
	c := New(st, paymentsArchitect(), planner, Options{})

	_, err := c.Run(context.Background(), "P1", "add payments service")
	wantStage(t, err, StageCommitted, arch.ErrCommit)
	if !errors.Is(err, arch.ErrVersionConflict) {
		t.Errorf("error = %v, want wrapping ErrVersionConflict", err)
	}
}

func TestRun_RequiresInput(t *testing.T) {
	c := New(&stubStore{}, paymentsArchitect(), &scriptedPlanner{}, Options{})

	if _, err := c.Run(context.Background(), " ", "x"); err == nil {
		t.Error("Run should reject an empty project id")
	}
	if _, err := c.Run(context.Background(), "P1", ""); err == nil {
		t.Error("Run should reject an empty requirement")
	}
}

// --- End to end with the fake language model ---

func newFakeCoordinator(t *testing.T, archStore *store.ArchitectureStore) *Coordinator {
	t.Helper()
	fake := llm.NewFakeClient()
	return New(archStore, reasoner.NewArchitect(fake), reasoner.NewTaskMaster(fake), Options{ReasonerTimeout: 5 * time.Second})
}

func TestRun_SequentialRunsAreContiguous(t *testing.T) {
	archStore, _ := newTestStores(t)
	c := newFakeCoordinator(t, archStore)
	ctx := context.Background()

	for i, req := range []string{"add payments service", "add ledger service", "harden payments service"} {
		res, err := c.Run(ctx, "P1", req)
		if err != nil {
			t.Fatalf("Run #%d error: %v", i+1, err)
		}
		if res.Architecture.Version != i+1 {
			t.Errorf("Run #%d version = %d, want %d", i+1, res.Architecture.Version, i+1)
		}
	}

	hist, err := archStore.History(ctx, "P1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	for i, a := range hist {
		if a.Version != i+1 {
			t.Errorf("History[%d].Version = %d, want %d", i, a.Version, i+1)
		}
	}
	if len(hist[2].Services) != 2 {
		t.Errorf("v3 services = %+v, want payments and ledger", hist[2].Services)
	}
}

func TestRun_ConcurrentRunsKeepVersionsContiguous(t *testing.T) {
	archStore, audit := newTestStores(t)
	c := newFakeCoordinator(t, archStore)
	ctx := context.Background()

	const runs = 4
	var wg sync.WaitGroup
	errs := make([]error, runs)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Run(ctx, "P1", "add payments service")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, arch.ErrVersionConflict):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins == 0 {
		t.Fatal("no run committed")
	}

	hist, _ := archStore.History(ctx, "P1")
	if len(hist) != wins {
		t.Errorf("versions = %d, want %d (one per winner)", len(hist), wins)
	}
	for i, a := range hist {
		if a.Version != i+1 {
			t.Errorf("History[%d].Version = %d, want %d", i, a.Version, i+1)
		}
	}
	if n, _ := audit.Count(ctx); n != wins {
		t.Errorf("audit entries = %d, want %d", n, wins)
	}
}
