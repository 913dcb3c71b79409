package memory

import (
	"context"
	"testing"
	"time"

	"github.com/MaherFayad/ga-gate/id"
	"github.com/MaherFayad/ga-gate/request"
)

func newRequest(t *testing.T, tenant string, role request.Role, prio int, at time.Time) *request.Request {
	t.Helper()
	return &request.Request{
		ID:           id.NewRequestID(),
		TenantID:     tenant,
		UserID:       "u1",
		Role:         role,
		Endpoint:     "runReport",
		BasePriority: prio,
		State:        request.StatePending,
		MaxAttempts:  5,
		EnqueuedAt:   at,
	}
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

func TestStore_EnqueueAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	r := newRequest(t, "acme", request.RoleMember, request.PriorityNormal, now)
	if err := s.Enqueue(ctx, r); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	got, err := s.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.TenantID != "acme" || got.State != request.StatePending {
		t.Fatalf("unexpected request: %+v", got)
	}

	// Mutating the returned copy must not affect the stored request.
	got.TenantID = "mutated"
	again, _ := s.Get(ctx, r.ID)
	if again.TenantID != "acme" {
		t.Fatal("Get must return a copy")
	}
}

func TestStore_Enqueue_Duplicate(t *testing.T) {
	s := New()
	ctx := context.Background()

	r := newRequest(t, "acme", request.RoleMember, request.PriorityNormal, time.Now())
	if err := s.Enqueue(ctx, r); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := s.Enqueue(ctx, r); err != request.ErrExists {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestStore_Get_NotFound(t *testing.T) {
	s := New()
	if _, err := s.Get(context.Background(), id.NewRequestID()); err != request.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_Update_TerminalIsFinal(t *testing.T) {
	s := New()
	ctx := context.Background()

	r := newRequest(t, "acme", request.RoleMember, request.PriorityNormal, time.Now())
	s.Enqueue(ctx, r)

	done := time.Now()
	r.State = request.StateSucceeded
	r.CompletedAt = &done
	if err := s.Update(ctx, r); err != nil {
		t.Fatalf("Update to succeeded failed: %v", err)
	}

	r.State = request.StatePending
	if err := s.Update(ctx, r); err != request.ErrInvalidState {
		t.Fatalf("expected ErrInvalidState reopening a terminal request, got %v", err)
	}
}

func TestStore_Done_ClosesOnTerminal(t *testing.T) {
	s := New()
	ctx := context.Background()

	r := newRequest(t, "acme", request.RoleMember, request.PriorityNormal, time.Now())
	s.Enqueue(ctx, r)

	ch, err := s.Done(r.ID)
	if err != nil {
		t.Fatalf("Done failed: %v", err)
	}
	select {
	case <-ch:
		t.Fatal("done channel must stay open while pending")
	default:
	}

	done := time.Now()
	r.State = request.StateFailed
	r.CompletedAt = &done
	if err := s.Update(ctx, r); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("done channel must close on terminal transition")
	}
}

// ---------------------------------------------------------------------------
// Claim / Release
// ---------------------------------------------------------------------------

func TestStore_Claim_HighestScoreFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	low := newRequest(t, "acme", request.RoleMember, request.PriorityLow, now)
	high := newRequest(t, "acme", request.RoleMember, request.PriorityHigh, now)
	s.Enqueue(ctx, low)
	s.Enqueue(ctx, high)

	claimed, err := s.Claim(ctx, now, nil)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if claimed.ID != high.ID {
		t.Fatalf("expected high-priority request, got %s", claimed.ID)
	}
	if claimed.State != request.StateRunning || claimed.StartedAt == nil {
		t.Fatalf("claimed request should be running with StartedAt set: %+v", claimed)
	}

	// Claim must not touch AttemptCount; the executor owns it.
	if claimed.AttemptCount != 0 {
		t.Fatalf("AttemptCount changed by Claim: %d", claimed.AttemptCount)
	}
}

func TestStore_Claim_RoleBonusOrders(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	member := newRequest(t, "acme", request.RoleMember, request.PriorityNormal, now)
	owner := newRequest(t, "acme", request.RoleOwner, request.PriorityNormal, now)
	s.Enqueue(ctx, member)
	s.Enqueue(ctx, owner)

	claimed, err := s.Claim(ctx, now, nil)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if claimed.ID != owner.ID {
		t.Fatal("owner-submitted request should be claimed before member's")
	}
}

func TestStore_Claim_EligibilityFilter(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	blocked := newRequest(t, "throttled", request.RoleOwner, request.PriorityCritical, now)
	ok := newRequest(t, "acme", request.RoleViewer, request.PriorityLow, now)
	s.Enqueue(ctx, blocked)
	s.Enqueue(ctx, ok)

	claimed, err := s.Claim(ctx, now, func(r *request.Request) bool {
		return r.TenantID != "throttled"
	})
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if claimed.ID != ok.ID {
		t.Fatal("claim must skip ineligible tenants even at higher score")
	}
}

func TestStore_Claim_NoneEligible(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	r := newRequest(t, "acme", request.RoleMember, request.PriorityNormal, now)
	s.Enqueue(ctx, r)

	if _, err := s.Claim(ctx, now, func(*request.Request) bool { return false }); err != request.ErrNoneEligible {
		t.Fatalf("expected ErrNoneEligible, got %v", err)
	}
}

func TestStore_Release_RequeuesRunning(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	r := newRequest(t, "acme", request.RoleMember, request.PriorityNormal, now)
	s.Enqueue(ctx, r)

	claimed, err := s.Claim(ctx, now, nil)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := s.Release(ctx, claimed.ID); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	got, _ := s.Get(ctx, claimed.ID)
	if got.State != request.StatePending || got.StartedAt != nil {
		t.Fatalf("released request should be pending again: %+v", got)
	}

	// Claimable again.
	if _, err := s.Claim(ctx, now, nil); err != nil {
		t.Fatalf("re-Claim failed: %v", err)
	}
}

func TestStore_Release_NotRunning(t *testing.T) {
	s := New()
	ctx := context.Background()

	r := newRequest(t, "acme", request.RoleMember, request.PriorityNormal, time.Now())
	s.Enqueue(ctx, r)

	if err := s.Release(ctx, r.ID); err != request.ErrInvalidState {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Position / counts
// ---------------------------------------------------------------------------

func TestStore_Position_PerTenant(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	// Other tenant's traffic must not affect acme's positions.
	for range 3 {
		s.Enqueue(ctx, newRequest(t, "globex", request.RoleOwner, request.PriorityCritical, now))
	}

	first := newRequest(t, "acme", request.RoleOwner, request.PriorityNormal, now)
	second := newRequest(t, "acme", request.RoleMember, request.PriorityNormal, now)
	s.Enqueue(ctx, first)
	s.Enqueue(ctx, second)

	if pos, err := s.Position(ctx, first.ID, now); err != nil || pos != 1 {
		t.Fatalf("first position = %d, %v; want 1", pos, err)
	}
	if pos, err := s.Position(ctx, second.ID, now); err != nil || pos != 2 {
		t.Fatalf("second position = %d, %v; want 2", pos, err)
	}
}

func TestStore_Position_TerminalNotFound(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	r := newRequest(t, "acme", request.RoleMember, request.PriorityNormal, now)
	s.Enqueue(ctx, r)

	done := time.Now()
	r.State = request.StateSucceeded
	r.CompletedAt = &done
	s.Update(ctx, r)

	if _, err := s.Position(ctx, r.ID, now); err != request.ErrNotFound {
		t.Fatalf("expected ErrNotFound for terminal request, got %v", err)
	}
}

func TestStore_Counts(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	a := newRequest(t, "acme", request.RoleMember, request.PriorityNormal, now)
	b := newRequest(t, "acme", request.RoleMember, request.PriorityNormal, now)
	c := newRequest(t, "globex", request.RoleMember, request.PriorityNormal, now)
	s.Enqueue(ctx, a)
	s.Enqueue(ctx, b)
	s.Enqueue(ctx, c)

	if _, err := s.Claim(ctx, now, nil); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	if n, _ := s.CountQueued(ctx); n != 2 {
		t.Fatalf("CountQueued = %d, want 2", n)
	}
	if n, _ := s.CountActive(ctx, "acme"); n != 2 {
		t.Fatalf("CountActive(acme) = %d, want 2", n)
	}

	counts, _ := s.Counts(ctx)
	if counts[request.StateRunning] != 1 || counts[request.StatePending] != 2 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

// ---------------------------------------------------------------------------
// Eviction
// ---------------------------------------------------------------------------

func TestStore_Evict_TerminalOnly(t *testing.T) {
	s := New()
	ctx := context.Background()

	r := newRequest(t, "acme", request.RoleMember, request.PriorityNormal, time.Now())
	s.Enqueue(ctx, r)

	if err := s.Evict(ctx, r.ID); err != request.ErrInvalidState {
		t.Fatalf("expected ErrInvalidState evicting a pending request, got %v", err)
	}

	done := time.Now()
	r.State = request.StateSucceeded
	r.CompletedAt = &done
	s.Update(ctx, r)

	if err := s.Evict(ctx, r.ID); err != nil {
		t.Fatalf("Evict failed: %v", err)
	}
	if _, err := s.Get(ctx, r.ID); err != request.ErrNotFound {
		t.Fatalf("expected ErrNotFound after eviction, got %v", err)
	}
}

func TestStore_SweepExpired(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	old := newRequest(t, "acme", request.RoleMember, request.PriorityNormal, base)
	fresh := newRequest(t, "acme", request.RoleMember, request.PriorityNormal, base)
	pending := newRequest(t, "acme", request.RoleMember, request.PriorityNormal, base)
	s.Enqueue(ctx, old)
	s.Enqueue(ctx, fresh)
	s.Enqueue(ctx, pending)

	oldDone := base.Add(time.Minute)
	old.State = request.StateSucceeded
	old.CompletedAt = &oldDone
	s.Update(ctx, old)

	freshDone := base.Add(20 * time.Minute)
	fresh.State = request.StateFailed
	fresh.CompletedAt = &freshDone
	s.Update(ctx, fresh)

	evicted, err := s.SweepExpired(ctx, base.Add(20*time.Minute), 15*time.Minute)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if len(evicted) != 1 || evicted[0] != old.ID {
		t.Fatalf("expected only the old request evicted, got %v", evicted)
	}

	if _, err := s.Get(ctx, fresh.ID); err != nil {
		t.Fatal("fresh terminal request must survive the sweep")
	}
	if _, err := s.Get(ctx, pending.ID); err != nil {
		t.Fatal("pending request must survive the sweep")
	}
}
