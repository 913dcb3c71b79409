package request

import (
	"testing"
	"time"

	"github.com/MaherFayad/ga-gate/id"
)

const (
	testAgingRate = 1.0 / 30 // one point per 30s of wait
	testAgingCap  = 20
)

func newTestRequest(tenant string, role Role, priority int, enqueuedAt time.Time) *Request {
	return &Request{
		ID:           id.NewRequestID(),
		TenantID:     tenant,
		UserID:       "u1",
		Role:         role,
		Endpoint:     "runReport",
		BasePriority: priority,
		State:        StatePending,
		EnqueuedAt:   enqueuedAt,
	}
}

// ---------------------------------------------------------------------------
// Score
// ---------------------------------------------------------------------------

func TestScore_RoleBonus(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		role Role
		want float64
	}{
		{RoleOwner, 65},
		{RoleAdmin, 60},
		{RoleMember, 50},
		{RoleViewer, 40},
	}
	for _, tt := range tests {
		r := newTestRequest("t1", tt.role, PriorityNormal, now)
		if got := Score(r, now, testAgingRate, testAgingCap); got != tt.want {
			t.Fatalf("Score(%s) = %v, want %v", tt.role, got, tt.want)
		}
	}
}

func TestScore_AgingAccrues(t *testing.T) {
	now := time.Now().UTC()
	r := newTestRequest("t1", RoleMember, PriorityNormal, now.Add(-60*time.Second))

	// 60s waited at 1 point per 30s = +2.
	if got := Score(r, now, testAgingRate, testAgingCap); got != 52 {
		t.Fatalf("Score = %v, want 52", got)
	}
}

func TestScore_AgingCapped(t *testing.T) {
	now := time.Now().UTC()
	r := newTestRequest("t1", RoleMember, PriorityLow, now.Add(-24*time.Hour))

	// A day of waiting still only adds the cap.
	if got := Score(r, now, testAgingRate, testAgingCap); got != float64(PriorityLow+testAgingCap) {
		t.Fatalf("Score = %v, want %v", got, PriorityLow+testAgingCap)
	}
}

func TestScore_CapKeepsCriticalAhead(t *testing.T) {
	now := time.Now().UTC()
	old := newTestRequest("t1", RoleMember, PriorityNormal, now.Add(-2*time.Hour))
	fresh := newTestRequest("t1", RoleMember, PriorityCritical, now)

	if !Less(fresh, old, now, testAgingRate, testAgingCap) {
		t.Fatal("fresh critical request must outrank a fully aged normal request")
	}
}

func TestScore_FutureEnqueueClamped(t *testing.T) {
	now := time.Now().UTC()
	r := newTestRequest("t1", RoleMember, PriorityNormal, now.Add(time.Minute))

	if got := Score(r, now, testAgingRate, testAgingCap); got != 50 {
		t.Fatalf("Score = %v, want 50 (no negative aging)", got)
	}
}

// ---------------------------------------------------------------------------
// Less (dispatch ordering)
// ---------------------------------------------------------------------------

func TestLess_OwnerBeforeMember(t *testing.T) {
	now := time.Now().UTC()
	owner := newTestRequest("t1", RoleOwner, PriorityNormal, now)
	member := newTestRequest("t1", RoleMember, PriorityNormal, now)

	if !Less(owner, member, now, testAgingRate, testAgingCap) {
		t.Fatal("owner must rank ahead of member at equal base priority")
	}
	if Less(member, owner, now, testAgingRate, testAgingCap) {
		t.Fatal("ordering must be asymmetric")
	}
}

func TestLess_FIFOWithinEqualScore(t *testing.T) {
	now := time.Now().UTC()
	first := newTestRequest("t1", RoleMember, PriorityNormal, now.Add(-2*time.Second))
	second := newTestRequest("t1", RoleMember, PriorityNormal, now.Add(-2*time.Second+time.Millisecond))

	// Sub-aging-resolution arrival gap: same score, earlier EnqueuedAt wins.
	if !Less(first, second, now, 0, testAgingCap) {
		t.Fatal("earlier arrival must rank first among equal scores")
	}
}

func TestLess_RoleBreaksScoreTie(t *testing.T) {
	now := time.Now().UTC()
	// Admin at priority 50 vs member at priority 60: both score 60.
	admin := newTestRequest("t1", RoleAdmin, 50, now)
	member := newTestRequest("t1", RoleMember, 60, now)

	if !Less(admin, member, now, testAgingRate, testAgingCap) {
		t.Fatal("equal score: higher role bonus must rank first")
	}
}

func TestLess_IDBreaksFullTie(t *testing.T) {
	now := time.Now().UTC()
	a := newTestRequest("t1", RoleMember, PriorityNormal, now)
	b := newTestRequest("t1", RoleMember, PriorityNormal, now)

	// Identical score, role, and arrival: ID ordering decides, deterministically.
	want := a.ID.String() < b.ID.String()
	if got := Less(a, b, now, testAgingRate, testAgingCap); got != want {
		t.Fatalf("ID tie-break: got %v, want %v", got, want)
	}
	if Less(a, b, now, testAgingRate, testAgingCap) == Less(b, a, now, testAgingRate, testAgingCap) {
		t.Fatal("tie-break must be a strict order")
	}
}

func TestLess_AgingOvertakesLowerPriority(t *testing.T) {
	now := time.Now().UTC()
	// A request 5 points below, waiting 10 minutes, gains the full cap (20)
	// and overtakes a fresh higher-priority request.
	aged := newTestRequest("t1", RoleMember, 45, now.Add(-10*time.Minute))
	fresh := newTestRequest("t1", RoleMember, PriorityNormal, now)

	if !Less(aged, fresh, now, testAgingRate, testAgingCap) {
		t.Fatal("aged request must overtake fresh request within the cap")
	}
}

// ---------------------------------------------------------------------------
// Role
// ---------------------------------------------------------------------------

func TestRole_Valid(t *testing.T) {
	for _, r := range []Role{RoleOwner, RoleAdmin, RoleMember, RoleViewer} {
		if !r.Valid() {
			t.Fatalf("role %q should be valid", r)
		}
	}
	if Role("superuser").Valid() {
		t.Fatal("unknown role should be invalid")
	}
}

func TestRole_UnknownBonusIsZero(t *testing.T) {
	if Role("intern").Bonus() != 0 {
		t.Fatal("unknown role must degrade to the member bonus")
	}
}

func TestState_Terminal(t *testing.T) {
	for _, s := range []State{StatePending, StateRunning, StateDeferred} {
		if s.Terminal() {
			t.Fatalf("state %q must not be terminal", s)
		}
	}
	for _, s := range []State{StateSucceeded, StateFailed} {
		if !s.Terminal() {
			t.Fatalf("state %q must be terminal", s)
		}
	}
}
