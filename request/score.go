package request

import "time"

// Score returns the effective priority score of a request at the given
// instant:
//
//	score = base_priority + role_bonus + min(agingRate * waited_seconds, agingCap)
//
// agingRate is in priority points per second of wait; agingCap bounds the
// aging bonus so an old low-priority request can never permanently outrank a
// fresh request from the highest priority tier. Score is a pure function of
// its inputs — the dispatch path and the position-query path call it
// identically, so queue positions always agree with actual dispatch order.
func Score(r *Request, now time.Time, agingRate float64, agingCap int) float64 {
	waited := now.Sub(r.EnqueuedAt).Seconds()
	if waited < 0 {
		waited = 0
	}

	aging := agingRate * waited
	if aging > float64(agingCap) {
		aging = float64(agingCap)
	}

	return float64(r.BasePriority+r.Role.Bonus()) + aging
}

// Less reports whether a should be dispatched before b at the given instant.
// Order: higher effective score first; ties broken by higher role bonus,
// then earlier EnqueuedAt (FIFO), then request ID for determinism.
func Less(a, b *Request, now time.Time, agingRate float64, agingCap int) bool {
	sa, sb := Score(a, now, agingRate, agingCap), Score(b, now, agingRate, agingCap)
	if sa != sb {
		return sa > sb
	}
	if ba, bb := a.Role.Bonus(), b.Role.Bonus(); ba != bb {
		return ba > bb
	}
	if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	}
	return a.ID.String() < b.ID.String()
}
