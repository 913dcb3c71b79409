// Package gate provides an admission-control and scheduling layer for a
// rate-limited, quota-constrained upstream analytics API shared by many
// tenants. It accepts inbound report requests, orders them by priority and
// caller role with anti-starvation aging, enforces per-tenant quotas at
// admission, paces dispatch below upstream ceilings, and absorbs upstream
// 429 rejections with per-tenant exponential backoff so one throttled
// tenant never blocks another.
//
// Gate is designed as a library, not a service. Import it, provide an
// upstream executor, and enqueue requests; callers observe queue position,
// estimated wait, and the final result.
//
// # Quick Start
//
//	g, err := gate.New(
//	    gate.WithExecutor(callGA4),
//	    gate.WithWorkerCount(5),
//	)
//	if err != nil { ... }
//	g.Start(ctx)
//
//	req, err := g.Enqueue(ctx, "tenant-1", "user-1", request.RoleOwner,
//	    "runReport", params, request.WithPriority(request.PriorityHigh))
//	result, err := g.WaitForResult(ctx, req.ID, 30*time.Second)
//
// All request IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package gate
