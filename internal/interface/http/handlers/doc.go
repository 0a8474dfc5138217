// Package handlers contains reusable HTTP pieces for the progression API.
//
// This package provides:
//   - Composite health checks run in parallel
//   - API key authentication and request logging middleware
//   - The signed activity webhook used by the learning platform
//
// # Health Checks
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0", nil)
//	checker.AddCheck("store", handlers.NewPingCheck(store))
//	checker.AddOptionalCheck("redis", handlers.NewPingCheck(cache))
//	checker.AddOptionalCheck("webhook", handlers.NewBreakerCheck(sink.Breaker()))
//
//	status := checker.Check(ctx)
//
// Optional checks mark the service degraded without taking it out of
// rotation: the leaderboard falls back to the store when Redis is down.
//
// # Activity Webhook
//
// The platform POSTs JSON events signed with HMAC-SHA256 over the raw body:
//
//	{"kind":"xp","user_id":"u1","amount":25,"reason":"quiz_completed"}
//	{"kind":"progress","user_id":"u1","requirement_type":"login","amount":1}
package handlers
