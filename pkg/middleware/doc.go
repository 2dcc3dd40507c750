// Package middleware provides HTTP middleware for rate limiting and bearer authentication.
//
// # Overview
//
// Every request passes the rate limiter before routing. Protected routes then require a
// bearer token, and routes that need the caller's identity resolve it into an *auth.User.
//
// # Rate Limiting
//
// TokenBucket: one in-process bucket shared by every request
//
//	bucket := middleware.NewTokenBucket(&middleware.TokenBucketConfig{Capacity: 10, RefillRate: 1})
//	router.Use(middleware.NewRateLimitMiddleware(bucket).Handler)
//
// The bucket admits bursts up to Capacity. Refill is floor(elapsed * RefillRate) whole
// tokens per call, so sub-token refill is dropped rather than carried over.
//
// DistributedTokenBucket: the same algorithm with state in Redis, for several instances
//
//	bucket := middleware.NewDistributedTokenBucket(redisClient, cfg, "authsvc:ratelimit")
//
// Rejections return 429 with {"error":"rate limit exceeded"}. Redis failures fail open
// unless WithFailOpen(false) is set.
//
// # Authentication
//
//	router.Handle("/logout", middleware.RequireBearer(logout))
//	router.Handle("/me", middleware.RequireBearer(middleware.ResolveUser(svc)(me)))
//
// RequireBearer only checks the header shape. Token verification stays with the account
// service so each operation reports its own token failure kind.
package middleware
