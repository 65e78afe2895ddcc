// Package middleware holds HTTP middleware shared by the luserve servers.
// RateLimiter throttles clients with one token bucket per client address.
package middleware
