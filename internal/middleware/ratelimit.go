package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// RateLimit allows limit requests per window for each caller. Callers are
// identified by their session when AuthSession ran first, otherwise by IP.
// Windows are fixed and expire with their cache entry.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	buckets := cache.New(per, 2*per)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			key := rateLimitKey(r)
			count := hit(buckets, key, per)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			if count > limit {
				retry := 1
				if _, until, ok := buckets.GetWithExpiration(key); ok {
					retry = int(math.Ceil(time.Until(until).Seconds()))
					if retry < 1 {
						retry = 1
					}
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limit-count))
			next.ServeHTTP(w, r)
		})
	}
}

// hit counts one request against key and returns the count in the current window.
func hit(buckets *cache.Cache, key string, per time.Duration) int {
	if err := buckets.Add(key, 1, per); err == nil {
		return 1
	}
	count, err := buckets.IncrementInt(key, 1)
	if err != nil {
		// The window expired between Add and IncrementInt.
		buckets.Set(key, 1, per)
		return 1
	}
	return count
}

func rateLimitKey(r *http.Request) string {
	if id := SessionIDFromContext(r.Context()); id != "" {
		return "session:" + id
	}
	return "ip:" + clientIPForRateLimit(r)
}

func clientIPForRateLimit(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}
