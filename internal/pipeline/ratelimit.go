package pipeline

import (
	"strings"
)

// rateLimited is implemented by errors that know whether the provider throttled the call.
type rateLimited interface {
	RateLimited() bool
}

var rateLimitSignatures = []string{
	"rate limit",
	"rate_limit",
	"ratelimit",
	"too many requests",
	"status 429",
	"error 429",
	"quota",
}

// IsRateLimit reports whether err describes provider-side throttling. Joined errors
// count as throttled when any of their leaves was.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if anyRateLimited(err) {
		return true
	}
	message := strings.ToLower(err.Error())
	for _, signature := range rateLimitSignatures {
		if strings.Contains(message, signature) {
			return true
		}
	}
	return false
}

func anyRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if typed, ok := err.(rateLimited); ok && typed.RateLimited() {
		return true
	}
	switch wrapped := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range wrapped.Unwrap() {
			if anyRateLimited(inner) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return anyRateLimited(wrapped.Unwrap())
	}
	return false
}
