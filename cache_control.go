// Copyright 2026 The Dispatchkit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dispatch

import (
	"fmt"
	"strings"
	"time"
)

// CacheControlOption defines functional options for Cache-Control header
// configuration on a route.
type CacheControlOption func(*cacheControlConfig)

// cacheControlConfig holds the configuration for Cache-Control directives.
type cacheControlConfig struct {
	public               bool
	private              bool
	noStore              bool
	noCache              bool
	maxAge               time.Duration
	staleWhileRevalidate time.Duration
	staleIfError         time.Duration
}

// Public sets the public directive, allowing shared caches to cache the
// response.
func Public() CacheControlOption {
	return func(cfg *cacheControlConfig) {
		cfg.public = true
	}
}

// Private sets the private directive, preventing shared caches from caching
// the response.
func Private() CacheControlOption {
	return func(cfg *cacheControlConfig) {
		cfg.private = true
	}
}

// NoStore sets the no-store directive.
func NoStore() CacheControlOption {
	return func(cfg *cacheControlConfig) {
		cfg.noStore = true
	}
}

// NoCache sets the no-cache directive, requiring validation before a cached
// response may be used.
func NoCache() CacheControlOption {
	return func(cfg *cacheControlConfig) {
		cfg.noCache = true
	}
}

// MaxAge sets the max-age directive in seconds.
func MaxAge(duration time.Duration) CacheControlOption {
	return func(cfg *cacheControlConfig) {
		if duration > 0 {
			cfg.maxAge = duration
		}
	}
}

// StaleWhileRevalidate sets the stale-while-revalidate directive (RFC 5861).
func StaleWhileRevalidate(duration time.Duration) CacheControlOption {
	return func(cfg *cacheControlConfig) {
		if duration > 0 {
			cfg.staleWhileRevalidate = duration
		}
	}
}

// StaleIfError sets the stale-if-error directive.
func StaleIfError(duration time.Duration) CacheControlOption {
	return func(cfg *cacheControlConfig) {
		if duration > 0 {
			cfg.staleIfError = duration
		}
	}
}

// buildCacheControl builds a Cache-Control header value from the options.
// It runs once per registration, not per request.
func buildCacheControl(opts ...CacheControlOption) string {
	cfg := &cacheControlConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	parts := make([]string, 0, 7)
	if cfg.public {
		parts = append(parts, "public")
	}
	if cfg.private {
		parts = append(parts, "private")
	}
	if cfg.noStore {
		parts = append(parts, "no-store")
	}
	if cfg.noCache {
		parts = append(parts, "no-cache")
	}
	if cfg.maxAge > 0 {
		parts = append(parts, fmt.Sprintf("max-age=%d", int(cfg.maxAge.Seconds())))
	}
	if cfg.staleWhileRevalidate > 0 {
		parts = append(parts, fmt.Sprintf("stale-while-revalidate=%d", int(cfg.staleWhileRevalidate.Seconds())))
	}
	if cfg.staleIfError > 0 {
		parts = append(parts, fmt.Sprintf("stale-if-error=%d", int(cfg.staleIfError.Seconds())))
	}

	return strings.Join(parts, ", ")
}
