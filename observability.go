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
	"context"
	"net/http"
)

// ObservabilityRecorder receives request lifecycle hooks for metrics,
// tracing and access logging. The dispatcher itself stays observability
// agnostic; see the observe package for an OpenTelemetry implementation.
//
// Lifecycle:
//  1. OnRequestStart runs before routing. The returned context replaces
//     the request context (trace propagation works even for excluded
//     requests); the returned state token is opaque to the dispatcher.
//  2. The request is dispatched.
//  3. OnRequestEnd runs after the response envelope has been written,
//     but only when state is non-nil. Returning a nil state from
//     OnRequestStart therefore excludes a request from recording.
//
// routePattern is the matched route's registered pattern (e.g.
// "/users/{id:int}"), or empty when no route matched. Implementations
// should key metrics on the pattern, not the raw path, to keep
// cardinality bounded.
//
// Thread safety: all methods must be safe for concurrent use.
type ObservabilityRecorder interface {
	OnRequestStart(ctx context.Context, req *http.Request) (context.Context, any)
	OnRequestEnd(ctx context.Context, state any, status int, size int64, routePattern string)
}
