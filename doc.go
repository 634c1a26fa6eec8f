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

// Package dispatch maps incoming HTTP requests to typed handlers.
//
// The package owns the request-dispatch pipeline between the HTTP server
// transport and application handlers: path matching, content negotiation,
// parameter binding, result conversion and response encoding. It does not
// accept sockets or parse raw HTTP; it implements http.Handler and leaves
// the transport to net/http.
//
// # Key Features
//
//   - Segment-trie path matching with typed path parameters
//   - Literal segments always win over parameter segments at the same position
//   - 404/405 distinction with an Allow header on 405 responses
//   - Accept/Content-Type negotiation with q-values and wildcards
//   - Typed argument binding from path, query, body and route defaults
//   - Result conversion from plain handler return values (status/body/header
//     responses, maps and structs as JSON, strings, raw bytes, streams)
//   - Response post-processing: Cache-Control, ETag, gzip/brotli compression
//
// # Lifecycle
//
// Routes are registered during a single-threaded configuration phase.
// Freeze ends that phase; afterwards the route tree is immutable and all
// request-time reads are lock-free. The first request freezes implicitly,
// but calling Freeze during startup surfaces configuration problems before
// traffic arrives:
//
//	r := dispatch.MustNew()
//	r.MustRegister("/users/{id:int}", []string{"GET"}, getUser)
//	if err := r.Freeze(); err != nil {
//	    log.Fatal(err)
//	}
//	http.ListenAndServe(":8080", r)
//
// # Handlers
//
// A handler receives the request context and its bound arguments and returns
// a result value that the conversion rules turn into a wire response:
//
//	func getUser(c *dispatch.Context, args dispatch.Args) (any, error) {
//	    return map[string]any{"id": args.Int("id")}, nil
//	}
//
// There is no ambient request state: everything a handler may need is passed
// explicitly through the Context argument.
package dispatch
