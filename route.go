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
)

// HandlerFunc is the application entry point for a matched request. It
// receives the request context and the bound, typed arguments and returns
// a result value that the conversion rules turn into a response, or an
// error that the dispatcher maps at its boundary.
type HandlerFunc func(c *Context, args Args) (any, error)

// QueryBinder converts the request's query parameters (first value per
// name) into a single handler argument. A plain error is reported to the
// client as a generic 400; return a *Error to control the status.
type QueryBinder func(query map[string]string) (any, error)

// BodyBinder converts the request body into a single handler argument.
// mediaType is the negotiated request media type (the route's matched
// consumes entry) and body is the complete, size-bounded payload. The body
// is read at most once per request.
type BodyBinder func(codec Codec, mediaType string, body []byte) (any, error)

// Route is the immutable record of one registration. It is created by
// Register, owned by the router and never mutated after Freeze.
type Route struct {
	// Pattern is the registered path pattern, e.g. "/users/{id:int}".
	Pattern string

	// Methods are the HTTP methods this registration covers.
	Methods []string

	// Handler is the application callable for this route.
	Handler HandlerFunc

	// Produces is the single media type the route emits, or empty when the
	// route does not constrain the response type.
	Produces string

	// Consumes are the request media types the route accepts. Empty means
	// any (or no) request body type is accepted.
	Consumes []string

	// Defaults fill handler arguments missing from this registration's own
	// pattern, so one handler can serve several patterns of different
	// arity. A nil value expresses "optional parameter absent".
	Defaults map[string]any

	// Metadata is an opaque mapping handed to the before-request hook,
	// e.g. authorization roles. The dispatch core never interprets it.
	Metadata map[string]any

	segments        []segment
	paramParsers    map[string]ParamParser
	paramTags       map[string]string
	noContentStatus int
	cacheControl    string
	queryBinding    *namedQueryBinding
	bodyBinding     *namedBodyBinding
}

type namedQueryBinding struct {
	name string
	bind QueryBinder
}

type namedBodyBinding struct {
	name string
	bind BodyBinder
}

// segment is one parsed component of a route pattern: either a literal or
// a typed parameter.
type segment struct {
	literal string
	param   string // empty for literals
	tag     string
}

// RouteOption configures a single registration.
type RouteOption func(*Route)

// Produces declares the single media type the route emits. Requests whose
// Accept header rejects it fail negotiation with 406.
func Produces(mediaType string) RouteOption {
	return func(rt *Route) {
		rt.Produces = mediaType
	}
}

// Consumes declares the request media types the route accepts. A request
// with any other Content-Type fails negotiation with 415. A registered
// bare base type also matches structured-syntax suffixes, so
// "application/json" accepts "application/vnd.custom+json".
func Consumes(mediaTypes ...string) RouteOption {
	return func(rt *Route) {
		rt.Consumes = mediaTypes
	}
}

// Defaults supplies values for handler arguments missing from this
// registration's pattern. Typed defaults are validated against the
// parameter declarations of the whole table at freeze time.
func Defaults(defaults map[string]any) RouteOption {
	return func(rt *Route) {
		rt.Defaults = defaults
	}
}

// Metadata attaches an opaque option mapping to the route, visible to the
// before-request hook.
func Metadata(metadata map[string]any) RouteOption {
	return func(rt *Route) {
		rt.Metadata = metadata
	}
}

// NoContentStatus sets the status used when the handler returns nil.
// The status must permit an empty body; anything else fails registration.
func NoContentStatus(status int) RouteOption {
	return func(rt *Route) {
		rt.noContentStatus = status
	}
}

// CacheControl attaches Cache-Control directives to every successful
// response of the route. The header value is built once at registration.
func CacheControl(opts ...CacheControlOption) RouteOption {
	return func(rt *Route) {
		rt.cacheControl = buildCacheControl(opts...)
	}
}

// QueryBinding declares a handler argument bound from the query string.
func QueryBinding(name string, binder QueryBinder) RouteOption {
	return func(rt *Route) {
		rt.queryBinding = &namedQueryBinding{name: name, bind: binder}
	}
}

// BodyBinding declares a handler argument bound from the request body.
func BodyBinding(name string, binder BodyBinder) RouteOption {
	return func(rt *Route) {
		rt.bodyBinding = &namedBodyBinding{name: name, bind: binder}
	}
}

// JSONBody returns a BodyBinder that decodes the payload into T using the
// router's codec. Decoding failures surface as a generic 400.
func JSONBody[T any]() BodyBinder {
	return func(codec Codec, _ string, body []byte) (any, error) {
		var v T
		if err := codec.Unmarshal(body, &v); err != nil {
			return nil, BadRequest("malformed request body")
		}
		return v, nil
	}
}

// validate checks the registration-local invariants: a usable no-content
// status and defaults that do not shadow bound or path parameters.
func (rt *Route) validate() error {
	if !statusPermitsNoBody(rt.noContentStatus) {
		return fmt.Errorf("%w: %s: %d", ErrNoContentStatus, rt.Pattern, rt.noContentStatus)
	}
	for name := range rt.Defaults {
		if rt.queryBinding != nil && rt.queryBinding.name == name {
			return fmt.Errorf("%w: %s: %s (query)", ErrDefaultShadowsBinding, rt.Pattern, name)
		}
		if rt.bodyBinding != nil && rt.bodyBinding.name == name {
			return fmt.Errorf("%w: %s: %s (body)", ErrDefaultShadowsBinding, rt.Pattern, name)
		}
		if _, isParam := rt.paramTags[name]; isParam {
			return fmt.Errorf("%w: %s: %s (path)", ErrDefaultShadowsBinding, rt.Pattern, name)
		}
	}
	return nil
}

// parsePattern splits a route pattern into segments, resolving parameter
// declarations against the type registry. startMarker and endMarker default
// to "{" and "}" and are configurable on the router.
func parsePattern(pattern, startMarker, endMarker string, registry *TypeRegistry) ([]segment, map[string]ParamParser, map[string]string, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, nil, nil, fmt.Errorf("%w: %s", ErrPatternRoot, pattern)
	}
	if pattern == "/" {
		return nil, nil, nil, nil
	}

	raw := strings.Split(pattern[1:], "/")
	segments := make([]segment, 0, len(raw))
	var parsers map[string]ParamParser
	var tags map[string]string

	for _, part := range raw {
		if part == "" {
			return nil, nil, nil, fmt.Errorf("%w: %s", ErrEmptySegment, pattern)
		}
		if !strings.HasPrefix(part, startMarker) {
			segments = append(segments, segment{literal: part})
			continue
		}

		inner := part[len(startMarker):]
		if endMarker != "" {
			if !strings.HasSuffix(inner, endMarker) {
				return nil, nil, nil, fmt.Errorf("%w: %s: %s", ErrInvalidParameter, pattern, part)
			}
			inner = inner[:len(inner)-len(endMarker)]
		}
		name, tag := inner, TypeString
		if idx := strings.IndexByte(inner, ':'); idx >= 0 {
			name, tag = inner[:idx], inner[idx+1:]
		}
		if name == "" || tag == "" {
			return nil, nil, nil, fmt.Errorf("%w: %s: %s", ErrInvalidParameter, pattern, part)
		}
		if _, dup := tags[name]; dup {
			return nil, nil, nil, fmt.Errorf("%w: %s: %s", ErrDuplicateParam, pattern, name)
		}
		parser, ok := registry.Lookup(tag)
		if !ok {
			return nil, nil, nil, fmt.Errorf("%w: %s: %s", ErrUnknownParamType, pattern, tag)
		}
		if parsers == nil {
			parsers = make(map[string]ParamParser, 4)
			tags = make(map[string]string, 4)
		}
		parsers[name] = parser
		tags[name] = tag
		segments = append(segments, segment{param: name, tag: tag})
	}

	return segments, parsers, tags, nil
}

// methodsValid reports basic sanity of the methods set.
func methodsValid(methods []string) bool {
	if len(methods) == 0 {
		return false
	}
	for _, m := range methods {
		if m == "" || m != strings.ToUpper(m) {
			return false
		}
	}
	return true
}
