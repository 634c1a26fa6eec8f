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
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
)

// BeforeRequestFunc runs after route match and before binding. A non-nil
// result short-circuits the handler and is converted like a handler
// result; a non-nil error short-circuits through the error path.
type BeforeRequestFunc func(rt *Route, c *Context) (any, error)

// AfterRequestFunc runs after result conversion and encoding, with the
// final status and still-mutable response headers, before anything is
// written to the client.
type AfterRequestFunc func(status int, header http.Header, c *Context)

// ErrorHandlerFunc maps an error escaping dispatch to a result value,
// which is then converted like a handler result.
type ErrorHandlerFunc func(c *Context, err error) any

// Router matches requests against a segment trie and runs the dispatch
// pipeline: negotiation, binding, handler, result conversion, encoding.
//
// A Router has two phases. During configuration (single goroutine) routes
// and parameter types are registered; Freeze validates the table and
// switches the router to serving, after which all internal state is
// read-only and ServeHTTP is safe for unlimited concurrency. Serving a
// request before an explicit Freeze freezes implicitly.
type Router struct {
	root     *node
	registry *TypeRegistry
	routes   []*Route

	frozen     atomic.Bool
	freezeOnce sync.Once
	freezeErr  error

	codec                  Codec
	logger                 *slog.Logger
	maxContentLength       int64
	defaultTextContentType string
	paramStart             string
	paramEnd               string
	defaultMetadata        map[string]any
	defaultRouteOptions    []RouteOption
	defaultNoContentStatus int
	converters             []resultConverter

	beforeRequest BeforeRequestFunc
	afterRequest  AfterRequestFunc
	errorHandler  ErrorHandlerFunc
	observability ObservabilityRecorder

	etagEnabled       bool
	compressEnabled   bool
	compressMinSize   int
	compressibleTypes map[string]bool
	gzipLevel         int
	brotliLevel       int
	gzipPool          *sync.Pool
	brotliPool        *sync.Pool

	signedInts        bool
	looseBools        bool
	pendingParamTypes []pendingParamType
}

type pendingParamType struct {
	tag    string
	parser ParamParser
}

// New creates a router with the given options applied. Configuration
// errors (bad compression levels, conflicting parameter type tags) are
// reported here rather than deferred to request time.
func New(opts ...Option) (*Router, error) {
	r := &Router{
		root:                   &node{},
		codec:                  jsonCodec{},
		logger:                 slog.New(slog.DiscardHandler),
		maxContentLength:       10 << 20,
		defaultTextContentType: "text/plain; charset=utf-8",
		paramStart:             "{",
		paramEnd:               "}",
		defaultNoContentStatus: http.StatusNoContent,
		etagEnabled:            true,
		compressEnabled:        true,
		compressMinSize:        1 << 10,
		compressibleTypes:      map[string]bool{"application/json": true},
		gzipLevel:              gzip.BestSpeed,
		brotliLevel:            4,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.codec == nil {
		return nil, errors.New("dispatch: nil codec")
	}
	if r.logger == nil {
		return nil, errors.New("dispatch: nil logger")
	}
	if r.maxContentLength < 0 {
		return nil, fmt.Errorf("dispatch: negative max content length %d", r.maxContentLength)
	}
	if r.paramStart == "" {
		return nil, errors.New("dispatch: empty parameter start marker")
	}
	if !statusPermitsNoBody(r.defaultNoContentStatus) {
		return nil, fmt.Errorf("%w: %d", ErrNoContentStatus, r.defaultNoContentStatus)
	}
	if r.gzipLevel < gzip.HuffmanOnly || r.gzipLevel > gzip.BestCompression {
		return nil, fmt.Errorf("dispatch: invalid gzip level %d", r.gzipLevel)
	}
	if r.brotliLevel < 0 || r.brotliLevel > 11 {
		return nil, fmt.Errorf("dispatch: invalid brotli level %d", r.brotliLevel)
	}

	r.registry = NewTypeRegistry()
	if r.signedInts {
		r.registry.parsers[TypeInt] = intParser{signed: true}
	}
	if r.looseBools {
		r.registry.parsers[TypeBool] = boolParser{loose: true}
	}
	for _, p := range r.pendingParamTypes {
		if err := r.registry.Register(p.tag, p.parser); err != nil {
			return nil, err
		}
	}
	r.pendingParamTypes = nil

	r.gzipPool = newGzipPool(r.gzipLevel)
	r.brotliPool = newBrotliPool(r.brotliLevel)
	return r, nil
}

// MustNew is like New but panics on configuration errors. Intended for
// static setup where the options are known good.
func MustNew(opts ...Option) *Router {
	r, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// Register adds a route for the given pattern, methods and handler.
// Registration is rejected after Freeze, for duplicate (method, pattern)
// pairs, for parameter declarations conflicting with an already
// registered sibling, and for invalid route options.
func (r *Router) Register(pattern string, methods []string, handler HandlerFunc, opts ...RouteOption) error {
	if r.frozen.Load() {
		return fmt.Errorf("%w: %s", ErrFrozen, pattern)
	}
	if !methodsValid(methods) {
		return fmt.Errorf("%w: %s", ErrNoMethods, pattern)
	}
	if handler == nil {
		return fmt.Errorf("%w: %s", ErrNilHandler, pattern)
	}

	segments, parsers, tags, err := parsePattern(pattern, r.paramStart, r.paramEnd, r.registry)
	if err != nil {
		return err
	}

	rt := &Route{
		Pattern:         pattern,
		Methods:         slices.Clone(methods),
		Handler:         handler,
		Metadata:        r.defaultMetadata,
		segments:        segments,
		paramParsers:    parsers,
		paramTags:       tags,
		noContentStatus: r.defaultNoContentStatus,
	}
	if len(opts) == 0 {
		opts = r.defaultRouteOptions
	}
	for _, opt := range opts {
		opt(rt)
	}
	if err := rt.validate(); err != nil {
		return err
	}

	current := r.root
	for _, seg := range segments {
		if seg.param == "" {
			current = current.findOrCreateChild(seg.literal)
			continue
		}
		next, err := current.paramFor(pattern, seg, rt.paramParsers[seg.param])
		if err != nil {
			return err
		}
		current = next
	}
	if err := current.addEndpoint(rt); err != nil {
		return err
	}

	r.routes = append(r.routes, rt)
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Router) MustRegister(pattern string, methods []string, handler HandlerFunc, opts ...RouteOption) {
	if err := r.Register(pattern, methods, handler, opts...); err != nil {
		panic(err)
	}
}

// GET registers handler for GET requests on pattern.
func (r *Router) GET(pattern string, handler HandlerFunc, opts ...RouteOption) error {
	return r.Register(pattern, []string{http.MethodGet}, handler, opts...)
}

// POST registers handler for POST requests on pattern.
func (r *Router) POST(pattern string, handler HandlerFunc, opts ...RouteOption) error {
	return r.Register(pattern, []string{http.MethodPost}, handler, opts...)
}

// PUT registers handler for PUT requests on pattern.
func (r *Router) PUT(pattern string, handler HandlerFunc, opts ...RouteOption) error {
	return r.Register(pattern, []string{http.MethodPut}, handler, opts...)
}

// PATCH registers handler for PATCH requests on pattern.
func (r *Router) PATCH(pattern string, handler HandlerFunc, opts ...RouteOption) error {
	return r.Register(pattern, []string{http.MethodPatch}, handler, opts...)
}

// DELETE registers handler for DELETE requests on pattern.
func (r *Router) DELETE(pattern string, handler HandlerFunc, opts ...RouteOption) error {
	return r.Register(pattern, []string{http.MethodDelete}, handler, opts...)
}

// Routes returns a snapshot of every registered route, in registration
// order. Useful for startup logging and documentation generation.
func (r *Router) Routes() []*Route {
	return slices.Clone(r.routes)
}

// Freeze ends the configuration phase: table-wide invariants are checked,
// the type registry is closed and the trie becomes immutable, making all
// request-time reads lock-free. Freeze is idempotent; every call returns
// the outcome of the first.
func (r *Router) Freeze() error {
	r.freezeOnce.Do(func() {
		r.freezeErr = r.doFreeze()
	})
	return r.freezeErr
}

func (r *Router) doFreeze() error {
	// typed defaults must be compatible with every declaration of the same
	// parameter name anywhere in the table, since defaults exist to make
	// one handler serve sibling patterns of different arity
	tableTags := make(map[string][]string)
	for _, rt := range r.routes {
		for name, tag := range rt.paramTags {
			if !slices.Contains(tableTags[name], tag) {
				tableTags[name] = append(tableTags[name], tag)
			}
		}
	}
	for _, rt := range r.routes {
		for name, value := range rt.Defaults {
			if value == nil {
				// nil means "optional parameter absent", always legal
				continue
			}
			for _, tag := range tableTags[name] {
				parser, ok := r.registry.Lookup(tag)
				if !ok {
					continue
				}
				if reflect.TypeOf(value) != parser.GoType() {
					return fmt.Errorf("%w: %s: default %q is %T, parameter is %s",
						ErrDefaultType, rt.Pattern, name, value, tag)
				}
			}
		}
	}

	r.registry.freeze()
	r.frozen.Store(true)
	return nil
}

// ServeHTTP implements http.Handler. The full pipeline runs for every
// request: resolve, before-request hook, negotiation, binding, handler,
// result conversion, encoding, write. Errors at any stage route through
// the error hook; nothing escapes as a panic to the server.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if !r.frozen.Load() {
		if err := r.Freeze(); err != nil {
			panic(fmt.Sprintf("dispatch: invalid route table: %v", err))
		}
	}

	var obsState any
	if r.observability != nil {
		var ctx context.Context
		ctx, obsState = r.observability.OnRequestStart(req.Context(), req)
		req = req.WithContext(ctx)
	}

	c := &Context{Request: req, router: r}
	env, rt := r.dispatch(c)

	if r.afterRequest != nil {
		r.afterRequest(env.Status, env.Header, c)
	}

	size := r.write(w, req, env)

	if r.observability != nil && obsState != nil {
		pattern := ""
		if rt != nil {
			pattern = rt.Pattern
		}
		r.observability.OnRequestEnd(req.Context(), obsState, env.Status, size, pattern)
	}
}

// dispatch produces the final response envelope for a request. It always
// returns a usable envelope; conversion failures degrade to a logged,
// detail-free 500.
func (r *Router) dispatch(c *Context) (*Envelope, *Route) {
	result, rt, err := r.invoke(c)
	if err != nil {
		result = r.resolveError(c, err)
	}

	env, convErr := r.convert(c, rt, result)
	if convErr != nil {
		r.logger.Error("result conversion failed",
			"method", c.Method(), "path", c.Path(), "error", convErr)
		env = genericErrorEnvelope(r.defaultTextContentType)
	}

	r.encode(c, rt, env)
	return env, rt
}

// invoke runs the stages up to and including the handler. A handler panic
// is recovered into an error so one request cannot take down the server.
func (r *Router) invoke(c *Context) (result any, rt *Route, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()

	match, merr := r.root.resolve(c.Method(), c.Path())
	if merr != nil {
		return nil, nil, merr
	}
	rt = match.Route
	c.route = rt

	if r.beforeRequest != nil {
		res, berr := r.beforeRequest(rt, c)
		if berr != nil {
			return nil, rt, berr
		}
		if res != nil {
			return res, rt, nil
		}
	}

	formats, nerr := negotiate(c, rt)
	if nerr != nil {
		return nil, rt, nerr
	}
	c.requestType = formats.RequestType
	c.responseType = formats.ResponseType

	args, aerr := r.bind(c, rt, match.PathParams)
	if aerr != nil {
		return nil, rt, aerr
	}

	result, err = rt.Handler(c, args)
	return result, rt, err
}

// resolveError maps an error escaping invoke to a result value via the
// configured error hook.
func (r *Router) resolveError(c *Context, err error) any {
	if r.errorHandler != nil {
		return r.errorHandler(c, err)
	}
	return r.DefaultErrorResult(c, err)
}

// DefaultErrorResult is the built-in error mapping: a *Error becomes a
// response with its status, message body and headers (e.g. Allow on 405);
// anything else is logged and reported as a bare 500 with no internals.
// Custom error hooks may delegate to it as a fallback.
func (r *Router) DefaultErrorResult(c *Context, err error) any {
	var he *Error
	if errors.As(err, &he) {
		var body any
		if !statusPermitsNoBody(he.Status) {
			body = he.Message
		}
		return &Response{Status: he.Status, Body: body, Header: he.Header}
	}

	r.logger.Error("unhandled dispatch error",
		"method", c.Method(), "path", c.Path(), "error", err)
	return &Response{
		Status: http.StatusInternalServerError,
		Body:   http.StatusText(http.StatusInternalServerError),
	}
}

// genericErrorEnvelope is the terminal fallback when even result
// conversion failed.
func genericErrorEnvelope(textContentType string) *Envelope {
	body := []byte(http.StatusText(http.StatusInternalServerError))
	h := make(http.Header, 2)
	h.Set("Content-Type", textContentType)
	h.Set("Content-Length", fmt.Sprint(len(body)))
	return &Envelope{Status: http.StatusInternalServerError, Header: h, Body: body}
}

// write sends the envelope to the client and returns the body byte count.
// HEAD responses keep their entity headers but drop the body.
func (r *Router) write(w http.ResponseWriter, req *http.Request, env *Envelope) int64 {
	h := w.Header()
	for name, values := range env.Header {
		for _, v := range values {
			h.Add(name, v)
		}
	}
	w.WriteHeader(env.Status)

	if req.Method == http.MethodHead {
		r.closeStream(env)
		return 0
	}

	if env.Stream != nil {
		n, err := io.Copy(w, env.Stream)
		if err != nil {
			r.logger.Error("response stream write failed",
				"method", req.Method, "path", req.URL.Path, "error", err)
		}
		r.closeStream(env)
		return n
	}

	n, err := w.Write(env.Body)
	if err != nil {
		r.logger.Error("response write failed",
			"method", req.Method, "path", req.URL.Path, "error", err)
	}
	return int64(n)
}

func (r *Router) closeStream(env *Envelope) {
	if closer, ok := env.Stream.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			r.logger.Error("response stream close failed", "error", err)
		}
	}
}
