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

import "log/slog"

// Option defines functional options for router configuration. Options are
// applied by New and validated immediately, so configuration errors
// surface at startup rather than at request time.
type Option func(*Router)

// WithCodec replaces the body serializer. The default is encoding/json.
func WithCodec(codec Codec) Option {
	return func(r *Router) {
		r.codec = codec
	}
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithMaxContentLength bounds request bodies in bytes; larger requests are
// rejected with 413 before any buffering. Zero removes the bound. The
// default is 10 MiB.
func WithMaxContentLength(maxBytes int64) Option {
	return func(r *Router) {
		r.maxContentLength = maxBytes
	}
}

// WithDefaultTextContentType sets the media type used for string results
// when neither the handler nor negotiation supplies one.
func WithDefaultTextContentType(mediaType string) Option {
	return func(r *Router) {
		r.defaultTextContentType = mediaType
	}
}

// WithParameterMarkers changes the path-parameter delimiters in route
// patterns. The defaults are "{" and "}"; an empty end marker means
// parameters run to the end of the segment, e.g. "/users/:id" with
// WithParameterMarkers(":", "").
func WithParameterMarkers(start, end string) Option {
	return func(r *Router) {
		r.paramStart = start
		r.paramEnd = end
	}
}

// WithDefaultRouteMetadata supplies the metadata mapping used by routes
// that declare none of their own.
func WithDefaultRouteMetadata(metadata map[string]any) Option {
	return func(r *Router) {
		r.defaultMetadata = metadata
	}
}

// WithDefaultRouteOptions supplies route options applied to registrations
// that pass no options of their own.
func WithDefaultRouteOptions(opts ...RouteOption) Option {
	return func(r *Router) {
		r.defaultRouteOptions = opts
	}
}

// WithDefaultNoContentStatus sets the status used when a handler returns
// nil and its route does not override it. Must permit an empty body.
func WithDefaultNoContentStatus(status int) Option {
	return func(r *Router) {
		r.defaultNoContentStatus = status
	}
}

// WithResultConverter appends a custom result conversion pair. Pairs are
// consulted in registration order before the built-in rules; the first
// matching predicate wins.
func WithResultConverter(matches ResultMatcher, convert ResultConverterFunc) Option {
	return func(r *Router) {
		r.converters = append(r.converters, resultConverter{matches: matches, convert: convert})
	}
}

// WithBeforeRequest installs the pre-dispatch hook, invoked after route
// match and before binding. A non-nil result short-circuits the handler
// and is converted like a handler result; a returned error short-circuits
// through the error path. The matched route's Metadata is available for
// collaborator checks such as authorization.
func WithBeforeRequest(hook BeforeRequestFunc) Option {
	return func(r *Router) {
		r.beforeRequest = hook
	}
}

// WithAfterRequest installs the post-conversion hook, invoked with the
// final status and mutable headers before the response is written.
func WithAfterRequest(hook AfterRequestFunc) Option {
	return func(r *Router) {
		r.afterRequest = hook
	}
}

// WithErrorHandler replaces the error hook invoked for any error escaping
// handler execution or the stages before it. The returned value is
// converted like a handler result. The default maps *Error to its status
// and everything else to a logged, detail-free 500.
func WithErrorHandler(hook ErrorHandlerFunc) Option {
	return func(r *Router) {
		r.errorHandler = hook
	}
}

// WithObservability installs a request lifecycle recorder.
func WithObservability(recorder ObservabilityRecorder) Option {
	return func(r *Router) {
		r.observability = recorder
	}
}

// WithoutETag disables ETag computation.
func WithoutETag() Option {
	return func(r *Router) {
		r.etagEnabled = false
	}
}

// WithoutCompression disables response compression.
func WithoutCompression() Option {
	return func(r *Router) {
		r.compressEnabled = false
	}
}

// WithGzipLevel sets the gzip compression level. The default favors
// latency over ratio.
func WithGzipLevel(level int) Option {
	return func(r *Router) {
		r.gzipLevel = level
	}
}

// WithBrotliLevel sets the brotli compression level (0-11).
func WithBrotliLevel(level int) Option {
	return func(r *Router) {
		r.brotliLevel = level
	}
}

// WithCompressionMinSize sets the minimum buffered body size, in bytes,
// eligible for compression.
func WithCompressionMinSize(minBytes int) Option {
	return func(r *Router) {
		r.compressMinSize = minBytes
	}
}

// WithCompressibleTypes replaces the set of media types opted into
// compression. The default is application/json only.
func WithCompressibleTypes(mediaTypes ...string) Option {
	return func(r *Router) {
		r.compressibleTypes = make(map[string]bool, len(mediaTypes))
		for _, mt := range mediaTypes {
			r.compressibleTypes[baseMediaType(mt)] = true
		}
	}
}

// WithSignedIntegers lets the built-in int parameter type accept a leading
// sign. The default accepts decimal digits only.
func WithSignedIntegers() Option {
	return func(r *Router) {
		r.signedInts = true
	}
}

// WithLooseBooleans widens the built-in bool parameter type to also accept
// 1/0, yes/no and on/off.
func WithLooseBooleans() Option {
	return func(r *Router) {
		r.looseBools = true
	}
}

// WithParamType registers a custom parameter type under the given tag.
func WithParamType(tag string, parser ParamParser) Option {
	return func(r *Router) {
		r.pendingParamTypes = append(r.pendingParamTypes, pendingParamType{tag: tag, parser: parser})
	}
}
