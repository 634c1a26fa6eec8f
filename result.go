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
	"io"
	"net/http"
	"reflect"
	"strconv"
)

// Response is the explicit status/body/header handler result, the analogue
// of returning a (status, body, headers) triple. Body is re-dispatched
// through the remaining conversion rules, so a Response may wrap a map, a
// string, raw bytes or a stream.
type Response struct {
	Status int
	Body   any
	Header http.Header
}

// Envelope is the wire-ready response: status, headers and either a
// complete buffered body or a stream. Exactly one of Body and Stream is
// used; a non-nil Stream marks the response as streaming, which the
// encoder must not buffer.
type Envelope struct {
	Status int
	Header http.Header
	Body   []byte
	Stream io.Reader
}

// ResultMatcher reports whether a custom converter handles a result value.
type ResultMatcher func(result any) bool

// ResultConverterFunc converts a matched result value into the envelope.
type ResultConverterFunc func(result any, env *Envelope) error

// resultConverter is one (predicate, converter) pair. Pairs are consulted
// in registration order before the built-in rules; first match wins.
type resultConverter struct {
	matches ResultMatcher
	convert ResultConverterFunc
}

// convert maps a handler result to a response envelope.
//
// Dispatch order: an explicit *Response/Response is unwrapped first, then
// custom converters are consulted, then the built-in rules: nil (route
// no-content status), map and struct (codec), string (text), []byte
// (explicit media type required), io.Reader (streamed unconverted).
func (r *Router) convert(c *Context, rt *Route, result any) (*Envelope, error) {
	env := &Envelope{Status: http.StatusOK, Header: make(http.Header, 4)}

	explicitStatus := false
	switch res := result.(type) {
	case *Response:
		explicitStatus = res.Status != 0
		result = r.unwrapResponse(env, res)
	case Response:
		explicitStatus = res.Status != 0
		result = r.unwrapResponse(env, &res)
	}
	if env.Status <= 0 {
		return nil, fmt.Errorf("invalid response status %d", env.Status)
	}

	for _, custom := range r.converters {
		if custom.matches(result) {
			if err := custom.convert(result, env); err != nil {
				return nil, err
			}
			finalizeLength(env)
			return env, nil
		}
	}

	if result == nil {
		if !explicitStatus {
			env.Status = r.noContentStatusFor(rt)
		} else if !statusPermitsNoBody(env.Status) {
			return nil, fmt.Errorf("nil result for status %d which requires a body", env.Status)
		}
		return env, nil
	}

	responseType := ""
	if c != nil {
		responseType = c.responseType
	}

	switch res := result.(type) {
	case string:
		env.Body = []byte(res)
		if env.Header.Get("Content-Type") == "" {
			mediaType := responseType
			if mediaType == "" {
				mediaType = r.defaultTextContentType
			}
			env.Header.Set("Content-Type", mediaType)
		}
	case []byte:
		if env.Header.Get("Content-Type") == "" {
			return nil, fmt.Errorf("unknown content type for binary result")
		}
		env.Body = res
	case io.Reader:
		env.Stream = res
	default:
		value := reflect.ValueOf(result)
		kind := value.Kind()
		if kind == reflect.Pointer {
			kind = value.Elem().Kind()
		}
		if kind != reflect.Map && kind != reflect.Struct {
			return nil, fmt.Errorf("unconvertible result type %T", result)
		}
		encoded, err := r.codec.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("result serialization: %w", err)
		}
		env.Body = encoded
		if env.Header.Get("Content-Type") == "" {
			mediaType := responseType
			if mediaType == "" {
				mediaType = r.codec.MediaType()
			}
			env.Header.Set("Content-Type", mediaType)
		}
	}

	finalizeLength(env)
	return env, nil
}

// unwrapResponse applies a Response's status and headers to the envelope
// and returns its inner body for further conversion.
func (r *Router) unwrapResponse(env *Envelope, res *Response) any {
	if res.Status != 0 {
		env.Status = res.Status
	}
	for name, values := range res.Header {
		for _, v := range values {
			env.Header.Add(name, v)
		}
	}
	return res.Body
}

// noContentStatusFor returns the route's configured no-content status, or
// the router default when no route is available (error path).
func (r *Router) noContentStatusFor(rt *Route) int {
	if rt != nil {
		return rt.noContentStatus
	}
	return http.StatusNoContent
}

// finalizeLength sets Content-Length for buffered bodies. Streams have no
// known length.
func finalizeLength(env *Envelope) {
	if env.Stream == nil {
		env.Header.Set("Content-Length", strconv.Itoa(len(env.Body)))
	}
}
