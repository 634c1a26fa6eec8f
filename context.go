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
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Context is the per-request view handed to handlers and hooks. It wraps
// the transport request and caches the derived values (content type, query
// parameters, body) so each is computed at most once per request.
//
// A Context is owned by the single call stack processing its request and
// must not be shared across requests or retained after the handler returns.
type Context struct {
	// Request is the underlying transport request.
	Request *http.Request

	router *Router
	route  *Route

	requestType  string
	responseType string

	body     []byte
	bodyErr  error
	bodyDone bool

	query     map[string]string
	queryErr  error
	queryDone bool

	contentType string
	ctDone      bool
}

// Method returns the request method.
func (c *Context) Method() string {
	return c.Request.Method
}

// Path returns the request path.
func (c *Context) Path() string {
	return c.Request.URL.Path
}

// Header returns the request headers.
func (c *Context) Header() http.Header {
	return c.Request.Header
}

// Route returns the matched route, or nil before matching succeeded (e.g.
// inside the error hook for a 404).
func (c *Context) Route() *Route {
	return c.route
}

// RequestType returns the negotiated request media type: the route's
// matched consumes entry, or the request's base content type when the
// route declares no consumes.
func (c *Context) RequestType() string {
	return c.requestType
}

// ResponseType returns the negotiated response media type, or empty when
// the route declares no produces value.
func (c *Context) ResponseType() string {
	return c.responseType
}

// Logger returns the router's structured logger.
func (c *Context) Logger() *slog.Logger {
	return c.router.logger
}

// ContentType returns the request's base media type: lowercased, with any
// parameters stripped. Empty when the header is absent.
func (c *Context) ContentType() string {
	if !c.ctDone {
		c.contentType = baseMediaType(c.Request.Header.Get("Content-Type"))
		c.ctDone = true
	}
	return c.contentType
}

// QueryParams returns the query parameters, first value per name. Parsing
// is strict: a malformed query string fails the request with 400.
func (c *Context) QueryParams() (map[string]string, error) {
	if c.queryDone {
		return c.query, c.queryErr
	}
	c.queryDone = true

	raw := c.Request.URL.RawQuery
	if raw == "" {
		c.query = map[string]string{}
		return c.query, nil
	}

	values, err := url.ParseQuery(raw)
	if err != nil {
		c.queryErr = BadRequest("malformed query string")
		return nil, c.queryErr
	}

	c.query = make(map[string]string, len(values))
	for name, vals := range values {
		if len(vals) > 0 {
			c.query[name] = vals[0]
		}
	}
	return c.query, nil
}

// Body returns the complete request body. The read happens at most once;
// repeated calls return the cached bytes.
//
// Failure modes, checked before any buffering: 411 when Content-Length is
// absent, 400 when it is malformed or negative, 413 when it exceeds the
// router's configured maximum.
func (c *Context) Body() ([]byte, error) {
	if c.bodyDone {
		return c.body, c.bodyErr
	}
	c.bodyDone = true

	clHeader := c.Request.Header.Get("Content-Length")
	if clHeader == "" {
		c.bodyErr = LengthRequired()
		return nil, c.bodyErr
	}
	contentLength, err := strconv.ParseInt(clHeader, 10, 64)
	if err != nil || contentLength < 0 {
		c.bodyErr = BadRequest("invalid Content-Length")
		return nil, c.bodyErr
	}
	if contentLength == 0 {
		c.body = []byte{}
		return c.body, nil
	}
	if maxLen := c.router.maxContentLength; maxLen > 0 && contentLength > maxLen {
		c.bodyErr = PayloadTooLarge()
		return nil, c.bodyErr
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(c.Request.Body, body); err != nil {
		c.bodyErr = BadRequest("incomplete request body")
		return nil, c.bodyErr
	}
	c.body = body
	return c.body, nil
}

// baseMediaType lowercases a media type header value and strips any
// parameters. Type and subtype are case-insensitive per RFC 9110.
func baseMediaType(header string) string {
	if header == "" {
		return ""
	}
	if idx := strings.IndexByte(header, ';'); idx >= 0 {
		header = header[:idx]
	}
	return strings.ToLower(strings.TrimSpace(header))
}
