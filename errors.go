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
	"errors"
	"net/http"
	"strings"
)

// Configuration errors. These are returned from Register, Freeze and the
// type registry during the configuration phase. They are fatal: startup
// must not proceed past them, and none of them is ever produced while
// serving a request.
var (
	// ErrFrozen indicates a registration after Freeze.
	ErrFrozen = errors.New("route table is frozen")

	// ErrNoMethods indicates a route registered without any HTTP method.
	ErrNoMethods = errors.New("no methods defined")

	// ErrNilHandler indicates a route registered without a handler.
	ErrNilHandler = errors.New("nil handler")

	// ErrPatternRoot indicates a route pattern that does not start with "/".
	ErrPatternRoot = errors.New("pattern must start with /")

	// ErrEmptySegment indicates an empty segment inside a route pattern.
	ErrEmptySegment = errors.New("empty path segment")

	// ErrInvalidParameter indicates a malformed parameter segment.
	ErrInvalidParameter = errors.New("invalid path parameter definition")

	// ErrUnknownParamType indicates a parameter declared with a type tag
	// that is not present in the type registry.
	ErrUnknownParamType = errors.New("unknown path parameter type")

	// ErrDuplicateParam indicates a parameter name repeated within one pattern.
	ErrDuplicateParam = errors.New("duplicate path parameter")

	// ErrParamConflict indicates two registrations declaring parameters of
	// different name or type at the same trie position.
	ErrParamConflict = errors.New("incompatible path parameter")

	// ErrDuplicateRoute indicates a method registered twice for one path.
	ErrDuplicateRoute = errors.New("handler already registered for method")

	// ErrNoContentStatus indicates a configured no-content status that does
	// not permit an empty response body.
	ErrNoContentStatus = errors.New("status does not permit an empty body")

	// ErrDefaultShadowsBinding indicates a default supplied for a parameter
	// that is also sourced from query or body binding.
	ErrDefaultShadowsBinding = errors.New("default value shadows a bound parameter")

	// ErrDefaultType indicates a default value whose type does not match the
	// declared type of the parameter it fills in.
	ErrDefaultType = errors.New("default value type mismatch")

	// ErrTypeTagRegistered indicates a duplicate parser registration.
	ErrTypeTagRegistered = errors.New("parameter type already registered")

	// ErrRegistryFrozen indicates a parser registration after Freeze.
	ErrRegistryFrozen = errors.New("type registry is frozen")
)

// Error is a per-request failure carrying the HTTP status it maps to.
// The dispatcher converts it to a response at the boundary; Message is the
// only detail exposed to the client, so constructors keep it generic and
// never include parser internals.
type Error struct {
	Status  int
	Message string
	Header  http.Header
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// NewError returns an Error for the given status. An empty message defaults
// to the standard status text.
func NewError(status int, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{Status: status, Message: message}
}

// BadRequest returns a 400 error with a safe client-facing message.
func BadRequest(message string) *Error {
	return NewError(http.StatusBadRequest, message)
}

// NotFound returns a 404 error.
func NotFound() *Error {
	return NewError(http.StatusNotFound, "")
}

// MethodNotAllowed returns a 405 error carrying an Allow header listing the
// methods registered at the matched path.
func MethodNotAllowed(allow []string) *Error {
	e := NewError(http.StatusMethodNotAllowed, "")
	e.Header = http.Header{"Allow": []string{strings.Join(allow, ", ")}}
	return e
}

// NotAcceptable returns a 406 error (produces negotiation failure).
func NotAcceptable() *Error {
	return NewError(http.StatusNotAcceptable, "")
}

// UnsupportedMediaType returns a 415 error (consumes negotiation failure).
func UnsupportedMediaType() *Error {
	return NewError(http.StatusUnsupportedMediaType, "")
}

// PayloadTooLarge returns a 413 error (body exceeds the configured maximum).
func PayloadTooLarge() *Error {
	return NewError(http.StatusRequestEntityTooLarge, "")
}

// LengthRequired returns a 411 error (body binding without Content-Length).
func LengthRequired() *Error {
	return NewError(http.StatusLengthRequired, "")
}

// statusPermitsNoBody reports whether a status code allows an empty
// response body: informational responses, 204 and 304.
func statusPermitsNoBody(status int) bool {
	return (status >= 100 && status < 200) ||
		status == http.StatusNoContent ||
		status == http.StatusNotModified
}
