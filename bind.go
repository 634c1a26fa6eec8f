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
	"fmt"

	"github.com/google/uuid"
)

// Args are the typed handler arguments for one request, merged from coerced
// path parameters, query binding, body binding and route defaults. Keys
// filled from a nil default are present with a nil value, which is how a
// handler observes an optional parameter that was not supplied.
type Args map[string]any

// Has reports whether the argument is present, regardless of its value.
func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// Value returns the raw argument value, nil when absent.
func (a Args) Value(name string) any {
	return a[name]
}

// String returns the argument as a string, or "" when absent or of another
// type.
func (a Args) String(name string) string {
	v, _ := a[name].(string)
	return v
}

// Int returns the argument as an int, or 0 when absent or of another type.
func (a Args) Int(name string) int {
	v, _ := a[name].(int)
	return v
}

// Bool returns the argument as a bool, or false when absent or of another
// type.
func (a Args) Bool(name string) bool {
	v, _ := a[name].(bool)
	return v
}

// UUID returns the argument as a uuid.UUID, or the zero UUID when absent or
// of another type.
func (a Args) UUID(name string) uuid.UUID {
	v, _ := a[name].(uuid.UUID)
	return v
}

// bind builds the handler argument set for a matched route.
//
// Binding order: path parameters are coerced first (always present once the
// route matched), then the query binding, then the body binding (the body
// is read at most once, bounded by the configured maximum), then defaults
// fill any still-missing names. The request context itself is not part of
// Args; it is passed to the handler explicitly.
func (r *Router) bind(c *Context, rt *Route, rawParams map[string]string) (Args, error) {
	args := make(Args, len(rawParams)+len(rt.Defaults)+2)

	for name, raw := range rawParams {
		parser, ok := rt.paramParsers[name]
		if !ok {
			return nil, fmt.Errorf("no parser for path parameter %q", name)
		}
		value, err := parser.Parse(raw)
		if err != nil {
			return nil, BadRequest(fmt.Sprintf("invalid path parameter %q", name))
		}
		args[name] = value
	}

	if qb := rt.queryBinding; qb != nil {
		query, err := c.QueryParams()
		if err != nil {
			return nil, err
		}
		value, err := qb.bind(query)
		if err != nil {
			return nil, asBindError(err, "invalid query parameters")
		}
		args[qb.name] = value
	}

	if bb := rt.bodyBinding; bb != nil {
		body, err := c.Body()
		if err != nil {
			return nil, err
		}
		value, err := bb.bind(r.codec, c.requestType, body)
		if err != nil {
			return nil, asBindError(err, "invalid request body")
		}
		args[bb.name] = value
	}

	for name, value := range rt.Defaults {
		if _, present := args[name]; !present {
			args[name] = value
		}
	}

	return args, nil
}

// asBindError passes *Error through and downgrades anything else to a 400
// with a safe message, so binder internals never leak to the client.
func asBindError(err error, message string) error {
	var he *Error
	if errors.As(err, &he) {
		return he
	}
	return BadRequest(message)
}
