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
	"sort"
)

// edge is a per-segment literal child. Children are kept in a slice and
// scanned linearly: route sets are small and a scan avoids map hashing in
// the hot path.
type edge struct {
	label string
	node  *node
}

// paramChild is the single parameter child a node may hold. Two
// registrations may share it only when they agree on both the parameter
// name and its type; anything else is rejected at registration time, so a
// request segment never faces more than one parameter candidate.
type paramChild struct {
	name   string
	tag    string
	parser ParamParser
	node   *node
}

// node is one position in the segment trie.
//
// A node may hold literal children and at most one parameter child. When a
// request segment matches a literal child it is routed there even if the
// parameter child would also accept the value: literal always wins.
//
// Thread safety: the trie is built during the single-threaded configuration
// phase and is immutable after Freeze, so request-time walks need no locks.
type node struct {
	edges     []edge
	param     *paramChild
	endpoints map[string]*Route
}

// findChild returns the literal child for the given segment, or nil.
func (n *node) findChild(segment string) *node {
	for i := range n.edges {
		if n.edges[i].label == segment {
			return n.edges[i].node
		}
	}
	return nil
}

// findOrCreateChild returns the literal child for the segment, creating it
// if needed. Configuration phase only.
func (n *node) findOrCreateChild(segment string) *node {
	if child := n.findChild(segment); child != nil {
		return child
	}
	child := &node{}
	n.edges = append(n.edges, edge{label: segment, node: child})
	return child
}

// paramFor returns the node's parameter child for the given declaration,
// creating it if absent. A conflicting declaration (different name or type
// at the same position) is a configuration error rather than a runtime
// tie-break.
func (n *node) paramFor(pattern string, seg segment, parser ParamParser) (*node, error) {
	if n.param == nil {
		n.param = &paramChild{name: seg.param, tag: seg.tag, parser: parser, node: &node{}}
		return n.param.node, nil
	}
	if n.param.name != seg.param || n.param.tag != seg.tag {
		return nil, fmt.Errorf("%w: %s: {%s:%s} conflicts with {%s:%s}",
			ErrParamConflict, pattern, seg.param, seg.tag, n.param.name, n.param.tag)
	}
	return n.param.node, nil
}

// addEndpoint makes the node terminal for the route's methods. Registering
// a method twice at one position is rejected.
func (n *node) addEndpoint(rt *Route) error {
	if n.endpoints == nil {
		n.endpoints = make(map[string]*Route, len(rt.Methods))
	}
	for _, m := range rt.Methods {
		if _, exists := n.endpoints[m]; exists {
			return fmt.Errorf("%w: %s %s", ErrDuplicateRoute, m, rt.Pattern)
		}
		n.endpoints[m] = rt
	}
	return nil
}

// allowedMethods returns the methods registered at this node, sorted for a
// stable Allow header.
func (n *node) allowedMethods() []string {
	allow := make([]string, 0, len(n.endpoints))
	for m := range n.endpoints {
		allow = append(allow, m)
	}
	sort.Strings(allow)
	return allow
}

// MatchResult is the outcome of a successful path resolution: the matched
// route plus the raw text of every parameter segment, keyed by parameter
// name. Values are coerced later by the binder.
type MatchResult struct {
	Route      *Route
	PathParams map[string]string
}

// resolve walks the trie for the given method and path.
//
// The path is split into segments on-the-fly; a single trailing slash is
// ignored so /abc/ and /abc resolve identically. At each node the walk
// checks literal children first and falls back to the parameter child only
// on a literal miss, recording the raw segment text. The parameter child
// matches only when its parser accepts the segment, so /abc/{n:int} does
// not swallow /abc/xy.
//
// A walk failure or a terminal node without endpoints yields a 404; a
// terminal node that lacks the requested method yields a 405 carrying the
// methods registered there.
func (n *node) resolve(method, path string) (*MatchResult, *Error) {
	current := n
	var params map[string]string

	start := 0
	if len(path) > 0 && path[0] == '/' {
		start = 1
	}
	pathLen := len(path)
	// single trailing empty segment is not a segment
	if pathLen > start && path[pathLen-1] == '/' {
		pathLen--
	}

	for start < pathLen {
		end := start
		for end < pathLen && path[end] != '/' {
			end++
		}
		seg := path[start:end]

		if next := current.findChild(seg); next != nil {
			current = next
		} else if p := current.param; p != nil {
			if _, err := p.parser.Parse(seg); err != nil {
				return nil, NotFound()
			}
			if params == nil {
				params = make(map[string]string, 4)
			}
			params[p.name] = seg
			current = p.node
		} else {
			return nil, NotFound()
		}

		start = end + 1
	}

	if len(current.endpoints) == 0 {
		// intermediate position, nothing registered here
		return nil, NotFound()
	}

	rt, ok := current.endpoints[method]
	if !ok {
		return nil, MethodNotAllowed(current.allowedMethods())
	}
	return &MatchResult{Route: rt, PathParams: params}, nil
}
