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
	"reflect"
	"strconv"

	"github.com/google/uuid"
)

// Built-in parameter type tags.
const (
	TypeString = "string"
	TypeInt    = "int"
	TypeBool   = "bool"
	TypeUUID   = "uuid"
)

var errSegmentMismatch = errors.New("segment does not match parameter type")

// ParamParser converts a raw path segment into a typed value.
//
// Parse is consulted both while matching (a segment that fails to parse
// makes the parameter child a non-match, so the walk falls through to 404)
// and while binding (the parsed value becomes the handler argument).
// Implementations must be safe for concurrent use and must not retain the
// raw string.
type ParamParser interface {
	// Parse returns the typed value for raw, or an error when the segment
	// does not conform to the parameter type.
	Parse(raw string) (any, error)

	// GoType reports the dynamic type produced by Parse. It is used to
	// validate typed route defaults at freeze time.
	GoType() reflect.Type
}

// TypeRegistry maps parameter type tags to their segment parsers.
//
// A registry starts with the built-in tags (string, int, bool, uuid) and
// accepts custom registrations until the owning router is frozen.
// Registration order does not affect matching: the matcher resolves each
// parameter by its declared tag, never by trying parsers in sequence.
type TypeRegistry struct {
	parsers map[string]ParamParser
	frozen  bool
}

// NewTypeRegistry returns a registry pre-populated with the built-in
// parameter types.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		parsers: map[string]ParamParser{
			TypeString: stringParser{},
			TypeInt:    intParser{},
			TypeBool:   boolParser{},
			TypeUUID:   uuidParser{},
		},
	}
}

// Register adds a custom parameter type under the given tag. Registering a
// tag twice or registering after freeze is a configuration error.
// Built-in tags may not be replaced; use a new tag instead.
func (tr *TypeRegistry) Register(tag string, parser ParamParser) error {
	if tr.frozen {
		return fmt.Errorf("%w: %s", ErrRegistryFrozen, tag)
	}
	if tag == "" || parser == nil {
		return fmt.Errorf("%w: empty tag or nil parser", ErrInvalidParameter)
	}
	if _, exists := tr.parsers[tag]; exists {
		return fmt.Errorf("%w: %s", ErrTypeTagRegistered, tag)
	}
	tr.parsers[tag] = parser
	return nil
}

// Lookup returns the parser registered under tag.
func (tr *TypeRegistry) Lookup(tag string) (ParamParser, bool) {
	p, ok := tr.parsers[tag]
	return p, ok
}

// freeze ends the registration phase. Reads are lock-free afterwards.
func (tr *TypeRegistry) freeze() {
	tr.frozen = true
}

// stringParser accepts any non-empty segment unchanged.
type stringParser struct{}

func (stringParser) Parse(raw string) (any, error) {
	if raw == "" {
		return nil, errSegmentMismatch
	}
	return raw, nil
}

func (stringParser) GoType() reflect.Type { return reflect.TypeOf("") }

// intParser accepts decimal digits. A leading sign is rejected unless the
// router is configured with WithSignedIntegers.
type intParser struct {
	signed bool
}

func (p intParser) Parse(raw string) (any, error) {
	digits := raw
	if p.signed && len(raw) > 1 && (raw[0] == '-' || raw[0] == '+') {
		digits = raw[1:]
	}
	if digits == "" {
		return nil, errSegmentMismatch
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return nil, errSegmentMismatch
		}
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		// digits-only input can still overflow int
		return nil, errSegmentMismatch
	}
	return n, nil
}

func (intParser) GoType() reflect.Type { return reflect.TypeOf(0) }

// boolParser accepts "true" and "false", case-sensitive. The loose mode
// (WithLooseBooleans) additionally accepts 1/0, yes/no and on/off.
type boolParser struct {
	loose bool
}

func (p boolParser) Parse(raw string) (any, error) {
	switch raw {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if p.loose {
		switch raw {
		case "1", "yes", "on":
			return true, nil
		case "0", "no", "off":
			return false, nil
		}
	}
	return nil, errSegmentMismatch
}

func (boolParser) GoType() reflect.Type { return reflect.TypeOf(false) }

// uuidParser accepts the canonical 8-4-4-4-12 hexadecimal form only.
// Shorthand forms accepted by uuid.Parse (urn prefix, braces, raw hex) are
// rejected so that a URL segment has exactly one valid spelling.
type uuidParser struct{}

func (uuidParser) Parse(raw string) (any, error) {
	if len(raw) != 36 || raw[8] != '-' || raw[13] != '-' || raw[18] != '-' || raw[23] != '-' {
		return nil, errSegmentMismatch
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, errSegmentMismatch
	}
	return id, nil
}

func (uuidParser) GoType() reflect.Type { return reflect.TypeOf(uuid.UUID{}) }
