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

import "encoding/json"

// Codec is the injected body serializer. The dispatch core never commits to
// a serialization library: maps, structs and body bindings go through this
// interface, and WithCodec swaps the implementation.
//
// Implementations must be safe for concurrent use.
type Codec interface {
	// Marshal encodes a result value for the wire.
	Marshal(v any) ([]byte, error)

	// Unmarshal decodes a request body into v.
	Unmarshal(data []byte, v any) error

	// MediaType is the media type the codec produces, e.g. "application/json".
	MediaType() string
}

// jsonCodec is the default Codec, backed by encoding/json.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	// always utf-8, see RFC 8259 section 8.1
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) MediaType() string {
	return "application/json"
}
