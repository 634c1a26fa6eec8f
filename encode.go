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
	"bytes"
	"compress/gzip"
	"fmt"
	"hash/fnv"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

const (
	encodingGzip   = "gzip"
	encodingBrotli = "br"

	// compressChunkSize bounds how much body is fed to the compressor per
	// write, so peak memory stays flat for large buffered bodies.
	compressChunkSize = 32 << 10
)

// encode post-processes a converted envelope: Cache-Control directives
// from the route, an ETag for buffered bodies, and negotiated compression.
// Encoding never fails the response; a compression failure falls back to
// the identity representation.
func (r *Router) encode(c *Context, rt *Route, env *Envelope) {
	if rt != nil && rt.cacheControl != "" && env.Header.Get("Cache-Control") == "" {
		env.Header.Set("Cache-Control", rt.cacheControl)
	}

	etag := ""
	if r.etagEnabled && env.Stream == nil && len(env.Body) > 0 &&
		env.Status >= 200 && env.Status < 300 && env.Header.Get("ETag") == "" {
		etag = contentETag(env.Body)
		env.Header.Set("ETag", `"`+etag+`"`)
	}

	if !r.compressEnabled || env.Stream != nil || len(env.Body) < r.compressMinSize {
		return
	}
	if !r.compressibleTypes[baseMediaType(env.Header.Get("Content-Type"))] {
		return
	}
	if env.Header.Get("Content-Encoding") != "" {
		return
	}

	encoding := chooseEncoding(c.Request.Header.Get("Accept-Encoding"))
	if encoding == "" {
		return
	}

	compressed, err := r.compress(encoding, env.Body)
	if err != nil {
		// identity fallback, the response is still served
		r.logger.Error("response compression failed",
			"encoding", encoding, "path", c.Path(), "error", err)
		return
	}

	env.Body = compressed
	env.Header.Set("Content-Encoding", encoding)
	env.Header.Set("Vary", "Accept-Encoding")
	env.Header.Set("Content-Length", strconv.Itoa(len(compressed)))
	if etag != "" {
		// the compressed representation is semantically, not byte-wise,
		// equivalent to the identity one
		env.Header.Set("ETag", `W/"`+etag+`-`+encoding+`"`)
	}
}

// contentETag returns the FNV-64a hash of the body in hex.
func contentETag(body []byte) string {
	h := fnv.New64a()
	h.Write(body)
	return fmt.Sprintf("%016x", h.Sum64())
}

// compress runs the body through the pooled writer for the chosen
// encoding, feeding it in fixed-size chunks.
func (r *Router) compress(encoding string, body []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(min(len(body), compressChunkSize))

	var w io.WriteCloser
	switch encoding {
	case encodingGzip:
		gz := r.gzipPool.Get().(*gzip.Writer)
		gz.Reset(&buf)
		defer func() {
			gz.Reset(io.Discard)
			r.gzipPool.Put(gz)
		}()
		w = gz
	case encodingBrotli:
		br := r.brotliPool.Get().(*brotli.Writer)
		br.Reset(&buf)
		defer func() {
			br.Reset(io.Discard)
			r.brotliPool.Put(br)
		}()
		w = br
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}

	for start := 0; start < len(body); start += compressChunkSize {
		end := min(start+compressChunkSize, len(body))
		if _, err := w.Write(body[start:end]); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// chooseEncoding selects the response encoding from Accept-Encoding,
// preferring brotli over gzip when both are acceptable. Respects q-values;
// q=0 disables an encoding.
func chooseEncoding(acceptEncoding string) string {
	if acceptEncoding == "" {
		return ""
	}

	brQ := -1
	gzipQ := -1
	order := 0
	for _, part := range strings.Split(acceptEncoding, ",") {
		spec, ok := parseAcceptPart(part, order)
		if !ok {
			continue
		}
		order++
		switch strings.ToLower(spec.value) {
		case encodingBrotli:
			brQ = spec.quality
		case encodingGzip, "x-gzip":
			gzipQ = spec.quality
		case "*":
			if brQ < 0 {
				brQ = spec.quality
			}
			if gzipQ < 0 {
				gzipQ = spec.quality
			}
		}
	}

	if brQ > 0 && brQ >= gzipQ {
		return encodingBrotli
	}
	if gzipQ > 0 {
		return encodingGzip
	}
	return ""
}

// newGzipPool returns a pool of gzip writers at the configured level.
func newGzipPool(level int) *sync.Pool {
	return &sync.Pool{
		New: func() any {
			w, err := gzip.NewWriterLevel(io.Discard, level)
			if err != nil {
				w = gzip.NewWriter(io.Discard)
			}
			return w
		},
	}
}

// newBrotliPool returns a pool of brotli writers at the configured level.
func newBrotliPool(level int) *sync.Pool {
	return &sync.Pool{
		New: func() any {
			return brotli.NewWriterLevel(io.Discard, level)
		},
	}
}
