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
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, r *Router, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestServeHTTPPipeline(t *testing.T) {
	t.Parallel()

	r := MustNew()
	require.NoError(t, r.GET("/users/{id:int}", func(c *Context, args Args) (any, error) {
		return map[string]any{"id": args.Int("id")}, nil
	}))
	require.NoError(t, r.GET("/users/me", func(c *Context, args Args) (any, error) {
		return map[string]any{"id": "self"}, nil
	}))
	require.NoError(t, r.GET("/greeting", func(c *Context, args Args) (any, error) {
		return "hello", nil
	}))
	require.NoError(t, r.DELETE("/users/{id:int}", func(c *Context, args Args) (any, error) {
		return nil, nil
	}))
	require.NoError(t, r.GET("/export", func(c *Context, args Args) (any, error) {
		return &Response{
			Body:   strings.NewReader("col1,col2\n"),
			Header: http.Header{"Content-Type": []string{"text/csv"}},
		}, nil
	}))
	require.NoError(t, r.Freeze())

	t.Run("json result with typed path parameter", func(t *testing.T) {
		t.Parallel()

		w := serve(t, r, httptest.NewRequest(http.MethodGet, "/users/42", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"id":42}`, w.Body.String())
	})

	t.Run("literal wins over parameter", func(t *testing.T) {
		t.Parallel()

		w := serve(t, r, httptest.NewRequest(http.MethodGet, "/users/me", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"id":"self"}`, w.Body.String())
	})

	t.Run("string result served as text", func(t *testing.T) {
		t.Parallel()

		w := serve(t, r, httptest.NewRequest(http.MethodGet, "/greeting", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Equal(t, "hello", w.Body.String())
	})

	t.Run("nil result becomes 204", func(t *testing.T) {
		t.Parallel()

		w := serve(t, r, httptest.NewRequest(http.MethodDelete, "/users/42", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})

	t.Run("stream result copied through", func(t *testing.T) {
		t.Parallel()

		w := serve(t, r, httptest.NewRequest(http.MethodGet, "/export", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
		assert.Equal(t, "col1,col2\n", w.Body.String())
	})

	t.Run("unknown path is 404", func(t *testing.T) {
		t.Parallel()

		w := serve(t, r, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("typed parameter mismatch is 404", func(t *testing.T) {
		t.Parallel()

		w := serve(t, r, httptest.NewRequest(http.MethodGet, "/users/xy", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("wrong method is 405 with allow", func(t *testing.T) {
		t.Parallel()

		w := serve(t, r, httptest.NewRequest(http.MethodPost, "/users/42", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		assert.Equal(t, "DELETE, GET", w.Header().Get("Allow"))
	})

	t.Run("head drops the body but keeps entity headers", func(t *testing.T) {
		t.Parallel()

		rh := MustNew()
		require.NoError(t, rh.Register("/greeting", []string{http.MethodGet, http.MethodHead},
			func(c *Context, args Args) (any, error) { return "hello", nil }))

		w := serve(t, rh, httptest.NewRequest(http.MethodHead, "/greeting", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "5", w.Header().Get("Content-Length"))
		assert.Empty(t, w.Body.String())
	})
}

func TestServeHTTPNegotiation(t *testing.T) {
	t.Parallel()

	r := MustNew()
	require.NoError(t, r.GET("/data", func(c *Context, args Args) (any, error) {
		return map[string]any{"ok": true}, nil
	}, Produces("application/json")))
	require.NoError(t, r.POST("/data", func(c *Context, args Args) (any, error) {
		return map[string]any{"accepted": c.RequestType()}, nil
	}, Consumes("application/json")))
	require.NoError(t, r.Freeze())

	t.Run("acceptable quality succeeds", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/data", nil)
		req.Header.Set("Accept", "application/json;q=0.9, text/html;q=0.5")
		w := serve(t, r, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unacceptable accept is 406", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/data", nil)
		req.Header.Set("Accept", "application/xml")
		w := serve(t, r, req)
		assert.Equal(t, http.StatusNotAcceptable, w.Code)
	})

	t.Run("exact content type accepted", func(t *testing.T) {
		t.Parallel()

		req := bodyRequest(http.MethodPost, "/data", `{}`)
		req.Header.Set("Content-Type", "application/json")
		w := serve(t, r, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("structured syntax suffix accepted", func(t *testing.T) {
		t.Parallel()

		req := bodyRequest(http.MethodPost, "/data", `{}`)
		req.Header.Set("Content-Type", "application/vnd.custom+json")
		w := serve(t, r, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"accepted":"application/json"}`, w.Body.String())
	})

	t.Run("unsupported content type is 415", func(t *testing.T) {
		t.Parallel()

		req := bodyRequest(http.MethodPost, "/data", "plain")
		req.Header.Set("Content-Type", "text/plain")
		w := serve(t, r, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	})
}

func TestServeHTTPBodyLimits(t *testing.T) {
	t.Parallel()

	handled := false
	r := MustNew(WithMaxContentLength(16))
	require.NoError(t, r.POST("/ingest", func(c *Context, args Args) (any, error) {
		handled = true
		return nil, nil
	}, BodyBinding("payload", JSONBody[map[string]any]())))
	require.NoError(t, r.Freeze())

	t.Run("missing content length is 411", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(`{}`))
		w := serve(t, r, req)
		assert.Equal(t, http.StatusLengthRequired, w.Code)
		assert.False(t, handled)
	})

	t.Run("oversized body rejected before the handler runs", func(t *testing.T) {
		req := bodyRequest(http.MethodPost, "/ingest", `{"k":"`+strings.Repeat("v", 64)+`"}`)
		w := serve(t, r, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.False(t, handled)
	})
}

func TestServeHTTPOptionalParameterDefaults(t *testing.T) {
	t.Parallel()

	// one handler serving two patterns of different arity
	handler := func(c *Context, args Args) (any, error) {
		if args.Value("variant") == nil {
			return map[string]any{"variant": "all"}, nil
		}
		return map[string]any{"variant": args.String("variant")}, nil
	}

	r := MustNew()
	require.NoError(t, r.GET("/abc", handler, Defaults(map[string]any{"variant": nil})))
	require.NoError(t, r.GET("/abc/{variant}", handler))
	require.NoError(t, r.Freeze())

	w := serve(t, r, httptest.NewRequest(http.MethodGet, "/abc", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"variant":"all"}`, w.Body.String())

	w = serve(t, r, httptest.NewRequest(http.MethodGet, "/abc/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"variant":"x"}`, w.Body.String())
}

func TestServeHTTPErrorMapping(t *testing.T) {
	t.Parallel()

	r := MustNew()
	require.NoError(t, r.GET("/teapot", func(c *Context, args Args) (any, error) {
		return nil, NewError(http.StatusTeapot, "short and stout")
	}))
	require.NoError(t, r.GET("/broken", func(c *Context, args Args) (any, error) {
		return nil, errors.New("connection refused to backend 10.0.0.7")
	}))
	require.NoError(t, r.GET("/panics", func(c *Context, args Args) (any, error) {
		panic("boom")
	}))
	require.NoError(t, r.Freeze())

	t.Run("status error maps to its status and message", func(t *testing.T) {
		t.Parallel()

		w := serve(t, r, httptest.NewRequest(http.MethodGet, "/teapot", nil))
		assert.Equal(t, http.StatusTeapot, w.Code)
		assert.Equal(t, "short and stout", w.Body.String())
	})

	t.Run("unclassified error is a detail-free 500", func(t *testing.T) {
		t.Parallel()

		w := serve(t, r, httptest.NewRequest(http.MethodGet, "/broken", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "Internal Server Error", w.Body.String())
		assert.NotContains(t, w.Body.String(), "10.0.0.7")
	})

	t.Run("handler panic is recovered into a 500", func(t *testing.T) {
		t.Parallel()

		w := serve(t, r, httptest.NewRequest(http.MethodGet, "/panics", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestServeHTTPCustomErrorHandler(t *testing.T) {
	t.Parallel()

	r := MustNew(WithErrorHandler(func(c *Context, err error) any {
		return &Response{
			Status: http.StatusServiceUnavailable,
			Body:   map[string]any{"error": err.Error()},
		}
	}))
	require.NoError(t, r.GET("/x", func(c *Context, args Args) (any, error) {
		return nil, errors.New("try later")
	}))
	require.NoError(t, r.Freeze())

	w := serve(t, r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"error":"try later"}`, w.Body.String())
}

func TestServeHTTPHooks(t *testing.T) {
	t.Parallel()

	t.Run("before request short-circuits", func(t *testing.T) {
		t.Parallel()

		r := MustNew(WithBeforeRequest(func(rt *Route, c *Context) (any, error) {
			if rt.Metadata["role"] == "admin" && c.Header().Get("Authorization") == "" {
				return nil, NewError(http.StatusUnauthorized, "")
			}
			return nil, nil
		}))
		require.NoError(t, r.GET("/admin", okHandler, Metadata(map[string]any{"role": "admin"})))
		require.NoError(t, r.GET("/public", func(c *Context, args Args) (any, error) {
			return "open", nil
		}))
		require.NoError(t, r.Freeze())

		w := serve(t, r, httptest.NewRequest(http.MethodGet, "/admin", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		w = serve(t, r, httptest.NewRequest(http.MethodGet, "/public", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("before request result replaces the handler", func(t *testing.T) {
		t.Parallel()

		r := MustNew(WithBeforeRequest(func(rt *Route, c *Context) (any, error) {
			return "intercepted", nil
		}))
		called := false
		require.NoError(t, r.GET("/x", func(c *Context, args Args) (any, error) {
			called = true
			return "handler", nil
		}))
		require.NoError(t, r.Freeze())

		w := serve(t, r, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, "intercepted", w.Body.String())
		assert.False(t, called)
	})

	t.Run("after request sees final status and mutates headers", func(t *testing.T) {
		t.Parallel()

		var seenStatus int
		r := MustNew(WithAfterRequest(func(status int, header http.Header, c *Context) {
			seenStatus = status
			header.Set("X-Request-Id", "abc-123")
		}))
		require.NoError(t, r.GET("/x", func(c *Context, args Args) (any, error) {
			return &Response{Status: http.StatusCreated, Body: "made"}, nil
		}))
		require.NoError(t, r.Freeze())

		w := serve(t, r, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusCreated, seenStatus)
		assert.Equal(t, "abc-123", w.Header().Get("X-Request-Id"))
	})
}

func TestFreezeValidatesTypedDefaults(t *testing.T) {
	t.Parallel()

	t.Run("mismatched default type", func(t *testing.T) {
		t.Parallel()

		r := MustNew()
		require.NoError(t, r.GET("/abc", okHandler, Defaults(map[string]any{"count": "five"})))
		require.NoError(t, r.GET("/abc/{count:int}", okHandler))
		assert.ErrorIs(t, r.Freeze(), ErrDefaultType)

		// every later call reports the same outcome
		assert.ErrorIs(t, r.Freeze(), ErrDefaultType)
	})

	t.Run("matching default type", func(t *testing.T) {
		t.Parallel()

		r := MustNew()
		require.NoError(t, r.GET("/abc", okHandler, Defaults(map[string]any{"count": 5})))
		require.NoError(t, r.GET("/abc/{count:int}", okHandler))
		assert.NoError(t, r.Freeze())
	})

	t.Run("nil default always passes", func(t *testing.T) {
		t.Parallel()

		r := MustNew()
		require.NoError(t, r.GET("/abc", okHandler, Defaults(map[string]any{"count": nil})))
		require.NoError(t, r.GET("/abc/{count:int}", okHandler))
		assert.NoError(t, r.Freeze())
	})

	t.Run("serving an invalid table panics", func(t *testing.T) {
		t.Parallel()

		r := MustNew()
		require.NoError(t, r.GET("/abc", okHandler, Defaults(map[string]any{"count": "five"})))
		require.NoError(t, r.GET("/abc/{count:int}", okHandler))

		assert.Panics(t, func() {
			serve(t, r, httptest.NewRequest(http.MethodGet, "/abc", nil))
		})
	})
}

func TestServeHTTPImplicitFreeze(t *testing.T) {
	t.Parallel()

	r := MustNew()
	require.NoError(t, r.GET("/x", func(c *Context, args Args) (any, error) {
		return "ok", nil
	}))

	// first request freezes the table
	w := serve(t, r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	assert.ErrorIs(t, r.GET("/late", okHandler), ErrFrozen)
}

func TestServeHTTPCustomParamType(t *testing.T) {
	t.Parallel()

	r := MustNew(WithParamType("hex", hexParser{}))
	require.NoError(t, r.GET("/blobs/{ref:hex}", func(c *Context, args Args) (any, error) {
		return map[string]any{"ref": args.Value("ref")}, nil
	}))
	require.NoError(t, r.Freeze())

	w := serve(t, r, httptest.NewRequest(http.MethodGet, "/blobs/cafe", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ref":"cafe"}`, w.Body.String())

	w = serve(t, r, httptest.NewRequest(http.MethodGet, "/blobs/zzzz", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type hexParser struct{}

func (hexParser) Parse(raw string) (any, error) {
	if raw == "" {
		return nil, errSegmentMismatch
	}
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return nil, errSegmentMismatch
		}
	}
	return raw, nil
}

func (hexParser) GoType() reflect.Type { return reflect.TypeOf("") }

func TestNewValidatesOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts []Option
	}{
		{name: "negative max content length", opts: []Option{WithMaxContentLength(-1)}},
		{name: "empty start marker", opts: []Option{WithParameterMarkers("", "")}},
		{name: "no-content status requiring a body", opts: []Option{WithDefaultNoContentStatus(http.StatusOK)}},
		{name: "gzip level out of range", opts: []Option{WithGzipLevel(42)}},
		{name: "brotli level out of range", opts: []Option{WithBrotliLevel(12)}},
		{name: "duplicate parameter type", opts: []Option{
			WithParamType("hex", hexParser{}),
			WithParamType("hex", hexParser{}),
		}},
		{name: "nil codec", opts: []Option{WithCodec(nil)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := New(tt.opts...)
			assert.Error(t, err)
			assert.Panics(t, func() { MustNew(tt.opts...) })
		})
	}
}

func TestServeHTTPConcurrent(t *testing.T) {
	t.Parallel()

	r := MustNew()
	require.NoError(t, r.GET("/users/{id:int}", func(c *Context, args Args) (any, error) {
		return map[string]any{"id": args.Int("id")}, nil
	}))
	require.NoError(t, r.Freeze())

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 50; j++ {
				id := n*100 + j
				w := serve(t, r, httptest.NewRequest(http.MethodGet,
					fmt.Sprintf("/users/%d", id), nil))
				assert.Equal(t, http.StatusOK, w.Code)
				assert.JSONEq(t, fmt.Sprintf(`{"id":%d}`, id), w.Body.String())
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
