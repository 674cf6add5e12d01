package http1

import (
	"bytes"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstLine(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want string
	}{
		{"crlf request", []byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"), "GET / HTTP/1.1"},
		{"lf only", []byte("GET /a HTTP/1.1\nHost: x\n\n"), "GET /a HTTP/1.1"},
		{"no terminator", []byte("GET /partial"), "GET /partial"},
		{"empty", nil, ""},
		{"invalid utf8", []byte{'G', 'E', 'T', ' ', 0xff, 0xfe, '\r', '\n'}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FirstLine(tc.raw))
		})
	}
}

func TestParseRequestLine(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		wantTarget string
		wantErr    error
	}{
		{"get with version", "GET /index.html HTTP/1.1", "/index.html", nil},
		{"get without version", "GET /x", "/x", nil},
		{"extra whitespace", "  GET \t /a?b=c   HTTP/1.0 ", "/a?b=c", nil},
		{"version not validated", "GET / SPDY/99", "/", nil},
		{"post", "POST /x HTTP/1.1", "", ErrMethodNotAllowed},
		{"lowercase get", "get / HTTP/1.1", "", ErrMethodNotAllowed},
		{"head", "HEAD / HTTP/1.1", "", ErrMethodNotAllowed},
		{"method only", "GET", "", ErrMethodNotAllowed},
		{"empty", "", "", ErrMethodNotAllowed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := ParseRequestLine(tc.line)
			if tc.wantErr != nil {
				assert.True(t, errors.Is(err, tc.wantErr), "got err %v", err)
				assert.Nil(t, req)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, MethodGet, req.Method)
			assert.Equal(t, tc.wantTarget, req.Target)
		})
	}
}

func TestRequest_Path(t *testing.T) {
	tests := map[string]string{
		"/":                   "/",
		"/a/b.js?v=1":         "/a/b.js",
		"/q?x=1?y=2":          "/q",
		"/?":                  "/",
		"/no-query":           "/no-query",
		"/_next/image?url=%2F": "/_next/image",
	}
	for target, want := range tests {
		r := &Request{Method: MethodGet, Target: target}
		assert.Equal(t, want, r.Path(), "target %q", target)
	}
}

func TestParseQuery(t *testing.T) {
	t.Run("no query", func(t *testing.T) {
		q := ParseQuery("/path")
		assert.Equal(t, 0, q.Len())
		_, ok := q.Get("url")
		assert.False(t, ok)
	})

	t.Run("pairs in order", func(t *testing.T) {
		q := ParseQuery("/_next/image?url=%2Fa.png&w=200&q=80")
		assert.Equal(t, []string{"url", "w", "q"}, q.Keys())
		v, ok := q.Get("url")
		assert.True(t, ok)
		assert.Equal(t, "%2Fa.png", v, "values are not decoded")
		v, _ = q.Get("w")
		assert.Equal(t, "200", v)
	})

	t.Run("fragments without equals are dropped", func(t *testing.T) {
		q := ParseQuery("/x?flag&a=1&&b")
		assert.Equal(t, []string{"a"}, q.Keys())
	})

	t.Run("empty value kept", func(t *testing.T) {
		q := ParseQuery("/x?a=&b=2")
		v, ok := q.Get("a")
		assert.True(t, ok)
		assert.Equal(t, "", v)
	})

	t.Run("split on first equals only", func(t *testing.T) {
		q := ParseQuery("/x?url=a=b=c")
		v, _ := q.Get("url")
		assert.Equal(t, "a=b=c", v)
	})

	t.Run("later question marks are verbatim", func(t *testing.T) {
		q := ParseQuery("/x?a=1?b=2&c=3")
		v, _ := q.Get("a")
		assert.Equal(t, "1?b=2", v)
		v, _ = q.Get("c")
		assert.Equal(t, "3", v)
	})

	t.Run("duplicate keys overwrite keeping first position", func(t *testing.T) {
		q := ParseQuery("/x?a=1&b=2&a=3")
		assert.Equal(t, []string{"a", "b"}, q.Keys())
		v, _ := q.Get("a")
		assert.Equal(t, "3", v)
	})
}

func TestResponseWireFormat(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
		want string
	}{
		{
			"ok",
			OK("image/png", []byte("PNGDATA")),
			"HTTP/1.1 200 OK\r\nContent-Type: image/png\r\nContent-Length: 7\r\nConnection: close\r\n\r\nPNGDATA",
		},
		{
			"redirect",
			Found("https://example.com/x.png"),
			"HTTP/1.1 302 Found\r\nLocation: https://example.com/x.png\r\nConnection: close\r\n\r\n",
		},
		{
			"not found",
			NotFound(),
			"HTTP/1.1 404 NOT FOUND\r\nContent-Type: text/plain\r\nConnection: close\r\n\r\nFile not found!",
		},
		{
			"method not allowed",
			MethodNotAllowed(),
			"HTTP/1.1 405 Method Not Allowed\r\nConnection: close\r\n\r\nMethod not allowed!",
		},
		{
			"internal error",
			InternalServerError(BodyErrorReadingFile),
			"HTTP/1.1 500 Internal Server Error\r\nContent-Type: text/plain\r\nConnection: close\r\n\r\nError reading file",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			n, err := tc.resp.WriteTo(&buf)
			require.NoError(t, err)
			assert.Equal(t, tc.want, buf.String())
			assert.Equal(t, int64(len(tc.want)), n)
			assert.Equal(t, tc.want, string(tc.resp.Bytes()))
			assert.Equal(t, len(tc.want)-len(tc.resp.Body), tc.resp.HeadLen())
		})
	}
}

func TestOK_ContentLengthMatchesBody(t *testing.T) {
	for _, size := range []int{0, 1, 1023, 1024, 70000} {
		body := bytes.Repeat([]byte{'x'}, size)
		resp := OK("application/octet-stream", body)
		cl, ok := resp.HeaderValue("Content-Length")
		require.True(t, ok)
		assert.Equal(t, strconv.Itoa(size), cl)

		wire := resp.Bytes()
		sep := bytes.Index(wire, []byte("\r\n\r\n"))
		require.GreaterOrEqual(t, sep, 0)
		assert.Len(t, wire[sep+4:], size)
	}
}

func TestEveryResponseClosesConnection(t *testing.T) {
	for _, resp := range []*Response{OK("text/html", nil), Found("/x"), NotFound(), MethodNotAllowed(), InternalServerError("x")} {
		v, ok := resp.HeaderValue("Connection")
		assert.True(t, ok, "status %d", resp.StatusCode)
		assert.Equal(t, "close", v)
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("broken pipe") }

func TestResponseWriteToError(t *testing.T) {
	_, err := OK("text/html", []byte("x")).WriteTo(failingWriter{})
	assert.EqualError(t, err, "broken pipe")
}
