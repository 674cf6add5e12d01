// Package http1 implements the small slice of HTTP/1.1 the server speaks:
// the request line of a single request and fixed-format responses.
package http1

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// MethodGet is the only method the server accepts.
const MethodGet = "GET"

// ErrMethodNotAllowed is returned for request lines that are not a GET with a target.
var ErrMethodNotAllowed = errors.New("http1: method not allowed")

// Request holds what the server uses from a request: the first line only.
type Request struct {
	Method string
	Target string // path plus optional query, exactly as sent
}

// FirstLine returns the first line of raw request bytes without its line
// terminator. Input that is not valid UTF-8 is treated as an empty request.
func FirstLine(raw []byte) string {
	if !utf8.Valid(raw) {
		return ""
	}
	s := string(raw)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSuffix(s, "\r")
}

// ParseRequestLine splits "<METHOD> <TARGET> <VERSION>" on whitespace. The
// version token is not checked. Fewer than two tokens, or any method other
// than GET, yields ErrMethodNotAllowed.
func ParseRequestLine(line string) (*Request, error) {
	parts := strings.Fields(line)
	if len(parts) < 2 || parts[0] != MethodGet {
		return nil, ErrMethodNotAllowed
	}
	return &Request{Method: parts[0], Target: parts[1]}, nil
}

// Path returns the target up to, not including, the first '?'.
func (r *Request) Path() string {
	return TargetPath(r.Target)
}

// Query parses the query part of the target.
func (r *Request) Query() *QueryParams {
	return ParseQuery(r.Target)
}

// TargetPath returns target up to, not including, the first '?'.
func TargetPath(target string) string {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i]
	}
	return target
}

// QueryParams is an insertion-ordered string map. A repeated key keeps its
// first position and takes the last value.
type QueryParams struct {
	keys   []string
	values map[string]string
}

// ParseQuery parses everything after the first '?' of target. The query is
// split on '&', then each fragment on its first '='. Fragments without '='
// are dropped. Nothing is percent-decoded.
func ParseQuery(target string) *QueryParams {
	q := &QueryParams{values: make(map[string]string)}
	i := strings.IndexByte(target, '?')
	if i < 0 {
		return q
	}
	for _, fragment := range strings.Split(target[i+1:], "&") {
		key, value, ok := strings.Cut(fragment, "=")
		if !ok {
			continue
		}
		q.set(key, value)
	}
	return q
}

func (q *QueryParams) set(key, value string) {
	if _, exists := q.values[key]; !exists {
		q.keys = append(q.keys, key)
	}
	q.values[key] = value
}

// Get returns the value for key and whether it was present.
func (q *QueryParams) Get(key string) (string, bool) {
	v, ok := q.values[key]
	return v, ok
}

// Keys returns the keys in first-occurrence order.
func (q *QueryParams) Keys() []string {
	out := make([]string, len(q.keys))
	copy(out, q.keys)
	return out
}

// Len returns the number of distinct keys.
func (q *QueryParams) Len() int {
	return len(q.keys)
}
