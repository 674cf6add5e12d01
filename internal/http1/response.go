package http1

import (
	"io"
	"strconv"
)

const (
	crlf  = "\r\n"
	proto = "HTTP/1.1"
)

// Plain-text bodies of the fixed responses.
const (
	BodyMethodNotAllowed  = "Method not allowed!"
	BodyNotFound          = "File not found!"
	BodyErrorReadingFile  = "Error reading file"
	BodyErrorReadingIndex = "Error reading index.html"
)

const (
	ContentTypePlainText = "text/plain"
	ContentTypeHTML      = "text/html"
)

const (
	headerConnectionClose  = "close"
	headerNameConnection   = "Connection"
	headerNameContentType  = "Content-Type"
	headerNameContentLen   = "Content-Length"
	headerNameLocation     = "Location"
	reasonOK               = "OK"
	reasonFound            = "Found"
	reasonNotFound         = "NOT FOUND"
	reasonMethodNotAllowed = "Method Not Allowed"
	reasonInternalError    = "Internal Server Error"
)

// HeaderField is a single response header, written in slice order.
type HeaderField struct {
	Name  string
	Value string
}

// Response is a complete, single-shot HTTP/1.1 response.
type Response struct {
	StatusCode int
	Reason     string
	Header     []HeaderField
	Body       []byte
}

// HeaderValue returns the first value of the named header.
func (r *Response) HeaderValue(name string) (string, bool) {
	for _, h := range r.Header {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

// OK is a 200 carrying body with an exact Content-Length.
func OK(contentType string, body []byte) *Response {
	return &Response{
		StatusCode: 200,
		Reason:     reasonOK,
		Header: []HeaderField{
			{headerNameContentType, contentType},
			{headerNameContentLen, strconv.Itoa(len(body))},
			{headerNameConnection, headerConnectionClose},
		},
		Body: body,
	}
}

// Found is a 302 redirect with an empty body.
func Found(location string) *Response {
	return &Response{
		StatusCode: 302,
		Reason:     reasonFound,
		Header: []HeaderField{
			{headerNameLocation, location},
			{headerNameConnection, headerConnectionClose},
		},
	}
}

// NotFound is the plain-text 404.
func NotFound() *Response {
	return plainText(404, reasonNotFound, BodyNotFound)
}

// MethodNotAllowed is the 405 sent for anything but a GET request line.
func MethodNotAllowed() *Response {
	return &Response{
		StatusCode: 405,
		Reason:     reasonMethodNotAllowed,
		Header:     []HeaderField{{headerNameConnection, headerConnectionClose}},
		Body:       []byte(BodyMethodNotAllowed),
	}
}

// InternalServerError is a plain-text 500 with the given body.
func InternalServerError(body string) *Response {
	return plainText(500, reasonInternalError, body)
}

func plainText(code int, reason, body string) *Response {
	return &Response{
		StatusCode: code,
		Reason:     reason,
		Header: []HeaderField{
			{headerNameContentType, ContentTypePlainText},
			{headerNameConnection, headerConnectionClose},
		},
		Body: []byte(body),
	}
}

// WriteTo writes the status line, headers, blank line and body to w in a
// single Write. It does not flush; callers using a buffered writer flush it.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r.Bytes())
	return int64(n), err
}

// Bytes renders the full wire form of the response.
func (r *Response) Bytes() []byte {
	buf := make([]byte, 0, r.HeadLen()+len(r.Body))
	return append(r.appendHead(buf), r.Body...)
}

// HeadLen is the length of the status line and headers, including the
// blank line that ends them.
func (r *Response) HeadLen() int {
	n := len(proto) + 1 + len(strconv.Itoa(r.StatusCode)) + 1 + len(r.Reason) + len(crlf)
	for _, h := range r.Header {
		n += len(h.Name) + 2 + len(h.Value) + len(crlf)
	}
	return n + len(crlf)
}

func (r *Response) appendHead(buf []byte) []byte {
	buf = append(buf, proto...)
	buf = append(buf, ' ')
	buf = strconv.AppendInt(buf, int64(r.StatusCode), 10)
	buf = append(buf, ' ')
	buf = append(buf, r.Reason...)
	buf = append(buf, crlf...)
	for _, h := range r.Header {
		buf = append(buf, h.Name...)
		buf = append(buf, ": "...)
		buf = append(buf, h.Value...)
		buf = append(buf, crlf...)
	}
	return append(buf, crlf...)
}
