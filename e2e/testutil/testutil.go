// Package testutil runs the server in-process on a loopback port and talks
// to it with raw HTTP/1.1 requests.
package testutil

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"example.com/spaserve/internal/config"
	"example.com/spaserve/internal/handlers/staticfileserver"
	"example.com/spaserve/internal/logger"
	"example.com/spaserve/internal/server"
)

// BodyMatcher defines a way to match the response body.
type BodyMatcher interface {
	Match(body []byte) (bool, string) // match status and a description of the mismatch
}

// ExactBodyMatcher matches the body exactly.
type ExactBodyMatcher struct {
	ExpectedBody []byte
}

func (m *ExactBodyMatcher) Match(body []byte) (bool, string) {
	if bytes.Equal(m.ExpectedBody, body) {
		return true, ""
	}
	return false, fmt.Sprintf("bodies do not match exactly. Expected: %q, Got: %q", string(m.ExpectedBody), string(body))
}

// StringContainsBodyMatcher checks if the body contains a specific substring.
type StringContainsBodyMatcher struct {
	Substring string
}

func (m *StringContainsBodyMatcher) Match(body []byte) (bool, string) {
	if bytes.Contains(body, []byte(m.Substring)) {
		return true, ""
	}
	return false, fmt.Sprintf("body does not contain substring: %q. Body: %q", m.Substring, string(body))
}

// ExpectedResponse models the expected outcome of a request.
type ExpectedResponse struct {
	StatusCode   int
	Reason       string            // optional, compared against the status line
	Headers      map[string]string // exact header values
	BodyMatcher  BodyMatcher
	ExpectNoBody bool
}

// ActualResponse is a parsed response together with its raw bytes.
type ActualResponse struct {
	StatusCode int
	Status     string // e.g. "404 NOT FOUND"
	Headers    http.Header // Connection is consumed by the parser, see Close
	Close      bool        // the response carried Connection: close
	Body       []byte
	Raw        []byte
}

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// ServerInstance is a server running inside the test process.
type ServerInstance struct {
	Config  *config.Config
	Address string
	Server  *server.Server

	logs    *syncBuffer
	cancel  context.CancelFunc
	errCh   chan error
	stopErr error
	once    sync.Once
}

// Logs returns everything the server has logged so far (error and access
// logs interleaved, one JSON object per line).
func (s *ServerInstance) Logs() string { return s.logs.String() }

// StartServer builds the handler and server for cfg, serves on a listener
// bound to cfg.Server.Address and waits until it is accepting. The server
// is stopped when the test ends.
func StartServer(t *testing.T, cfg *config.Config) *ServerInstance {
	t.Helper()
	logs := &syncBuffer{}
	lg := logger.NewTestLogger(logs)

	handler, err := staticfileserver.New(cfg, lg)
	if err != nil {
		t.Fatalf("failed to create static file server: %v", err)
	}
	srv, err := server.NewServer(cfg, lg, handler)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	si := &ServerInstance{Config: cfg, Server: srv, logs: logs, cancel: cancel, errCh: make(chan error, 1)}
	go func() { si.errCh <- srv.ListenAndServe(ctx) }()

	select {
	case <-srv.Ready():
	case err := <-si.errCh:
		cancel()
		t.Fatalf("server exited during startup: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("server did not start listening within 5s")
	}
	si.Address = srv.Addr().String()
	t.Cleanup(func() {
		if err := si.Stop(); err != nil {
			t.Errorf("error stopping server: %v", err)
		}
	})
	return si
}

// Stop shuts the server down and waits for Serve to return. It is safe to
// call more than once.
func (s *ServerInstance) Stop() error {
	s.once.Do(func() {
		s.cancel()
		select {
		case s.stopErr = <-s.errCh:
		case <-time.After(35 * time.Second):
			s.stopErr = fmt.Errorf("server did not stop within 35s")
		}
	})
	return s.stopErr
}

// Do sends raw bytes on a fresh connection and reads until the server closes
// it.
func Do(addr string, raw string) (ActualResponse, error) {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return ActualResponse{}, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return ActualResponse{}, err
	}
	if _, err := io.WriteString(conn, raw); err != nil {
		return ActualResponse{}, fmt.Errorf("failed to write request: %w", err)
	}
	data, err := io.ReadAll(conn)
	if err != nil {
		return ActualResponse{}, fmt.Errorf("failed to read response: %w", err)
	}
	return ParseResponse(data)
}

// Get is Do with a minimal "GET <target> HTTP/1.1" request.
func Get(addr, target string) (ActualResponse, error) {
	return Do(addr, "GET "+target+" HTTP/1.1\r\nHost: "+addr+"\r\n\r\n")
}

// ParseResponse parses a complete response read up to connection close.
func ParseResponse(raw []byte) (ActualResponse, error) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), nil)
	if err != nil {
		return ActualResponse{Raw: raw}, fmt.Errorf("malformed response %q: %w", raw, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ActualResponse{Raw: raw}, fmt.Errorf("failed to read response body: %w", err)
	}
	return ActualResponse{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Headers:    resp.Header,
		Close:      resp.Close,
		Body:       body,
		Raw:        raw,
	}, nil
}

// AssertResponse reports every way actual differs from expected.
func AssertResponse(t *testing.T, actual ActualResponse, expected ExpectedResponse) {
	t.Helper()
	if actual.StatusCode != expected.StatusCode {
		t.Errorf("status = %d, want %d (raw %q)", actual.StatusCode, expected.StatusCode, actual.Raw)
	}
	if expected.Reason != "" && !strings.HasSuffix(actual.Status, " "+expected.Reason) {
		t.Errorf("status line %q does not end with reason %q", actual.Status, expected.Reason)
	}
	for name, want := range expected.Headers {
		if http.CanonicalHeaderKey(name) == "Connection" {
			if !strings.EqualFold(want, "close") || !actual.Close {
				t.Errorf("header Connection: close=%t, want %q", actual.Close, want)
			}
			continue
		}
		if got := actual.Headers.Get(name); got != want {
			t.Errorf("header %s = %q, want %q", name, got, want)
		}
	}
	if expected.ExpectNoBody {
		if len(actual.Body) != 0 {
			t.Errorf("expected empty body, got %q", actual.Body)
		}
		return
	}
	if expected.BodyMatcher != nil {
		if ok, msg := expected.BodyMatcher.Match(actual.Body); !ok {
			t.Error(msg)
		}
	}
}

// WriteTempConfig writes configData as a json, toml or yaml file in a
// temporary directory and returns its path.
func WriteTempConfig(t *testing.T, configData interface{}, format string) string {
	t.Helper()
	var data []byte
	var err error
	var ext string

	switch strings.ToLower(format) {
	case "json":
		data, err = json.MarshalIndent(configData, "", "  ")
		ext = ".json"
	case "toml":
		buf := new(bytes.Buffer)
		if err = toml.NewEncoder(buf).Encode(configData); err == nil {
			data = buf.Bytes()
		}
		ext = ".toml"
	case "yaml":
		data, err = yaml.Marshal(configData)
		ext = ".yaml"
	default:
		err = fmt.Errorf("unsupported config format: %s", format)
	}
	if err != nil {
		t.Fatalf("failed to marshal config data to %s: %v", format, err)
	}

	path := filepath.Join(t.TempDir(), "config"+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write temp config file: %v", err)
	}
	return path
}
