// Package staticfileserver serves a single-page application build: files
// under a document root, an index.html fallback for client-side routes and
// a rewrite of image-optimizer URLs back to local files or redirects.
package staticfileserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/spaserve/internal/config"
	"example.com/spaserve/internal/http1"
	"example.com/spaserve/internal/logger"
)

const defaultRequestBufferSize = 1024

// StaticFileServer answers one request per connection.
type StaticFileServer struct {
	resolver    *Resolver
	fsys        FileSystem
	log         *logger.Logger
	bufferSize  int
	readTimeout time.Duration
	newConnID   func() string
}

// New creates a StaticFileServer for cfg using the real filesystem.
func New(cfg *config.Config, lg *logger.Logger) (*StaticFileServer, error) {
	return NewWithFileSystem(cfg, lg, osFS{})
}

// NewWithFileSystem is New with an explicit FileSystem.
func NewWithFileSystem(cfg *config.Config, lg *logger.Logger, fsys FileSystem) (*StaticFileServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if lg == nil {
		lg = logger.NewDiscardLogger()
	}
	if fsys == nil {
		fsys = osFS{}
	}
	resolver, err := NewResolver(cfg.Static, fsys, lg)
	if err != nil {
		return nil, fmt.Errorf("StaticFileServer: %w", err)
	}

	sfs := &StaticFileServer{
		resolver:   resolver,
		fsys:       fsys,
		log:        lg,
		bufferSize: defaultRequestBufferSize,
		newConnID:  uuid.NewString,
	}
	if cfg.Server != nil {
		if cfg.Server.RequestBufferSize != nil && *cfg.Server.RequestBufferSize > 0 {
			sfs.bufferSize = *cfg.Server.RequestBufferSize
		}
		sfs.readTimeout = cfg.Server.ReadTimeout.Value()
	}
	return sfs, nil
}

// Resolver returns the path resolver used by the server.
func (sfs *StaticFileServer) Resolver() *Resolver { return sfs.resolver }

// ServeConn reads one request from conn, writes one response and closes
// conn. Read failures other than an immediate EOF abort the connection
// without a response. Cancelling ctx unblocks a pending read.
func (sfs *StaticFileServer) ServeConn(ctx context.Context, conn net.Conn) {
	start := time.Now()
	connID := sfs.newConnID()
	lg := sfs.log.With(logger.LogFields{"conn_id": connID})
	defer conn.Close()

	if sfs.readTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(sfs.readTimeout)); err != nil {
			lg.Warn("Failed to set read deadline", logger.LogFields{"error": err.Error()})
		}
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	lg.Debug("New connection received", logger.LogFields{"remote_addr": remoteAddr(conn)})

	buf := make([]byte, sfs.bufferSize)
	n, err := conn.Read(buf)
	if err != nil && n == 0 && !errors.Is(err, io.EOF) {
		lg.Warn("Failed to read request", logger.LogFields{
			"remote_addr": remoteAddr(conn),
			"error":       err.Error(),
		})
		return
	}

	line := http1.FirstLine(buf[:n])
	lg.Debug("Received request", logger.LogFields{"request_line": line, "bytes": n})

	var target Target
	req, err := http1.ParseRequestLine(line)
	if err != nil {
		target = Target{Kind: MethodNotAllowed}
	} else {
		target = sfs.resolver.resolve(req.Target, lg)
	}

	resp := sfs.respond(target, lg)

	cw := &countingWriter{w: conn}
	bw := bufio.NewWriter(cw)
	var sendErr error
	if _, err := resp.WriteTo(bw); err != nil {
		sendErr = err
		lg.Error("Error sending response", logger.LogFields{"error": err.Error()})
	}
	if err := bw.Flush(); err != nil {
		sendErr = err
		lg.Error("Error flushing stream", logger.LogFields{"error": err.Error()})
	}

	method, uri := requestLineFields(line)
	entry := logger.AccessEntry{
		RemoteAddr:    remoteAddr(conn),
		Method:        method,
		URI:           uri,
		Status:        resp.StatusCode,
		ResponseBytes: bodyBytesSent(resp, cw.n),
		Duration:      time.Since(start),
		TargetKind:    target.Kind.String(),
	}
	if sendErr != nil {
		entry.Error = sendErr.Error()
	}
	lg.Access(entry)
}

// countingWriter counts the bytes accepted by the underlying writer.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// bodyBytesSent converts the wire bytes written for resp into body bytes.
func bodyBytesSent(resp *http1.Response, wire int64) int64 {
	head := int64(resp.HeadLen())
	if wire <= head {
		return 0
	}
	return wire - head
}

// Respond builds the wire response for a resolved target.
func (sfs *StaticFileServer) Respond(target Target) *http1.Response {
	return sfs.respond(target, sfs.log)
}

func (sfs *StaticFileServer) respond(target Target, lg *logger.Logger) *http1.Response {
	switch target.Kind {
	case MethodNotAllowed:
		return http1.MethodNotAllowed()
	case Redirect:
		return http1.Found(target.Location)
	case NotFound:
		return http1.NotFound()
	case ServeFile, ServeIndexFallback:
		contents, err := sfs.fsys.ReadFile(target.Path)
		if err != nil {
			body := http1.BodyErrorReadingFile
			if target.Kind == ServeIndexFallback {
				body = http1.BodyErrorReadingIndex
			}
			lg.Error("Error reading file", logger.LogFields{
				"path":        target.Path,
				"target_kind": target.Kind.String(),
				"error":       err.Error(),
			})
			return http1.InternalServerError(body)
		}
		lg.Debug("File found, sending response", logger.LogFields{
			"path":         target.Path,
			"content_type": target.ContentType,
			"bytes":        len(contents),
		})
		return http1.OK(target.ContentType, contents)
	default:
		lg.Error("Unknown target kind", logger.LogFields{"target_kind": target.Kind.String()})
		return http1.InternalServerError(http1.BodyErrorReadingFile)
	}
}

// requestLineFields returns the first two tokens of line for the access log,
// whether or not the request was accepted.
func requestLineFields(line string) (method, uri string) {
	parts := strings.Fields(line)
	if len(parts) > 0 {
		method = parts[0]
	}
	if len(parts) > 1 {
		uri = parts[1]
	}
	return method, uri
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
