package staticfileserver

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"example.com/spaserve/internal/config"
	"example.com/spaserve/internal/http1"
	"example.com/spaserve/internal/logger"
	"example.com/spaserve/internal/router"
)

// TargetKind says what a request resolved to.
type TargetKind int

const (
	ServeFile TargetKind = iota
	ServeIndexFallback
	Redirect
	MethodNotAllowed
	NotFound
)

func (k TargetKind) String() string {
	switch k {
	case ServeFile:
		return "ServeFile"
	case ServeIndexFallback:
		return "ServeIndexFallback"
	case Redirect:
		return "Redirect"
	case MethodNotAllowed:
		return "MethodNotAllowed"
	case NotFound:
		return "NotFound"
	default:
		return fmt.Sprintf("TargetKind(%d)", int(k))
	}
}

// Target is the outcome of resolving one request target.
type Target struct {
	Kind TargetKind
	// Path is the filesystem path to read, for ServeFile and ServeIndexFallback.
	Path string
	// ContentType is set for ServeFile and ServeIndexFallback.
	ContentType string
	// Location is set for Redirect.
	Location string
}

// FileSystem is the part of the filesystem the resolver and pipeline touch.
type FileSystem interface {
	Stat(name string) (fs.FileInfo, error)
	ReadFile(name string) ([]byte, error)
}

type osFS struct{}

func (osFS) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }

func (osFS) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

// OSFileSystem returns a FileSystem backed by the os package.
func OSFileSystem() FileSystem { return osFS{} }

// Resolver maps request targets to Targets under a document root. It holds no
// mutable state and is safe for concurrent use.
type Resolver struct {
	root      string
	indexFile string
	strict    bool
	images    *router.Router
	mime      *MimeTypeResolver
	fsys      FileSystem
	log       *logger.Logger
}

// NewResolver creates a Resolver for cfg. The document root is made absolute
// and cleaned; it does not have to exist yet.
func NewResolver(cfg *config.StaticFileServerConfig, fsys FileSystem, lg *logger.Logger) (*Resolver, error) {
	if cfg == nil {
		return nil, fmt.Errorf("static file server configuration cannot be nil")
	}
	if fsys == nil {
		fsys = osFS{}
	}
	if lg == nil {
		lg = logger.NewDiscardLogger()
	}
	root, err := filepath.Abs(cfg.DocumentRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve document root %q: %w", cfg.DocumentRoot, err)
	}
	indexFile := cfg.IndexFile
	if indexFile == "" {
		indexFile = "index.html"
	}
	return &Resolver{
		root:      root,
		indexFile: indexFile,
		strict:    cfg.StrictAssetMissesEnabled(),
		images:    router.NewRouter(cfg.ImageRoutes),
		mime:      NewMimeTypeResolver(cfg.ResolvedMimeTypes),
		fsys:      fsys,
		log:       lg,
	}, nil
}

// Root returns the absolute document root.
func (r *Resolver) Root() string { return r.root }

// Resolve maps a raw request target (path plus optional query) to a Target.
func (r *Resolver) Resolve(rawTarget string) Target {
	return r.resolve(rawTarget, r.log)
}

func (r *Resolver) resolve(rawTarget string, lg *logger.Logger) Target {
	reqPath := http1.TargetPath(rawTarget)

	if r.images.Match(reqPath) {
		q := http1.ParseQuery(rawTarget)
		if rawURL, ok := q.Get("url"); ok {
			candidate := UnescapeImageURL(rawURL)
			if isAbsoluteHTTPURL(candidate) {
				return Target{Kind: Redirect, Location: candidate}
			}
			w, _ := q.Get("w")
			quality, _ := q.Get("q")
			lg.Debug("Image request rewritten to local file", logger.LogFields{
				"url":     candidate,
				"width":   w,
				"quality": quality,
			})
			reqPath = candidate
		}
	}

	if reqPath == "/" {
		reqPath = "/" + r.indexFile
	}

	filePath := filepath.Join(r.root, strings.TrimPrefix(reqPath, "/"))
	if !r.contains(filePath) {
		lg.Warn("Request path escapes document root", logger.LogFields{
			"target":        rawTarget,
			"resolved_path": filePath,
			"document_root": r.root,
		})
		return Target{Kind: NotFound}
	}

	fi, err := r.fsys.Stat(filePath)
	if err == nil && fi.Mode().IsRegular() {
		return Target{Kind: ServeFile, Path: filePath, ContentType: r.mime.GetMimeType(filePath)}
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		lg.Debug("Stat failed, treating path as missing", logger.LogFields{
			"path":  filePath,
			"error": err.Error(),
		})
	}

	if r.strict && r.mime.Known(filePath) {
		return Target{Kind: NotFound}
	}

	return Target{
		Kind:        ServeIndexFallback,
		Path:        filepath.Join(r.root, r.indexFile),
		ContentType: http1.ContentTypeHTML,
	}
}

// contains reports whether p, already cleaned by filepath.Join, lies at or
// under the document root.
func (r *Resolver) contains(p string) bool {
	if p == r.root {
		return true
	}
	prefix := r.root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p, prefix)
}
