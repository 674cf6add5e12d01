package staticfileserver

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/spaserve/internal/config"
	"example.com/spaserve/internal/logger"
	"example.com/spaserve/internal/testutil"
)

func newTestResolver(t *testing.T, root string, mutate func(*config.StaticFileServerConfig)) *Resolver {
	t.Helper()
	cfg := testutil.NewConfig(t, root)
	if mutate != nil {
		mutate(cfg.Static)
	}
	r, err := NewResolver(cfg.Static, nil, logger.NewDiscardLogger())
	require.NoError(t, err)
	return r
}

func TestNewResolver_NilConfig(t *testing.T) {
	_, err := NewResolver(nil, nil, nil)
	require.Error(t, err)
}

func TestResolver_Resolve(t *testing.T) {
	root := testutil.NewSPADocRoot(t)
	r := newTestResolver(t, root, nil)
	index := filepath.Join(root, "index.html")

	tests := []struct {
		name   string
		target string
		want   Target
	}{
		{"root serves index", "/", Target{Kind: ServeFile, Path: index, ContentType: "text/html"}},
		{"root with query", "/?utm=1", Target{Kind: ServeFile, Path: index, ContentType: "text/html"}},
		{"existing script", "/app.js", Target{Kind: ServeFile, Path: filepath.Join(root, "app.js"), ContentType: "application/javascript"}},
		{"query stripped", "/styles/site.css?v=3", Target{Kind: ServeFile, Path: filepath.Join(root, "styles", "site.css"), ContentType: "text/css"}},
		{"no extension file", "/README", Target{Kind: ServeFile, Path: filepath.Join(root, "README"), ContentType: "application/octet-stream"}},
		{"client route falls back", "/dashboard/settings", Target{Kind: ServeIndexFallback, Path: index, ContentType: "text/html"}},
		{"missing asset falls back", "/missing.js", Target{Kind: ServeIndexFallback, Path: index, ContentType: "text/html"}},
		{"directory falls back", "/photos", Target{Kind: ServeIndexFallback, Path: index, ContentType: "text/html"}},
		{
			"image route rewrites to local file",
			"/_next/image?url=%2Fphotos%2Fa.png&w=200&q=80",
			Target{Kind: ServeFile, Path: filepath.Join(root, "photos", "a.png"), ContentType: "image/png"},
		},
		{
			"image route double encoded",
			"/_next/image?url=%252Fphotos%252Fa.png",
			Target{Kind: ServeFile, Path: filepath.Join(root, "photos", "a.png"), ContentType: "image/png"},
		},
		{
			"image route https redirect",
			"/_next/image?url=https%3A%2F%2Fexample.com%2Fx.png&w=640&q=75",
			Target{Kind: Redirect, Location: "https://example.com/x.png"},
		},
		{
			"image route http redirect",
			"/_next/image?url=http%3A%2F%2Fcdn.example.com%2Fy.jpg",
			Target{Kind: Redirect, Location: "http://cdn.example.com/y.jpg"},
		},
		{
			"image route missing local file falls back",
			"/_next/image?url=%2Fphotos%2Fnope.png",
			Target{Kind: ServeIndexFallback, Path: index, ContentType: "text/html"},
		},
		{
			"image route without url falls through with the original path",
			"/_next/image?w=200",
			Target{Kind: ServeIndexFallback, Path: index, ContentType: "text/html"},
		},
		{
			"image route url without leading slash",
			"/_next/image?url=photos%2Fa.png",
			Target{Kind: ServeFile, Path: filepath.Join(root, "photos", "a.png"), ContentType: "image/png"},
		},
		{"traversal escapes root", "/../../etc/passwd", Target{Kind: NotFound}},
		{"traversal in middle escapes root", "/photos/../../secret.txt", Target{Kind: NotFound}},
		{"dot segments inside root", "/photos/../app.js", Target{Kind: ServeFile, Path: filepath.Join(root, "app.js"), ContentType: "application/javascript"}},
		{"dot segments through missing dir", "/nonexistent/../app.js", Target{Kind: ServeFile, Path: filepath.Join(root, "app.js"), ContentType: "application/javascript"}},
		{"image route traversal", "/_next/image?url=%2F..%2F..%2Fetc%2Fpasswd", Target{Kind: NotFound}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, r.Resolve(tc.target))
		})
	}
}

func TestResolver_SiblingDirectoryIsOutsideRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "dist")
	r := newTestResolver(t, root, nil)
	// "dist-private" shares the "dist" prefix but is not under it.
	assert.Equal(t, Target{Kind: NotFound}, r.Resolve("/../dist-private/key.pem"))
}

func TestResolver_StrictAssetMisses(t *testing.T) {
	root := testutil.NewSPADocRoot(t)
	r := newTestResolver(t, root, func(st *config.StaticFileServerConfig) {
		st.StrictAssetMisses = func(b bool) *bool { return &b }(true)
	})
	index := filepath.Join(root, "index.html")

	assert.Equal(t, Target{Kind: NotFound}, r.Resolve("/missing.js"))
	assert.Equal(t, Target{Kind: NotFound}, r.Resolve("/static/chunk.CSS?v=1"))
	assert.Equal(t, Target{Kind: NotFound}, r.Resolve("/_next/image?url=%2Fphotos%2Fnope.png"))
	assert.Equal(t, Target{Kind: ServeIndexFallback, Path: index, ContentType: "text/html"}, r.Resolve("/dashboard/settings"))
	assert.Equal(t, Target{Kind: ServeIndexFallback, Path: index, ContentType: "text/html"}, r.Resolve("/download.unknownext"))
	assert.Equal(t, ServeFile, r.Resolve("/app.js").Kind)
}

func TestResolver_CustomIndexAndRoutes(t *testing.T) {
	root := testutil.WriteDocRoot(t, map[string]string{
		"main.html":    "<main></main>",
		"img/logo.svg": "<svg/>",
	})
	r := newTestResolver(t, root, func(st *config.StaticFileServerConfig) {
		st.IndexFile = "main.html"
		st.ImageRoutes = []config.Route{{PathPattern: "/img-proxy", MatchType: config.MatchTypeExact}}
	})
	mainPage := filepath.Join(root, "main.html")

	assert.Equal(t, Target{Kind: ServeFile, Path: mainPage, ContentType: "text/html"}, r.Resolve("/"))
	assert.Equal(t, Target{Kind: ServeIndexFallback, Path: mainPage, ContentType: "text/html"}, r.Resolve("/about"))
	assert.Equal(t,
		Target{Kind: ServeFile, Path: filepath.Join(root, "img", "logo.svg"), ContentType: "image/svg+xml"},
		r.Resolve("/img-proxy?url=%2Fimg%2Flogo.svg"))
	// /_next/image is not configured here, so the url parameter is ignored.
	assert.Equal(t, ServeIndexFallback, r.Resolve("/_next/image?url=%2Fimg%2Flogo.svg").Kind)
}

func TestResolver_MimeOverrides(t *testing.T) {
	root := testutil.WriteDocRoot(t, map[string]string{"app.js": "x", "notes.md": "# hi"})
	r := newTestResolver(t, root, func(st *config.StaticFileServerConfig) {
		st.ResolvedMimeTypes = map[string]string{"js": "text/javascript", "md": "text/markdown"}
	})
	assert.Equal(t, "text/javascript", r.Resolve("/app.js").ContentType)
	assert.Equal(t, "text/markdown", r.Resolve("/notes.md").ContentType)
}

func TestResolver_LogsImageParameters(t *testing.T) {
	root := testutil.NewSPADocRoot(t)
	cfg := testutil.NewConfig(t, root)
	var buf bytes.Buffer
	r, err := NewResolver(cfg.Static, nil, logger.NewTestLogger(&buf))
	require.NoError(t, err)

	r.Resolve("/_next/image?url=%2Fphotos%2Fa.png&w=200&q=80")
	out := buf.String()
	assert.Contains(t, out, `"width":"200"`)
	assert.Contains(t, out, `"quality":"80"`)
	assert.Contains(t, out, `"url":"/photos/a.png"`)
}

func TestResolver_Idempotent(t *testing.T) {
	root := testutil.NewSPADocRoot(t)
	r := newTestResolver(t, root, nil)
	for _, target := range []string{"/", "/app.js", "/x/y", "/_next/image?url=%2Fphotos%2Fa.png"} {
		assert.Equal(t, r.Resolve(target), r.Resolve(target), "target %q", target)
	}
}

func TestTargetKind_String(t *testing.T) {
	assert.Equal(t, "ServeFile", ServeFile.String())
	assert.Equal(t, "ServeIndexFallback", ServeIndexFallback.String())
	assert.Equal(t, "Redirect", Redirect.String())
	assert.Equal(t, "MethodNotAllowed", MethodNotAllowed.String())
	assert.Equal(t, "NotFound", NotFound.String())
	assert.Equal(t, "TargetKind(42)", TargetKind(42).String())
}
