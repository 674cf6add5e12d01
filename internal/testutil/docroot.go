// Package testutil holds fixtures shared by package and end-to-end tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"example.com/spaserve/internal/config"
)

// DefaultIndexHTML is the index.html body written by NewSPADocRoot.
const DefaultIndexHTML = "<!doctype html><html><body><div id=\"root\"></div></body></html>"

// WriteDocRoot creates a document root in a directory from t.TempDir() and
// writes files into it. Keys are slash-separated paths relative to the root;
// parent directories are created as needed. The absolute root is returned.
func WriteDocRoot(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", rel, err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", rel, err)
		}
	}
	return root
}

// NewSPADocRoot writes a small compiled SPA: an index page, a script, a
// stylesheet and an image under photos/.
func NewSPADocRoot(t *testing.T) string {
	t.Helper()
	return WriteDocRoot(t, map[string]string{
		"index.html":        DefaultIndexHTML,
		"app.js":            "console.log('app');",
		"styles/site.css":   "body{margin:0}",
		"photos/a.png":      "\x89PNG\r\n\x1a\nfake",
		"favicon.ico":       "ico",
		"data/config.json":  `{"ok":true}`,
		"fonts/inter.woff2": "wOF2",
		"README":            "no extension",
	})
}

// NewConfig returns a defaulted config serving root on an ephemeral
// loopback port.
func NewConfig(t *testing.T, root string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Server: &config.ServerConfig{Address: stringPtr("127.0.0.1:0")},
		Static: &config.StaticFileServerConfig{DocumentRoot: root},
	}
	if err := config.ApplyDefaults(cfg); err != nil {
		t.Fatalf("failed to apply config defaults: %v", err)
	}
	return cfg
}

func stringPtr(s string) *string { return &s }
