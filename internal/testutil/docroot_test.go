package testutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"example.com/spaserve/internal/testutil"
)

func TestWriteDocRoot(t *testing.T) {
	root := testutil.WriteDocRoot(t, map[string]string{
		"index.html":       "<html></html>",
		"nested/deep/a.js": "x",
	})
	if !filepath.IsAbs(root) {
		t.Fatalf("root %q is not absolute", root)
	}
	data, err := os.ReadFile(filepath.Join(root, "nested", "deep", "a.js"))
	if err != nil {
		t.Fatalf("nested file not written: %v", err)
	}
	if string(data) != "x" {
		t.Errorf("nested file content = %q, want %q", data, "x")
	}
}

func TestNewConfig(t *testing.T) {
	root := testutil.NewSPADocRoot(t)
	cfg := testutil.NewConfig(t, root)
	if cfg.Static.DocumentRoot != root {
		t.Errorf("DocumentRoot = %q, want %q", cfg.Static.DocumentRoot, root)
	}
	if *cfg.Server.Address != "127.0.0.1:0" {
		t.Errorf("Address = %q, want 127.0.0.1:0", *cfg.Server.Address)
	}
	if cfg.Static.IndexFile != "index.html" {
		t.Errorf("IndexFile = %q, want index.html", cfg.Static.IndexFile)
	}
	if _, err := os.Stat(filepath.Join(root, "index.html")); err != nil {
		t.Errorf("index.html missing from SPA doc root: %v", err)
	}
}
