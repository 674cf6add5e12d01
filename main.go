package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"example.com/spaserve/internal/config"
	"example.com/spaserve/internal/handlers/staticfileserver"
	"example.com/spaserve/internal/logger"
	"example.com/spaserve/internal/server"
	"example.com/spaserve/internal/util"
)

// cliOptions holds command-line values. Empty strings mean "not given".
type cliOptions struct {
	dir        string
	addr       string
	configPath string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fatalf(stderr, "%v", err)
		return 2
	}

	cfg, err := buildConfig(opts)
	if err != nil {
		fatalf(stderr, "Invalid configuration: %v", err)
		return 1
	}

	lg, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		fatalf(stderr, "Failed to create logger: %v", err)
		return 1
	}
	defer lg.CloseLogFiles()

	handler, err := staticfileserver.New(cfg, lg)
	if err != nil {
		lg.Error("Failed to create static file server", logger.LogFields{"error": err.Error()})
		return 1
	}
	root := handler.Resolver().Root()
	if fi, err := os.Stat(root); err != nil || !fi.IsDir() {
		lg.Warn("Document root is not a readable directory; every request will fail", logger.LogFields{"document_root": root})
	}

	srv, err := server.NewServer(cfg, lg, handler)
	if err != nil {
		lg.Error("Failed to create server", logger.LogFields{"error": err.Error()})
		return 1
	}

	printBanner(stdout, *cfg.Server.Address, root, cfg.OriginalFilePath())
	lg.Info("Starting server...", logger.LogFields{
		"address":       *cfg.Server.Address,
		"document_root": root,
		"config":        cfg.OriginalFilePath(),
	})
	if err := srv.Start(); err != nil {
		if util.IsAddrInUse(err) {
			fatalf(stderr, "Address %s is already in use", *cfg.Server.Address)
		}
		lg.Error("Server stopped with error", logger.LogFields{"error": err.Error()})
		return 1
	}
	return 0
}

func parseArgs(args []string, output io.Writer) (*cliOptions, error) {
	fs := flag.NewFlagSet("spaserve", flag.ContinueOnError)
	fs.SetOutput(output)
	opts := &cliOptions{}
	fs.StringVar(&opts.dir, "dir", "", "document root to serve (default \"./../web/dist\")")
	fs.StringVar(&opts.addr, "addr", "", "listen address host:port (default \"127.0.0.1:8080\")")
	fs.StringVar(&opts.configPath, "config", "", "path to a JSON, TOML or YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

// buildConfig loads the configuration file, or the defaults when none is
// given, and applies command-line overrides on top.
func buildConfig(opts *cliOptions) (*config.Config, error) {
	var cfg *config.Config
	if opts.configPath != "" {
		loaded, err := config.LoadConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if opts.dir != "" {
		cfg.Static.DocumentRoot = opts.dir
	}
	if opts.addr != "" {
		addr := opts.addr
		cfg.Server.Address = &addr
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printBanner(w io.Writer, addr, root, configPath string) {
	title := color.New(color.FgCyan, color.Bold)
	label := color.New(color.Faint)
	title.Fprintln(w, "spaserve")
	label.Fprint(w, "  listening  ")
	fmt.Fprintf(w, "http://%s\n", addr)
	label.Fprint(w, "  serving    ")
	fmt.Fprintln(w, root)
	if configPath != "" {
		label.Fprint(w, "  config     ")
		fmt.Fprintln(w, configPath)
	}
}

func fatalf(w io.Writer, format string, args ...interface{}) {
	color.New(color.FgRed, color.Bold).Fprintf(w, "error: "+format+"\n", args...)
}
