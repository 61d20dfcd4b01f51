// Command proofwatch proofreads rich-text documents against a
// LanguageTool-compatible service.
//
// Usage:
//
//	proofwatch check -in doc.html              # one-shot check, annotations to stdout
//	proofwatch watch -in doc.txt               # re-check on every save
//	proofwatch serve -config proofwatch.yaml   # HTTP document sessions
//	proofwatch mcp [-quic :9444]               # MCP tools over stdio or QUIC
package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	proofwatch "github.com/hazyhaar/proofwatch"
	"github.com/hazyhaar/proofwatch/annotation"
	"github.com/hazyhaar/proofwatch/doctree"
	"github.com/hazyhaar/proofwatch/internal/httpapi"
	"github.com/hazyhaar/proofwatch/internal/ltclient"
	"github.com/hazyhaar/proofwatch/internal/mcpquic"
	"github.com/hazyhaar/proofwatch/internal/watch"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "check":
		err = cmdCheck(ctx, os.Args[2:])
	case "watch":
		err = cmdWatch(ctx, os.Args[2:])
	case "serve":
		err = cmdServe(ctx, os.Args[2:])
	case "mcp":
		err = cmdMCP(ctx, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "proofwatch: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `proofwatch — incremental proofreading for rich-text documents

usage:
  proofwatch check  -in <file> [-format json|html|txt] [-languages]
  proofwatch watch  -in <file> [-format json|html|txt]
  proofwatch serve  [-config <file>] [-addr <host:port>]
  proofwatch mcp    [-config <file>] [-quic <host:port>]

check   Runs a single whole-document pass and prints annotations as JSON.
watch   Re-checks the file on every save and prints annotations as they settle.
serve   Exposes document sessions over HTTP.
mcp     Serves the proofreading tools over MCP (stdio, or QUIC with -quic).

Every command accepts -config <proofwatch.yaml> and -log-level debug|info|warn|error.
`)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func loadConfig(path string) (*proofwatch.Config, error) {
	if path == "" {
		return proofwatch.DefaultConfig(), nil
	}
	return proofwatch.LoadConfig(path)
}

// loadDocument reads and parses a document. An empty or "-" path means stdin.
func loadDocument(path, format string) (*doctree.Node, error) {
	var data []byte
	var err error
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	switch resolveFormat(path, format) {
	case "json":
		return doctree.ParseJSON(data)
	case "html":
		return doctree.ParseHTML(bytes.NewReader(data))
	default:
		return doctree.FromPlainText(string(data)), nil
	}
}

func resolveFormat(path, format string) string {
	if format != "" {
		return format
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".html", ".htm":
		return "html"
	default:
		return "txt"
	}
}

// --- check ---

func cmdCheck(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	in := fs.String("in", "", "input file (default stdin)")
	format := fs.String("format", "", "input format: json, html, txt (default from extension)")
	configPath := fs.String("config", "", "path to proofwatch.yaml")
	logLevel := fs.String("log-level", "warn", "log level: debug, info, warn, error")
	listLanguages := fs.Bool("languages", false, "list the service's supported languages and exit")
	fs.Parse(args)

	logger := newLogger(*logLevel)
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	if *listLanguages {
		lt := ltclient.New(cfg.ServiceURL,
			ltclient.WithTimeout(cfg.Request.Timeout),
			ltclient.WithRateLimit(cfg.Request.RatePerSec, cfg.Request.Burst),
			ltclient.WithLogger(logger))
		langs, err := lt.Languages(ctx)
		if err != nil {
			return err
		}
		for _, l := range langs {
			fmt.Printf("%-10s %s\n", l.LongCode, l.Name)
		}
		return nil
	}

	doc, err := loadDocument(*in, *format)
	if err != nil {
		return err
	}

	// One synchronous pass; debounce only gets in the way here.
	runCfg := *cfg
	runCfg.Automatic = false
	eng, err := proofwatch.New(&runCfg, proofwatch.WithLogger(logger))
	if err != nil {
		return err
	}
	defer eng.Stop()

	eng.SetDocument(doc)
	eng.CheckNow()
	if err := eng.Wait(ctx); err != nil {
		return err
	}

	return printAnnotations(os.Stdout, eng, true)
}

// --- watch ---

func cmdWatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	in := fs.String("in", "", "document file to watch")
	format := fs.String("format", "", "input format: json, html, txt (default from extension)")
	configPath := fs.String("config", "", "path to proofwatch.yaml")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.Parse(args)

	if *in == "" || *in == "-" {
		return errors.New("watch requires -in <file>")
	}

	logger := newLogger(*logLevel)
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	var eng *proofwatch.Engine
	notifier := &proofwatch.CallbackNotifier{
		OnLoading: func(loading bool) {
			if !loading {
				if err := printAnnotations(os.Stdout, eng, false); err != nil {
					logger.Warn("write annotations", "error", err)
				}
			}
		},
	}
	eng, err = proofwatch.New(cfg,
		proofwatch.WithLogger(logger),
		proofwatch.WithNotifier(notifier))
	if err != nil {
		return err
	}
	defer eng.Stop()

	doc, err := loadDocument(*in, *format)
	if err != nil {
		return err
	}
	eng.SetDocument(doc)

	w := watch.New(*in, watch.Options{Logger: logger})
	return w.OnChange(ctx, func() error {
		next, err := loadDocument(*in, *format)
		if err != nil {
			return err
		}
		tr := doctree.Rebase(eng.Document(), next)
		return eng.Apply(tr)
	})
}

func printAnnotations(dst io.Writer, eng *proofwatch.Engine, indent bool) error {
	anns := eng.Annotations()
	if anns == nil {
		anns = []annotation.Annotation{}
	}
	out := struct {
		Size        int                     `json:"size"`
		Annotations []annotation.Annotation `json:"annotations"`
	}{eng.Status().DocumentSize, anns}

	enc := json.NewEncoder(dst)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(out)
}

// --- serve ---

func cmdServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to proofwatch.yaml")
	addr := fs.String("addr", "", "listen address (overrides config)")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.Parse(args)

	logger := newLogger(*logLevel)
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Serve.Addr = *addr
	}

	svc, err := httpapi.New(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	srv := &http.Server{
		Addr:              cfg.Serve.Addr,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP listening", "addr", cfg.Serve.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// --- mcp ---

func cmdMCP(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	configPath := fs.String("config", "", "path to proofwatch.yaml")
	quicAddr := fs.String("quic", "", "serve MCP over QUIC on this address instead of stdio")
	certFile := fs.String("tls-cert", "", "TLS certificate for QUIC (default: self-signed)")
	keyFile := fs.String("tls-key", "", "TLS key for QUIC")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.Parse(args)

	logger := newLogger(*logLevel)
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "proofwatch",
		Version: "1.0.0",
	}, nil)
	if err := proofwatch.RegisterMCP(srv, cfg, proofwatch.WithLogger(logger)); err != nil {
		return err
	}

	if *quicAddr == "" {
		logger.Info("MCP serving on stdio")
		return srv.Run(ctx, &mcp.StdioTransport{})
	}

	var tlsCfg *tls.Config
	if *certFile != "" && *keyFile != "" {
		tlsCfg, err = mcpquic.ServerTLSConfig(*certFile, *keyFile)
	} else {
		tlsCfg, err = mcpquic.SelfSignedTLSConfig()
	}
	if err != nil {
		return fmt.Errorf("mcp tls: %w", err)
	}

	ql, err := mcpquic.NewListener(*quicAddr, tlsCfg, srv, logger)
	if err != nil {
		return err
	}
	defer ql.Close()

	err = ql.Serve(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, mcpquic.ErrConnectionClosed) {
		return nil
	}
	return err
}
