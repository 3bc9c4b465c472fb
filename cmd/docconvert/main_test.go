package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"docconvert/internal/config"
)

func TestEnsureLogDir(t *testing.T) {
	if err := ensureLogDir(""); err != nil {
		t.Fatalf("empty path should be noop: %v", err)
	}
	if err := ensureLogDir("app.log"); err != nil {
		t.Fatalf("relative file in current dir should be noop: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "nested", "logs")
	path := filepath.Join(dir, "docconvert.log")
	if err := ensureLogDir(path); err != nil {
		t.Fatalf("ensureLogDir failed: %v", err)
	}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		t.Fatalf("expected directory to be created, err=%v", err)
	}
}

func TestNewEngine_SelectsConfiguredEngine(t *testing.T) {
	for _, name := range []string{config.EngineChromedp, config.EngineRod, config.EngineGotenberg} {
		var cfg config.Config
		cfg.PDF.Engine = name
		cfg.PDF.GotenbergURL = "http://gotenberg:3000"
		if got := newEngine(cfg).Name(); got != name {
			t.Fatalf("expected engine %s, got %s", name, got)
		}
	}
}

func TestSetup_WiresRoutes(t *testing.T) {
	dir := t.TempDir()
	var cfg config.Config
	cfg.Storage.PDFDir = filepath.Join(dir, "pdf")
	cfg.Storage.WordDir = filepath.Join(dir, "word")
	config.ApplyDefaults(&cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app, cleanup, err := setup(ctx, cfg)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	defer cleanup()

	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("banner request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected banner 200, got %d", resp.StatusCode)
	}
	if _, err := os.Stat(cfg.Storage.WordDir); err != nil {
		t.Fatalf("expected word output dir to exist: %v", err)
	}
}

func TestStartServer_GracefulShutdownOnSignal(t *testing.T) {
	app := fiber.New()
	var cfg config.Config
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = ":0"

	idleConnsClosed := make(chan struct{})
	go startServer(app, cfg, idleConnsClosed)

	time.Sleep(100 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("failed to send SIGTERM: %v", err)
	}

	select {
	case <-idleConnsClosed:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for graceful shutdown")
	}
}

func TestMain_UsesConfigAndShutsDown(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cfg.yaml")
	err := os.WriteFile(cfgPath, []byte(`
server:
  host: "127.0.0.1"
  port: ":0"
logger:
  file: "`+filepath.Join(dir, "logs", "docconvert.log")+`"
  level: "info"
  max_size_mb: 1
  max_backups: 1
  max_age_days: 1
pdf:
  engine: chromedp
  timeout_secs: 1
  chrome_no_sandbox: true
storage:
  pdf_dir: "`+filepath.Join(dir, "pdf")+`"
  word_dir: "`+filepath.Join(dir, "word")+`"
`), 0o644)
	if err != nil {
		t.Fatalf("write cfg: %v", err)
	}

	t.Setenv("CONFIG_PATH", cfgPath)
	t.Setenv("CHROME_BIN", "/bin/true")

	done := make(chan struct{})
	go func() {
		main()
		close(done)
	}()

	time.Sleep(300 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("signal main: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for main to exit")
	}
	if _, err := os.Stat(filepath.Join(dir, "logs")); err != nil {
		t.Fatalf("expected log directory to be created: %v", err)
	}
}
