package gateway

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/inkwell-app/inkwell/internal/autosave"
	"github.com/inkwell-app/inkwell/internal/config"
	"github.com/inkwell-app/inkwell/internal/store"
)

func testGatewayConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DBPath = filepath.Join(t.TempDir(), "inkwell.db")
	cfg.Provider.BaseURL = "http://127.0.0.1:1" // nothing listening
	cfg.Gateway.Port = 0                        // random free port
	cfg.Maintenance.Embedding = false
	return cfg
}

func startGateway(t *testing.T, cfg *config.Config) (*Gateway, chan os.Signal, chan error) {
	t.Helper()
	sig := make(chan os.Signal, 1)
	g, err := NewWithOptions(cfg, Options{SignalChan: sig})
	if err != nil {
		t.Fatalf("NewWithOptions: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Run(context.Background())
	}()
	// Give the server loop a moment to come up before signalling.
	time.Sleep(50 * time.Millisecond)
	return g, sig, done
}

func TestGatewayShutsDownOnSignal(t *testing.T) {
	cfg := testGatewayConfig(t)
	_, sig, done := startGateway(t, cfg)

	sig <- syscall.SIGTERM

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not shut down")
	}
}

func TestGatewayFlushesPendingWriteOnShutdown(t *testing.T) {
	cfg := testGatewayConfig(t)
	g, sig, done := startGateway(t, cfg)

	// A pending edit that has not hit its debounce timer yet.
	g.scheduler.ScheduleWrite("one last thought before closing", "", "journal", autosave.TargetNew)

	sig <- syscall.SIGTERM
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not shut down")
	}

	st, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer st.Close()

	entries, err := st.ListEntries(10, 0, nil)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Content != "one last thought before closing" {
		t.Fatalf("entries = %+v, want the flushed pending write", entries)
	}
}

func TestGatewayShutdownWithoutPendingWrite(t *testing.T) {
	cfg := testGatewayConfig(t)
	_, sig, done := startGateway(t, cfg)

	sig <- syscall.SIGINT
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not shut down")
	}

	st, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer st.Close()

	entries, err := st.ListEntries(10, 0, nil)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries = %+v, want none", entries)
	}
}
