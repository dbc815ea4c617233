package monitoring

import (
	"log"
	"os"
	"path/filepath"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("hello %d", 1)
	if !called {
		t.Error("custom logger was not called")
	}

	// nil installs a no-op, not a nil func.
	called = false
	SetLogger(nil)
	if Logf == nil {
		t.Fatal("Logf must never be nil")
	}
	Logf("dropped")
	if called {
		t.Error("no-op logger must not reach the previous hook")
	}
}

func TestLogfDefaultNotNil(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should default to a usable logger")
	}
}

func TestSetupFileLogging(t *testing.T) {
	prev := log.Writer()
	defer log.SetOutput(prev)

	dir := t.TempDir()
	closer, err := SetupFileLogging("decoder", FileConfig{
		Directory: filepath.Join(dir, "logs"),
		MaxSizeMB: 1,
	})
	if err != nil {
		t.Fatalf("SetupFileLogging: %v", err)
	}
	defer closer.Close()

	if _, err := os.Stat(filepath.Join(dir, "logs")); err != nil {
		t.Errorf("log directory was not created: %v", err)
	}
}

func TestSetupFileLoggingRequiresDirectory(t *testing.T) {
	if _, err := SetupFileLogging("decoder", FileConfig{}); err == nil {
		t.Error("expected error for empty directory")
	}
}
