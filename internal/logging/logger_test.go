package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDisabledIsNoop(t *testing.T) {
	Close()
	if err := Initialize(t.TempDir(), Options{DebugMode: false}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	l := Get(CategoryPipeline)
	l.Info("should not be written")
	if l.logger != nil {
		t.Fatal("expected no-op logger when debug mode is off")
	}
}

func TestCategoryFileWritten(t *testing.T) {
	Close()
	dir := t.TempDir()
	if err := Initialize(dir, Options{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer Close()

	Catalogue("resolved %d matches", 5)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	found := false
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "_catalogue.log") {
			found = true
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			if !strings.Contains(string(data), "resolved 5 matches") {
				t.Fatalf("log file missing message: %s", data)
			}
		}
	}
	if !found {
		t.Fatal("catalogue log file not created")
	}
}

func TestCategoryFilter(t *testing.T) {
	Close()
	err := Initialize(t.TempDir(), Options{
		DebugMode:  true,
		Level:      "debug",
		Categories: map[string]bool{"fx": false},
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer Close()

	if IsCategoryEnabled(CategoryFX) {
		t.Fatal("fx category should be disabled")
	}
	if !IsCategoryEnabled(CategoryPricing) {
		t.Fatal("unlisted categories should default to enabled")
	}
}

func TestLevelFilter(t *testing.T) {
	Close()
	dir := t.TempDir()
	if err := Initialize(dir, Options{DebugMode: true, Level: "warn"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer Close()

	l := Get(CategoryMarketplace)
	l.Debug("debug line")
	l.Warn("warn line")

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "_marketplace.log") {
			data, _ := os.ReadFile(filepath.Join(dir, e.Name()))
			if strings.Contains(string(data), "debug line") {
				t.Fatal("debug line written despite warn level")
			}
			if !strings.Contains(string(data), "warn line") {
				t.Fatal("warn line missing")
			}
		}
	}
}
