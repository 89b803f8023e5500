package discovery_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/infiniteinsight/spectral/internal/discovery"
	"github.com/infiniteinsight/spectral/internal/piifilter"
)

func TestScanFileFindsEmailAndSSN(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("contact jane@example.com, ssn 123-45-6789"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	result, err := discovery.ScanFile(piifilter.New(), path)
	if err != nil {
		t.Fatalf("scan file: %v", err)
	}
	if result == nil {
		t.Fatalf("expected a result")
	}
	if result.Matches != 2 {
		t.Fatalf("expected 2 matches, got %d", result.Matches)
	}
}

func TestScanFileSkipsNonScannableExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(path, []byte("jane@example.com"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	result, err := discovery.ScanFile(piifilter.New(), path)
	if err != nil {
		t.Fatalf("scan file: %v", err)
	}
	if result != nil {
		t.Fatalf("expected no result for a non-scannable extension, got %+v", result)
	}
}

func TestScanFileSkipsFileWithNoPII(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "todo.txt")
	if err := os.WriteFile(path, []byte("buy milk\nwalk the dog"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	result, err := discovery.ScanFile(piifilter.New(), path)
	if err != nil {
		t.Fatalf("scan file: %v", err)
	}
	if result != nil {
		t.Fatalf("expected no result for PII-free text, got %+v", result)
	}
}

func TestScanDirectoryWalksNestedFiles(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "sub")
	if err := os.MkdirAll(nested, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("alice@example.com"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(nested, "b.txt"), []byte("555-123-4567"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	results, err := discovery.ScanDirectory(context.Background(), root)
	if err != nil {
		t.Fatalf("scan directory: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d: %+v", len(results), results)
	}
}

func TestScanDirectoriesSkipsMissingRoots(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("alice@example.com"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	results, err := discovery.ScanDirectories(context.Background(), []string{root, filepath.Join(root, "does-not-exist")})
	if err != nil {
		t.Fatalf("scan directories: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}
