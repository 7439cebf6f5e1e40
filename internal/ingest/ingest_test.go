package ingest

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeZip(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, "export.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadText(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "links.txt")
	os.WriteFile(good, []byte("https://youtu.be/dQw4w9WgXcQ\nhello\n"), 0644)

	text, err := ReadText(good)
	if err != nil {
		t.Fatalf("ReadText() error = %v", err)
	}
	if text != "https://youtu.be/dQw4w9WgXcQ\nhello\n" {
		t.Errorf("ReadText() = %q", text)
	}

	bad := filepath.Join(dir, "binary.txt")
	os.WriteFile(bad, []byte{0xff, 0xfe, 'a'}, 0644)

	if _, err := ReadText(bad); !errors.Is(err, ErrUnreadable) {
		t.Errorf("ReadText() error = %v, want %v", err, ErrUnreadable)
	}

	if _, err := ReadText(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("ReadText() error = nil for missing file")
	}
}

func TestExtractArchive(t *testing.T) {
	dir := t.TempDir()
	zipPath := writeZip(t, dir, map[string]string{
		ExportFile:       "[01.01.24, 10:00] bob: https://youtu.be/dQw4w9WgXcQ\n",
		"IMG-0001.jpg":   "not really a jpeg",
		"media/clip.txt": "nested",
	})
	workDir := filepath.Join(dir, "work")
	now := time.Unix(0, 1700000000123456789)

	textPath, cleanup, err := ExtractArchive(zipPath, workDir, now)
	if err != nil {
		t.Fatalf("ExtractArchive() error = %v", err)
	}

	wantPath := filepath.Join(workDir, "1700000000123456789.txt")
	if textPath != wantPath {
		t.Errorf("textPath = %q, want %q", textPath, wantPath)
	}
	text, err := ReadText(textPath)
	if err != nil {
		t.Fatalf("ReadText() error = %v", err)
	}
	if text != "[01.01.24, 10:00] bob: https://youtu.be/dQw4w9WgXcQ\n" {
		t.Errorf("export text = %q", text)
	}

	extractDir := filepath.Join(workDir, "1700000000123456789")
	for _, name := range []string{"IMG-0001.jpg", filepath.Join("media", "clip.txt")} {
		if _, err := os.Stat(filepath.Join(extractDir, name)); !os.IsNotExist(err) {
			t.Errorf("%s was extracted, only the export should be", name)
		}
	}

	cleanup()

	if _, err := os.Stat(textPath); !os.IsNotExist(err) {
		t.Error("cleanup did not remove the export file")
	}
	if _, err := os.Stat(extractDir); !os.IsNotExist(err) {
		t.Error("cleanup did not remove the extraction directory")
	}
}

func TestExtractArchive_MissingExport(t *testing.T) {
	dir := t.TempDir()
	zipPath := writeZip(t, dir, map[string]string{"notes.txt": "hello"})
	workDir := filepath.Join(dir, "work")

	_, cleanup, err := ExtractArchive(zipPath, workDir, time.Unix(0, 42))
	defer cleanup()

	if !errors.Is(err, ErrMissingExport) {
		t.Fatalf("ExtractArchive() error = %v, want %v", err, ErrMissingExport)
	}
	if _, err := os.Stat(filepath.Join(workDir, "42")); !os.IsNotExist(err) {
		t.Error("extraction directory left behind")
	}
}

func TestExtractArchive_IgnoresOtherEntries(t *testing.T) {
	dir := t.TempDir()
	zipPath := writeZip(t, dir, map[string]string{
		ExportFile:          "ok",
		"../../escaped.txt": "evil",
	})
	workDir := filepath.Join(dir, "work")

	textPath, cleanup, err := ExtractArchive(zipPath, workDir, time.Unix(0, 7))
	defer cleanup()

	if err != nil {
		t.Fatalf("ExtractArchive() error = %v", err)
	}
	if text, _ := ReadText(textPath); text != "ok" {
		t.Errorf("export text = %q, want %q", text, "ok")
	}
	if _, err := os.Stat(filepath.Join(dir, "escaped.txt")); !os.IsNotExist(err) {
		t.Error("traversal entry was written outside the work dir")
	}
}

func TestExtractArchive_ExportTooLarge(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "big.zip")
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create(ExportFile)
	if err != nil {
		t.Fatal(err)
	}
	chunk := bytes.Repeat([]byte("a"), 1<<20)
	for written := 0; written <= MaxExportBytes; written += len(chunk) {
		if _, err := w.Write(chunk); err != nil {
			t.Fatal(err)
		}
	}
	zw.Close()
	f.Close()

	workDir := filepath.Join(dir, "work")
	_, cleanup, err := ExtractArchive(zipPath, workDir, time.Unix(0, 9))
	defer cleanup()

	if !errors.Is(err, ErrExportTooLarge) {
		t.Fatalf("ExtractArchive() error = %v, want %v", err, ErrExportTooLarge)
	}
	if _, err := os.Stat(filepath.Join(workDir, "9")); !os.IsNotExist(err) {
		t.Error("extraction directory left behind")
	}
}

func TestExtractArchive_NotAZip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fake.zip")
	os.WriteFile(path, []byte("plain text"), 0644)

	_, cleanup, err := ExtractArchive(path, dir, time.Now())
	defer cleanup()

	if err == nil {
		t.Error("ExtractArchive() error = nil for non-zip input")
	}
}
