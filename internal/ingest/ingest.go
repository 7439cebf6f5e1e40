// Package ingest turns uploaded batch files into plain text for link
// extraction.
package ingest

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
	"unicode/utf8"
)

const (
	// ExportFile is the chat export a zip archive must contain at its root.
	ExportFile = "_chat.txt"
	// MaxExportBytes caps the uncompressed size of ExportFile.
	MaxExportBytes = 32 << 20
)

var (
	ErrUnreadable     = errors.New("file is not valid UTF-8 text")
	ErrMissingExport  = errors.New("archive did not contain the expected export file")
	ErrExportTooLarge = fmt.Errorf("export file is larger than %d bytes", MaxExportBytes)
)

// ReadText reads path and checks that it is UTF-8.
func ReadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", ErrUnreadable
	}
	return string(data), nil
}

// ExtractArchive copies the chat export out of zipPath into a directory
// below workDir and returns its path. Other entries are never extracted. The
// caller must run cleanup once done with the text, whatever the outcome.
func ExtractArchive(zipPath, workDir string, now time.Time) (textPath string, cleanup func(), err error) {
	stamp := strconv.FormatInt(now.UnixNano(), 10)
	extractDir := filepath.Join(workDir, stamp)
	textPath = filepath.Join(workDir, stamp+".txt")

	cleanup = func() {
		os.RemoveAll(extractDir)
		os.Remove(textPath)
	}

	src := filepath.Join(extractDir, ExportFile)
	if err := extractExport(zipPath, src); err != nil {
		cleanup()
		return "", func() {}, err
	}

	if err := os.Rename(src, textPath); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("move export: %w", err)
	}
	return textPath, cleanup, nil
}

func extractExport(zipPath, target string) error {
	// Insecure entry names are fine: only ExportFile is ever written.
	r, err := zip.OpenReader(zipPath)
	if err != nil && !(errors.Is(err, zip.ErrInsecurePath) && r != nil) {
		return fmt.Errorf("open archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name == ExportFile {
			return extractFile(f, target)
		}
	}
	return ErrMissingExport
}

func extractFile(f *zip.File, target string) error {
	if f.UncompressedSize64 > MaxExportBytes {
		return ErrExportTooLarge
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	// The header size can lie; never write more than the cap.
	n, err := io.Copy(out, io.LimitReader(rc, MaxExportBytes+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n > MaxExportBytes {
		return ErrExportTooLarge
	}
	return nil
}
