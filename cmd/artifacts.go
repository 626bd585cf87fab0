package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zip"
)

// ExportArtifact is one named, serialized output (logical filename plus
// content) before optional bundling.
type ExportArtifact struct {
	Name  string
	Bytes []byte
}

// zipEpoch is the fixed modification time stamped on every archive
// entry so the same artifact set always bundles to identical bytes.
var zipEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// ArtifactBasename derives the artifact name from the grouping
// granularity and the interval's start instant. Names are unique
// within one run because interval starts are unique.
func ArtifactBasename(prefix string, granularity Granularity, start time.Time) string {
	switch granularity {
	case GroupDay:
		return fmt.Sprintf("%s_%s", prefix, start.Format("2006_01_02"))
	case GroupMonth:
		return fmt.Sprintf("%s_%s", prefix, start.Format("2006_01"))
	case GroupYear:
		return fmt.Sprintf("%s_%s", prefix, start.Format("2006"))
	default:
		return prefix + "_full"
	}
}

// ArtifactFilename appends the format and compression extensions to
// the deterministic basename.
func ArtifactFilename(prefix string, granularity Granularity, start time.Time, formatExt, compressionExt string) string {
	return ArtifactBasename(prefix, granularity, start) + formatExt + compressionExt
}

// BundleName is the filename of the archive that wraps all artifacts
// of one run.
func BundleName(prefix string) string {
	return prefix + "_export.zip"
}

// BundleArtifacts packs the artifacts into a single zip archive, one
// entry per artifact keyed by its name, bytes copied verbatim. Entry
// order follows the supplied slice (completion order, not necessarily
// chronological). An empty artifact set yields no archive.
func BundleArtifacts(artifacts []ExportArtifact) ([]byte, error) {
	if len(artifacts) == 0 {
		return nil, nil
	}

	var buffer bytes.Buffer
	writer := zip.NewWriter(&buffer)

	for _, artifact := range artifacts {
		header := &zip.FileHeader{
			Name:     artifact.Name,
			Method:   zip.Deflate,
			Modified: zipEpoch,
		}
		entry, err := writer.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("failed to create archive entry %s: %w", artifact.Name, err)
		}
		if _, err := entry.Write(artifact.Bytes); err != nil {
			return nil, fmt.Errorf("failed to write archive entry %s: %w", artifact.Name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	return buffer.Bytes(), nil
}

// WriteArtifacts materializes the artifacts as files under dir,
// creating the directory if needed.
func WriteArtifacts(dir string, artifacts []ExportArtifact) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	for _, artifact := range artifacts {
		path := filepath.Join(dir, artifact.Name)
		if err := os.WriteFile(path, artifact.Bytes, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	return nil
}
