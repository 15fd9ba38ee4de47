// Package objectstore abstracts the S3-compatible blob store that holds raw
// uploads, cleaned recordings, feature tables, model artifacts, and
// visualization plots, addressed by the logical path scheme in the
// external interface contract.
package objectstore

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Path      string
	SizeBytes int64
	ModTime   time.Time
}

// Store is the narrow interface every pipeline component depends on.
// Production code talks to an S3Store; local/dev tooling and tests can use
// a FilesystemStore without any call-site change.
type Store interface {
	// PutFile uploads the local file at localPath to the given logical path.
	PutFile(ctx context.Context, logicalPath, localPath string) error

	// PutBytes uploads data to the given logical path with the given MIME type.
	PutBytes(ctx context.Context, logicalPath string, data []byte, contentType string) error

	// GetFile downloads the object at logicalPath to localPath.
	GetFile(ctx context.Context, logicalPath, localPath string) error

	// GetBytes downloads and returns the object at logicalPath.
	GetBytes(ctx context.Context, logicalPath string) ([]byte, error)

	// GetReader opens a streaming reader for the object at logicalPath. The
	// caller must close it.
	GetReader(ctx context.Context, logicalPath string) (io.ReadCloser, error)

	// Delete removes the object at logicalPath. Deleting a missing object
	// is not an error.
	Delete(ctx context.Context, logicalPath string) error

	// List enumerates objects under prefix. If recursive is false, only the
	// immediate level is returned (no "directory" entries are synthesized;
	// implementations may simply always behave recursively and let callers
	// filter, since logical paths have no directory markers).
	List(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, error)

	// Exists reports whether an object exists at logicalPath.
	Exists(ctx context.Context, logicalPath string) (bool, error)

	// Presign returns a time-limited URL for downloading logicalPath.
	Presign(ctx context.Context, logicalPath string, ttl time.Duration) (string, error)
}

// Logical path builders. These centralize the scheme from the external
// interface contract so no component hand-assembles a path string.

func RawPath(subjectID, sessionID, recordingID, ext string) string {
	return "raw/" + subjectID + "/" + sessionID + "/" + recordingID + "." + ext
}

func CleanedPath(recordingID string) string {
	return "processed/" + recordingID + "/cleaned_raw.fif"
}

func FeaturesParquetPath(recordingID string) string {
	return "features/" + recordingID + "/features.parquet"
}

func FeaturesSummaryPath(recordingID string) string {
	return "features/" + recordingID + "/summary.json"
}

func ModelArtifactPath(modelID string) string {
	return "models/" + modelID + "/model.bin"
}

func ModelMetricsPath(modelID string) string {
	return "models/" + modelID + "/metrics.json"
}

func ModelEvalPlotPath(modelID, filename string) string {
	return "models/" + modelID + "/eval_plots/" + filename
}

func VisualizationPath(recordingID, filename string) string {
	return "visualizations/" + recordingID + "/" + filename
}
