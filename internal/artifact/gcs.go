package artifact

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
)

const objectPrefix = "artifacts"

// Mirror replicates artifacts to a Cloud Storage bucket so the service can
// boot from the bucket instead of a local path. Objects are laid out the same
// way as the local store: artifacts/versions/<version>/artifact.json plus an
// artifacts/latest/artifact.json copy.
type Mirror struct {
	client *storage.Client
	bucket string
	logger *zap.Logger
}

// NewMirror wraps an existing storage client.
func NewMirror(client *storage.Client, bucket string, logger *zap.Logger) *Mirror {
	return &Mirror{client: client, bucket: bucket, logger: logger}
}

// Upload writes the encoded artifact under its version and refreshes the
// latest copy.
func (m *Mirror) Upload(ctx context.Context, version string, data []byte) error {
	objects := []string{
		path.Join(objectPrefix, versionsDir, version, artifactFile),
		path.Join(objectPrefix, latestDir, artifactFile),
	}
	for _, name := range objects {
		if err := m.write(ctx, name, version, data); err != nil {
			return err
		}
	}

	m.logger.Info("Artifact mirrored",
		zap.String("bucket", m.bucket),
		zap.String("version", version),
		zap.Int("size_bytes", len(data)),
	)
	return nil
}

func (m *Mirror) write(ctx context.Context, name, version string, data []byte) error {
	w := m.client.Bucket(m.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/json"
	w.Metadata = map[string]string{
		"artifact_version": version,
		"uploaded_at":      time.Now().UTC().Format(time.RFC3339),
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close object %s: %w", name, err)
	}
	return nil
}

// FetchLatest downloads and verifies the latest mirrored artifact.
func (m *Mirror) FetchLatest(ctx context.Context) (*Artifact, error) {
	name := path.Join(objectPrefix, latestDir, artifactFile)

	r, err := m.client.Bucket(m.bucket).Object(name).NewReader(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return nil, fmt.Errorf("%w: gs://%s/%s", ErrNotFound, m.bucket, name)
		}
		return nil, fmt.Errorf("failed to open object %s: %w", name, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", name, err)
	}
	return Decode(data)
}

// ListVersions returns the mirrored version names, oldest first.
func (m *Mirror) ListVersions(ctx context.Context) ([]string, error) {
	prefix := path.Join(objectPrefix, versionsDir) + "/"
	query := &storage.Query{Prefix: prefix, Delimiter: "/"}

	var versions []string
	it := m.client.Bucket(m.bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list mirrored versions: %w", err)
		}
		if attrs.Prefix != "" {
			versions = append(versions, path.Base(attrs.Prefix))
		}
	}
	return versions, nil
}
