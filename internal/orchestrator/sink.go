package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"

	nthlayererrors "github.com/rsionnach/nthlayer/internal/errors"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

// Sink persists a generated Artifact and reports the prior hash stored
// under the same key, if any, so the caller can compute a diff without
// the sink needing to know anything about Plan semantics.
type Sink interface {
	Name() string
	PriorHash(ctx context.Context, artifact nthlayer.Artifact) (string, error)
	Write(ctx context.Context, artifact nthlayer.Artifact) error
}

func artifactPath(a nthlayer.Artifact) string {
	return filepath.Join(a.Service, fmt.Sprintf("%s.yaml", a.Kind))
}

// LocalSink writes artifacts under a root directory using a
// write-to-temp-then-rename sequence so a reader never observes a
// partially written file.
type LocalSink struct {
	root string
}

func NewLocalSink(root string) *LocalSink {
	return &LocalSink{root: root}
}

func (s *LocalSink) Name() string { return "local:" + s.root }

func (s *LocalSink) PriorHash(ctx context.Context, artifact nthlayer.Artifact) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, artifactPath(artifact)))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return hash(data), nil
}

// Write is permanent-on-failure: every error path here (permission
// denied, read-only filesystem, disk full) is a local misconfiguration
// that a retry won't fix.
func (s *LocalSink) Write(ctx context.Context, artifact nthlayer.Artifact) error {
	dest := filepath.Join(s.root, artifactPath(artifact))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return localSinkError(dest, "mkdir", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return localSinkError(dest, "create_temp", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(artifact.Content); err != nil {
		tmp.Close()
		return localSinkError(dest, "write_temp", err)
	}
	if err := tmp.Close(); err != nil {
		return localSinkError(dest, "close_temp", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return localSinkError(dest, "rename", err)
	}
	return nil
}

func localSinkError(dest, op string, err error) error {
	return nthlayererrors.New(nthlayererrors.KindSink, "local write failed").
		WithOperation(op).
		WithDetails("path", dest).
		WithRetry(false, 0).
		WithWrapped(err).
		Error()
}

// GCSSink writes artifacts as objects in a single GCS bucket, one
// object per artifact path, read back before write to compute the
// diff the same way the local sink does.
type GCSSink struct {
	client *storage.Client
	bucket string
}

func NewGCSSink(client *storage.Client, bucket string) *GCSSink {
	return &GCSSink{client: client, bucket: bucket}
}

func (s *GCSSink) Name() string { return "gcs://" + s.bucket }

func (s *GCSSink) PriorHash(ctx context.Context, artifact nthlayer.Artifact) (string, error) {
	obj := s.client.Bucket(s.bucket).Object(artifactPath(artifact))
	r, err := obj.NewReader(ctx)
	if err == storage.ErrObjectNotExist {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return hash(data), nil
}

// Write classifies every failure as transient: GCS writes fail on
// network blips and backend 5xx far more often than on a genuine
// permission problem, and a bounded retry is cheap against a
// write-once object path.
func (s *GCSSink) Write(ctx context.Context, artifact nthlayer.Artifact) error {
	obj := s.client.Bucket(s.bucket).Object(artifactPath(artifact))
	w := obj.NewWriter(ctx)
	w.ContentType = "application/x-yaml"

	if _, err := w.Write(artifact.Content); err != nil {
		w.Close()
		return gcsSinkError(artifactPath(artifact), err)
	}
	if err := w.Close(); err != nil {
		return gcsSinkError(artifactPath(artifact), err)
	}
	return nil
}

func gcsSinkError(objectPath string, err error) error {
	return nthlayererrors.New(nthlayererrors.KindSink, "gcs write failed").
		WithOperation("write_object").
		WithDetails("object", objectPath).
		WithRetry(true, time.Second).
		WithWrapped(err).
		Error()
}
