package reliability

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	objects map[string][]byte
	times   map[string]time.Time
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{
		objects: make(map[string][]byte),
		times:   make(map[string]time.Time),
	}
}

func (f *fakeUploader) Upload(_ context.Context, key string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[key] = data
	f.times[key] = time.Now()
	return nil
}

func (f *fakeUploader) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for key, data := range f.objects {
		out = append(out, ObjectInfo{Key: key, SizeBytes: int64(len(data)), Modified: f.times[key]})
	}
	return out, nil
}

func (f *fakeUploader) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	delete(f.times, key)
	return nil
}

func TestBackupArtifact_CompressesAndUploads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.msgpack")
	payload := bytes.Repeat([]byte("volatility"), 100)
	require.NoError(t, os.WriteFile(path, payload, 0644))

	up := newFakeUploader()
	svc := NewBackupService(up, 30, zerolog.Nop())

	key, err := svc.BackupArtifact(context.Background(), path, "run-1")
	require.NoError(t, err)
	assert.Contains(t, key, "run-1")

	// Stored object is valid gzip of the original payload
	gz, err := gzip.NewReader(bytes.NewReader(up.objects[key]))
	require.NoError(t, err)
	restored, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, payload, restored)
}

func TestBackupArtifact_MissingFile(t *testing.T) {
	svc := NewBackupService(newFakeUploader(), 30, zerolog.Nop())
	_, err := svc.BackupArtifact(context.Background(), "/does/not/exist", "run-1")
	assert.Error(t, err)
}

func TestRotate_DeletesOldBackups(t *testing.T) {
	up := newFakeUploader()
	up.objects["artifacts/old.msgpack.gz"] = []byte("x")
	up.times["artifacts/old.msgpack.gz"] = time.Now().AddDate(0, 0, -40)
	up.objects["artifacts/new.msgpack.gz"] = []byte("y")
	up.times["artifacts/new.msgpack.gz"] = time.Now()

	svc := NewBackupService(up, 30, zerolog.Nop())
	deleted, err := svc.Rotate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, deleted)
	_, oldExists := up.objects["artifacts/old.msgpack.gz"]
	_, newExists := up.objects["artifacts/new.msgpack.gz"]
	assert.False(t, oldExists)
	assert.True(t, newExists)
}

func TestRotate_DisabledRetention(t *testing.T) {
	up := newFakeUploader()
	up.objects["artifacts/old.msgpack.gz"] = []byte("x")
	up.times["artifacts/old.msgpack.gz"] = time.Now().AddDate(0, 0, -400)

	svc := NewBackupService(up, 0, zerolog.Nop())
	deleted, err := svc.Rotate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
	assert.Len(t, up.objects, 1)
}
