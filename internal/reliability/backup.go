package reliability

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/rs/zerolog"
)

const backupPrefix = "artifacts/"

// Uploader is the subset of S3Client the backup service needs; tests
// substitute a fake.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// BackupService uploads gzip-compressed run artifacts to object storage
// and prunes backups past the retention window.
type BackupService struct {
	client        Uploader
	retentionDays int
	log           zerolog.Logger
}

// NewBackupService creates a backup service.
func NewBackupService(client Uploader, retentionDays int, log zerolog.Logger) *BackupService {
	return &BackupService{
		client:        client,
		retentionDays: retentionDays,
		log:           log.With().Str("component", "backup").Logger(),
	}
}

// BackupArtifact compresses the artifact file and uploads it under a
// run-scoped, timestamped key. Returns the object key.
func (s *BackupService) BackupArtifact(ctx context.Context, artifactPath, runID string) (string, error) {
	f, err := os.Open(artifactPath)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	go func() {
		gz := gzip.NewWriter(pw)
		if _, err := io.Copy(gz, f); err != nil {
			pw.CloseWithError(err)
			return
		}
		if err := gz.Close(); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()

	key := path.Join(backupPrefix, fmt.Sprintf("%s-%s.msgpack.gz", time.Now().UTC().Format("20060102-150405"), runID))
	if err := s.client.Upload(ctx, key, pr); err != nil {
		return "", err
	}

	s.log.Info().Str("run_id", runID).Str("key", key).Msg("Artifact backed up")
	return key, nil
}

// ListBackups returns stored artifact backups, newest first.
func (s *BackupService) ListBackups(ctx context.Context) ([]ObjectInfo, error) {
	return s.client.List(ctx, backupPrefix)
}

// Rotate deletes backups older than the retention window. A retention of
// zero or less disables rotation.
func (s *BackupService) Rotate(ctx context.Context) (int, error) {
	if s.retentionDays <= 0 {
		return 0, nil
	}

	objects, err := s.client.List(ctx, backupPrefix)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	deleted := 0
	for _, obj := range objects {
		if obj.Modified.Before(cutoff) {
			if err := s.client.Delete(ctx, obj.Key); err != nil {
				return deleted, err
			}
			deleted++
		}
	}

	if deleted > 0 {
		s.log.Info().Int("deleted", deleted).Msg("Rotated old backups")
	}
	return deleted, nil
}
