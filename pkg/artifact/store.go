package artifact

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"callaudit-server/pkg/errors"
	"callaudit-server/pkg/fingerprint"
)

// Store is the durable persistence layer for analysis artifacts. Writes are
// versioned and never overwrite: each Put creates a new file and lookup
// always selects the latest one. Reads that hit corrupt or mismatched files
// log the fault and behave as if the file were absent.
type Store interface {
	// Put durably persists value under (stage, fingerprint). Prior artifacts
	// for the same key remain listable; GetLatest returns the newest write.
	Put(ctx context.Context, stage Stage, fp fingerprint.Fingerprint, value interface{}) (*Handle, error)

	// GetLatest returns the newest artifact for the key, or (nil, nil) when
	// nothing is stored. Errors are reserved for I/O faults.
	GetLatest(ctx context.Context, stage Stage, fp fingerprint.Fingerprint) (*Artifact, error)

	// List returns every stored version for the key, newest first.
	List(ctx context.Context, stage Stage, fp fingerprint.Fingerprint) ([]*Artifact, error)
}

// FileStore persists artifacts as JSON envelopes under
// <root>/<stage>/<fingerprint-prefix>/<timestamp>-<version>.json.
type FileStore struct {
	logger *logrus.Entry
	root   string
}

// NewFileStore creates a file-backed artifact store rooted at dir.
func NewFileStore(logger *logrus.Logger, dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.NewInvalidInput("artifact store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewStoreFailure("failed to create artifact store root", err)
	}

	return &FileStore{
		logger: logger.WithField("component", "artifact_store"),
		root:   dir,
	}, nil
}

// keyDir returns the directory holding all versions for a key.
func (s *FileStore) keyDir(stage Stage, fp fingerprint.Fingerprint) string {
	return filepath.Join(s.root, stage.String(), fp.Prefix())
}

// Put implements Store.
func (s *FileStore) Put(ctx context.Context, stage Stage, fp fingerprint.Fingerprint, value interface{}) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fp.IsZero() {
		return nil, errors.NewInvalidInput("fingerprint is required")
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, errors.NewInvalidInput("artifact value is not serializable").WithField("stage", stage.String())
	}

	art := Artifact{
		Stage:       stage,
		Fingerprint: fp,
		VersionID:   uuid.New().String(),
		CreatedAt:   time.Now().UTC(),
		Value:       raw,
	}

	dir := s.keyDir(stage, fp)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewStoreFailure("failed to create artifact directory", err)
	}

	name := art.CreatedAt.Format("20060102-150405.000000000") + "-" + art.VersionID + ".json"
	finalPath := filepath.Join(dir, name)
	tmpPath := filepath.Join(dir, ".tmp-"+art.VersionID)

	// Compact encoding keeps the embedded value bytes identical between the
	// write path and a later read of the same envelope.
	data, err := json.Marshal(&art)
	if err != nil {
		return nil, errors.NewStoreFailure("failed to encode artifact envelope", err)
	}

	// Write-then-rename keeps a failed write from corrupting prior versions.
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return nil, errors.NewStoreFailure("failed to write artifact", err).WithField("path", tmpPath)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return nil, errors.NewStoreFailure("failed to finalize artifact", err).WithField("path", finalPath)
	}

	s.logger.WithFields(logrus.Fields{
		"stage":       stage.String(),
		"fingerprint": fp.Prefix(),
		"version_id":  art.VersionID,
	}).Debug("Artifact persisted")

	return &Handle{
		Stage:     stage,
		VersionID: art.VersionID,
		Path:      finalPath,
		CreatedAt: art.CreatedAt,
	}, nil
}

// GetLatest implements Store.
func (s *FileStore) GetLatest(ctx context.Context, stage Stage, fp fingerprint.Fingerprint) (*Artifact, error) {
	all, err := s.List(ctx, stage, fp)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all[0], nil
}

// List implements Store. Versions are ordered newest first: by CreatedAt
// compared numerically, then by lexicographically-last version ID so that
// timestamp collisions still resolve deterministically.
func (s *FileStore) List(ctx context.Context, stage Stage, fp fingerprint.Fingerprint) ([]*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := s.keyDir(stage, fp)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewStoreFailure("failed to list artifacts", err).WithField("dir", dir)
	}

	artifacts := make([]*Artifact, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		art, err := s.readEnvelope(path)
		if err != nil {
			// Unreadable artifacts behave as absent rather than failing the
			// lookup for every remaining version.
			s.logger.WithError(err).WithField("path", path).Warn("Skipping unreadable artifact")
			continue
		}

		if art.Stage != stage || art.Fingerprint != fp {
			// A different fingerprint sharing the 8-char prefix. Not ours.
			s.logger.WithFields(logrus.Fields{
				"path":     path,
				"expected": fp.Prefix(),
			}).Debug("Fingerprint mismatch under shared prefix, treating as miss")
			continue
		}

		artifacts = append(artifacts, art)
	}

	sort.Slice(artifacts, func(i, j int) bool {
		if !artifacts[i].CreatedAt.Equal(artifacts[j].CreatedAt) {
			return artifacts[i].CreatedAt.After(artifacts[j].CreatedAt)
		}
		return artifacts[i].VersionID > artifacts[j].VersionID
	})

	return artifacts, nil
}

func (s *FileStore) readEnvelope(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, err
	}
	if art.Fingerprint.IsZero() || art.VersionID == "" {
		return nil, errors.New("artifact envelope missing identity fields")
	}
	return &art, nil
}
