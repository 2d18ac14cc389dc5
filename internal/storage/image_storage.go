package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rmitchellscott/graydither/internal/logging"
)

const (
	inputPrefix  = "inputs/"
	outputPrefix = "outputs/"
)

// ImageStorage stores job source images and dithered results
type ImageStorage struct {
	backend Backend
}

// NewImageStorage creates a new image storage instance
func NewImageStorage(backend Backend) *ImageStorage {
	return &ImageStorage{backend: backend}
}

// StoredImage describes an image written to the backend
type StoredImage struct {
	Key    string
	SHA256 string
	Size   int64
}

// StoreInput stores the source image of a job
func (s *ImageStorage) StoreInput(ctx context.Context, jobID uuid.UUID, data []byte) (*StoredImage, error) {
	return s.store(ctx, inputPrefix+jobID.String(), data)
}

// StoreOutput stores a dithered result. Names carry a content hash so a changed result
// never reuses a cached URL.
func (s *ImageStorage) StoreOutput(ctx context.Context, jobID uuid.UUID, extension string, data []byte) (*StoredImage, error) {
	hash := sha256.Sum256(data)
	key := fmt.Sprintf("%s%s_%x.%s", outputPrefix, jobID, hash[:8], extension)
	return s.store(ctx, key, data)
}

func (s *ImageStorage) store(ctx context.Context, key string, data []byte) (*StoredImage, error) {
	if err := s.backend.Put(ctx, key, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to store %s: %w", key, err)
	}

	hash := sha256.Sum256(data)
	return &StoredImage{
		Key:    key,
		SHA256: hex.EncodeToString(hash[:]),
		Size:   int64(len(data)),
	}, nil
}

// Open returns a reader for a stored image
func (s *ImageStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.backend.Get(ctx, key)
}

// ReadAll loads a stored image into memory
func (s *ImageStorage) ReadAll(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Remove deletes the given keys, skipping empty ones
func (s *ImageStorage) Remove(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.backend.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// CleanupOldImages removes images older than maxAge and returns how many were removed
func (s *ImageStorage) CleanupOldImages(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, prefix := range []string{inputPrefix, outputPrefix} {
		files, err := s.backend.ListWithInfo(ctx, prefix)
		if err != nil {
			return removed, fmt.Errorf("failed to list images: %w", err)
		}

		for _, file := range files {
			if !file.ModTime.Before(cutoff) {
				continue
			}
			if err := s.backend.Delete(ctx, file.Key); err != nil {
				logging.WarnWithComponent(logging.ComponentStorage, "Failed to remove old image", "key", file.Key, "error", err)
				continue
			}
			removed++
		}
	}

	return removed, nil
}
