package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// AssetStore persists synthesized audio and resolves asset references.
// References use forward slashes regardless of platform so they can travel
// in API responses.
type AssetStore interface {
	Put(ctx context.Context, fingerprint, poiID string, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Exists(ctx context.Context, ref string) bool
}

// FSStore keeps assets on the local filesystem under a root directory,
// laid out as tours/{fingerprint}/{poiID}.audio.
type FSStore struct {
	root string
}

var _ AssetStore = (*FSStore)(nil)

func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		root = "assets"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create asset root: %w", err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) Put(_ context.Context, fingerprint, poiID string, data []byte) (string, error) {
	ref := fmt.Sprintf("tours/%s/%s.audio", fingerprint, poiID)
	path := filepath.Join(s.root, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create asset directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write asset %s: %w", ref, err)
	}
	return ref, nil
}

func (s *FSStore) Get(_ context.Context, ref string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(ref)))
	if err != nil {
		return nil, fmt.Errorf("read asset %s: %w", ref, err)
	}
	return data, nil
}

func (s *FSStore) Exists(_ context.Context, ref string) bool {
	info, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(ref)))
	return err == nil && info.Size() >= MinAudioBytes
}
