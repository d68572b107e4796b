package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalProvider implements Provider for a local directory
type LocalProvider struct {
	basePath string
	baseURL  string
}

// NewLocalProvider creates basePath if needed. With an empty baseURL,
// uploads report file paths instead of URLs.
func NewLocalProvider(basePath, baseURL string) (*LocalProvider, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &LocalProvider{
		basePath: basePath,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Upload writes through a temp file and renames, so readers never see a
// partial image.
func (p *LocalProvider) Upload(ctx context.Context, input UploadInput) (UploadOutput, error) {
	if err := ctx.Err(); err != nil {
		return UploadOutput{}, err
	}
	key, contentType, err := prepare(input)
	if err != nil {
		return UploadOutput{}, err
	}

	fullPath := filepath.Join(p.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return UploadOutput{}, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return UploadOutput{}, fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(input.Data); err != nil {
		tmp.Close()
		return UploadOutput{}, fmt.Errorf("failed to write file content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return UploadOutput{}, fmt.Errorf("failed to write file content: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return UploadOutput{}, fmt.Errorf("failed to move file into place: %w", err)
	}

	return UploadOutput{
		URL:         p.url(key, fullPath),
		Key:         key,
		Size:        int64(len(input.Data)),
		ContentType: contentType,
	}, nil
}

func (p *LocalProvider) url(key, fullPath string) string {
	if p.baseURL == "" {
		return fullPath
	}
	return p.baseURL + "/" + key
}

// Delete removes a file; a missing file is not an error.
func (p *LocalProvider) Delete(_ context.Context, key string) error {
	cleaned, err := cleanKey(key)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(p.basePath, filepath.FromSlash(cleaned)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Exists checks if a file exists
func (p *LocalProvider) Exists(_ context.Context, key string) (bool, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(p.basePath, filepath.FromSlash(cleaned)))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (p *LocalProvider) Name() string {
	return "local"
}
