// Package storage writes compressed images to a local directory or an
// Aliyun OSS bucket.
package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Provider 存储提供者接口
type Provider interface {
	Upload(ctx context.Context, input UploadInput) (UploadOutput, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Name() string
}

// UploadInput 上传输入
type UploadInput struct {
	Data []byte
	// Key is a slash separated object name relative to the provider root.
	Key string
	// ContentType is sniffed from Data when empty.
	ContentType string
}

// UploadOutput 上传输出
type UploadOutput struct {
	URL         string
	Key         string
	Size        int64
	ContentType string
}

// DetectContentType sniffs data, e.g. "image/png".
func DetectContentType(data []byte) string {
	return mimetype.Detect(data).String()
}

// ObjectName maps a source file to "<stem>.png".
func ObjectName(source string) string {
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = "image"
	}
	return stem + ".png"
}

// UniqueObjectName is ObjectName with a random suffix, for batches whose
// sources share a base name.
func UniqueObjectName(source string) string {
	name := ObjectName(source)
	return strings.TrimSuffix(name, ".png") + "-" + uuid.NewString()[:8] + ".png"
}

// cleanKey normalizes key and rejects keys with ".." segments.
func cleanKey(key string) (string, error) {
	key = strings.ReplaceAll(key, "\\", "/")
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return "", fmt.Errorf("object key %q escapes the storage root", key)
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+key), "/")
	if cleaned == "" {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return cleaned, nil
}

func prepare(input UploadInput) (string, string, error) {
	key, err := cleanKey(input.Key)
	if err != nil {
		return "", "", err
	}
	contentType := input.ContentType
	if contentType == "" {
		contentType = DetectContentType(input.Data)
	}
	return key, contentType, nil
}
