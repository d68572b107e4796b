package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

// OSSConfig Aliyun OSS 连接参数
type OSSConfig struct {
	// Endpoint, e.g. oss-cn-hangzhou.aliyuncs.com
	Endpoint        string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	// Domain is a custom or CDN domain used in returned URLs.
	Domain string
	// Prefix is prepended to every object key.
	Prefix string
}

// OSSProvider implements Provider for Aliyun OSS
type OSSProvider struct {
	bucket *oss.Bucket
	domain string
	prefix string
}

// NewOSSProvider creates a new OSS storage provider
func NewOSSProvider(cnf OSSConfig) (*OSSProvider, error) {
	client, err := oss.New(cnf.Endpoint, cnf.AccessKeyID, cnf.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cnf.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket %s: %w", cnf.Bucket, err)
	}

	return &OSSProvider{
		bucket: bucket,
		domain: ossDomain(cnf),
		prefix: strings.Trim(cnf.Prefix, "/"),
	}, nil
}

// ossDomain defaults to the bucket domain and always carries a scheme.
func ossDomain(cnf OSSConfig) string {
	domain := strings.TrimSuffix(cnf.Domain, "/")
	if domain == "" {
		endpoint := cnf.Endpoint
		if i := strings.Index(endpoint, "://"); i >= 0 {
			endpoint = endpoint[i+3:]
		}
		return fmt.Sprintf("https://%s.%s", cnf.Bucket, endpoint)
	}
	if !strings.HasPrefix(domain, "http://") && !strings.HasPrefix(domain, "https://") {
		domain = "https://" + domain
	}
	return domain
}

func (p *OSSProvider) objectKey(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if p.prefix == "" {
		return cleaned, nil
	}
	return p.prefix + "/" + cleaned, nil
}

// Upload puts the object with its content type.
func (p *OSSProvider) Upload(ctx context.Context, input UploadInput) (UploadOutput, error) {
	_, contentType, err := prepare(input)
	if err != nil {
		return UploadOutput{}, err
	}
	objectKey, err := p.objectKey(input.Key)
	if err != nil {
		return UploadOutput{}, err
	}

	err = p.bucket.PutObject(objectKey, bytes.NewReader(input.Data),
		oss.ContentType(contentType),
		oss.WithContext(ctx),
	)
	if err != nil {
		return UploadOutput{}, fmt.Errorf("failed to upload to OSS: %w", err)
	}

	return UploadOutput{
		URL:         p.domain + "/" + objectKey,
		Key:         objectKey,
		Size:        int64(len(input.Data)),
		ContentType: contentType,
	}, nil
}

// Delete removes an object from OSS
func (p *OSSProvider) Delete(ctx context.Context, key string) error {
	objectKey, err := p.objectKey(key)
	if err != nil {
		return err
	}
	if err := p.bucket.DeleteObject(objectKey, oss.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to delete from OSS: %w", err)
	}
	return nil
}

// Exists checks if an object exists in OSS
func (p *OSSProvider) Exists(ctx context.Context, key string) (bool, error) {
	objectKey, err := p.objectKey(key)
	if err != nil {
		return false, err
	}
	return p.bucket.IsObjectExist(objectKey, oss.WithContext(ctx))
}

func (p *OSSProvider) Name() string {
	return "oss"
}
