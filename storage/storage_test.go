package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeforge/pngpress/testutil"
)

func TestLocalProvider_Upload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	p, err := NewLocalProvider(dir, "")
	require.NoError(t, err)

	png := testutil.OnePixel(t)
	out, err := p.Upload(ctx, UploadInput{Data: png, Key: "batch/a.png"})
	require.NoError(t, err)

	assert.Equal(t, "batch/a.png", out.Key)
	assert.Equal(t, "image/png", out.ContentType)
	assert.Equal(t, int64(len(png)), out.Size)
	assert.Equal(t, filepath.Join(dir, "batch", "a.png"), out.URL)

	written, err := os.ReadFile(filepath.Join(dir, "batch", "a.png"))
	require.NoError(t, err)
	assert.Equal(t, png, written)

	entries, err := os.ReadDir(filepath.Join(dir, "batch"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	exists, err := p.Exists(ctx, "batch/a.png")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, p.Delete(ctx, "batch/a.png"))
	require.NoError(t, p.Delete(ctx, "batch/a.png"))
	exists, err = p.Exists(ctx, "batch/a.png")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalProvider_BaseURLAndOverwrite(t *testing.T) {
	ctx := context.Background()
	p, err := NewLocalProvider(t.TempDir(), "https://cdn.example.com/")
	require.NoError(t, err)

	out, err := p.Upload(ctx, UploadInput{Data: []byte("first"), Key: "/x.png", ContentType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/x.png", out.URL)
	assert.Equal(t, "image/png", out.ContentType)

	_, err = p.Upload(ctx, UploadInput{Data: []byte("second"), Key: "x.png"})
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(p.basePath, "x.png"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestLocalProvider_RejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	p, err := NewLocalProvider(t.TempDir(), "")
	require.NoError(t, err)

	for _, key := range []string{"../x.png", "a/../../x.png", `..\x.png`, "", "/"} {
		_, err := p.Upload(ctx, UploadInput{Data: []byte("x"), Key: key})
		assert.Error(t, err, key)
	}
	_, err = p.Exists(ctx, "../etc/passwd")
	assert.Error(t, err)
	assert.Error(t, p.Delete(ctx, "../x"))
}

func TestLocalProvider_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p, err := NewLocalProvider(t.TempDir(), "")
	require.NoError(t, err)

	_, err = p.Upload(ctx, UploadInput{Data: []byte("x"), Key: "x.png"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCleanKey(t *testing.T) {
	tests := map[string]string{
		"a.png":       "a.png",
		"/a.png":      "a.png",
		"dir//a.png":  "dir/a.png",
		`dir\a.png`:   "dir/a.png",
		"./dir/a.png": "dir/a.png",
	}
	for in, want := range tests {
		got, err := cleanKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "photo.png", ObjectName("/tmp/in/photo.png"))
	assert.Equal(t, "photo.png", ObjectName("photo"))
	assert.Equal(t, "archive.tar.png", ObjectName("archive.tar.gz"))
	assert.Equal(t, "image.png", ObjectName(".png"))

	a, b := UniqueObjectName("dir/photo.png"), UniqueObjectName("other/photo.png")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "photo-"))
	assert.True(t, strings.HasSuffix(a, ".png"))
	assert.Len(t, a, len("photo-")+8+len(".png"))
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, "image/png", DetectContentType(testutil.OnePixel(t)))
	assert.Equal(t, "text/plain; charset=utf-8", DetectContentType([]byte("hello")))
}

func TestOSSDomain(t *testing.T) {
	tests := []struct {
		cnf  OSSConfig
		want string
	}{
		{OSSConfig{Endpoint: "oss-cn-hangzhou.aliyuncs.com", Bucket: "imgs"}, "https://imgs.oss-cn-hangzhou.aliyuncs.com"},
		{OSSConfig{Endpoint: "https://oss-cn-hangzhou.aliyuncs.com", Bucket: "imgs"}, "https://imgs.oss-cn-hangzhou.aliyuncs.com"},
		{OSSConfig{Domain: "cdn.example.com/"}, "https://cdn.example.com"},
		{OSSConfig{Domain: "http://cdn.example.com"}, "http://cdn.example.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ossDomain(tt.cnf))
	}
}

func TestOSSProvider_ObjectKey(t *testing.T) {
	p, err := NewOSSProvider(OSSConfig{
		Endpoint:        "oss-cn-hangzhou.aliyuncs.com",
		AccessKeyID:     "id",
		AccessKeySecret: "secret",
		Bucket:          "imgs",
		Prefix:          "/compressed/",
	})
	require.NoError(t, err)
	assert.Equal(t, "oss", p.Name())

	key, err := p.objectKey("/a/b.png")
	require.NoError(t, err)
	assert.Equal(t, "compressed/a/b.png", key)

	_, err = p.objectKey("../b.png")
	assert.Error(t, err)
}

func TestProvidersImplementInterface(t *testing.T) {
	var _ Provider = (*LocalProvider)(nil)
	var _ Provider = (*OSSProvider)(nil)
}
