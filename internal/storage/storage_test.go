package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasnoah/reactorctl/internal/config"
)

type putCall struct {
	bucket, key, contentType string
	body                     []byte
}

type mockS3 struct {
	mu    sync.Mutex
	calls []putCall
	err   error
}

func (m *mockS3) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	body, _ := io.ReadAll(in.Body)
	m.mu.Lock()
	m.calls = append(m.calls, putCall{
		bucket:      aws.ToString(in.Bucket),
		key:         aws.ToString(in.Key),
		contentType: aws.ToString(in.ContentType),
		body:        body,
	})
	m.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func testStorage() config.Storage {
	return config.Storage{
		Endpoint:  "https://acct.r2.cloudflarestorage.com",
		Bucket:    "app-knight-videos",
		PublicURL: "https://pub.example.r2.dev/",
		AccessKey: "ak",
		SecretKey: "sk",
		Folder:    "manual",
	}
}

func TestUpload(t *testing.T) {
	m := &mockS3{}
	u := NewWithClient(m, testStorage())

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	url, err := u.Upload(context.Background(), "/home/me/frames/cover.png", png)
	require.NoError(t, err)
	assert.Equal(t, "https://pub.example.r2.dev/manual/cover.png", url)

	require.Len(t, m.calls, 1)
	c := m.calls[0]
	assert.Equal(t, "app-knight-videos", c.bucket)
	assert.Equal(t, "manual/cover.png", c.key)
	assert.Equal(t, "image/png", c.contentType)
	assert.Equal(t, png, c.body)
}

func TestKey_NoFolder(t *testing.T) {
	u := NewWithClient(&mockS3{}, testStorage(), WithFolder(""))
	assert.Equal(t, "clip.mp4", u.Key("a/b/clip.mp4"))
}

func TestUpload_Error(t *testing.T) {
	u := NewWithClient(&mockS3{err: errors.New("access denied")}, testStorage())
	_, err := u.Upload(context.Background(), "x.mp3", []byte("data"))
	assert.ErrorContains(t, err, "put manual/x.mp3")
}

func TestNew_Disabled(t *testing.T) {
	_, err := New(context.Background(), config.Storage{})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestUploadAll_PreservesOrder(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.txt", "b.txt", "c.txt", "d.txt"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(name), 0644))
		paths = append(paths, p)
	}
	m := &mockS3{}
	urls, err := UploadAll(context.Background(), NewWithClient(m, testStorage()), paths)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://pub.example.r2.dev/manual/a.txt",
		"https://pub.example.r2.dev/manual/b.txt",
		"https://pub.example.r2.dev/manual/c.txt",
		"https://pub.example.r2.dev/manual/d.txt",
	}, urls)
	assert.Len(t, m.calls, 4)
}

func TestUploadAll_MissingFile(t *testing.T) {
	_, err := UploadAll(context.Background(), NewWithClient(&mockS3{}, testStorage()), []string{"/does/not/exist.mp4"})
	assert.Error(t, err)
}
