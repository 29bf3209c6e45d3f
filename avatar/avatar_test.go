package avatar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	mclient "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/user/contacts-api/config"
)

func TestAllowedAndKey(t *testing.T) {
	t.Parallel()

	for _, ct := range []string{"image/jpeg", "image/png", "image/webp", "image/gif"} {
		assert.True(t, Allowed(ct), ct)
	}
	assert.False(t, Allowed("text/plain"))
	assert.False(t, Allowed("image/svg+xml"))

	k := Key(42, "image/png")
	assert.True(t, strings.HasPrefix(k, "avatars/42/"), k)
	assert.True(t, strings.HasSuffix(k, ".png"), k)
	assert.NotEqual(t, k, Key(42, "image/png"))
}

func startMinio(t *testing.T) *config.StorageConfig {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "docker.io/minio/minio:latest",
		Env:          map[string]string{"MINIO_ROOT_USER": "root", "MINIO_ROOT_PASSWORD": "rootpass"},
		Cmd:          []string{"server", "/data"},
		ExposedPorts: []string{"9000/tcp"},
		WaitingFor:   wait.ForListeningPort("9000/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "9000/tcp")
	require.NoError(t, err)

	return &config.StorageConfig{
		Endpoint:       fmt.Sprintf("http://%s:%s", host, port.Port()),
		AccessKey:      "root",
		SecretKey:      "rootpass",
		Bucket:         "avatars",
		MaxAvatarBytes: 1 << 20,
	}
}

func TestIntegration_MinioStorage_Upload(t *testing.T) {
	cfg := startMinio(t)
	ctx := context.Background()

	st, err := NewMinioStorage(ctx, cfg)
	require.NoError(t, err, "bucket is created on first connect")

	body := bytes.Repeat([]byte{0x89}, 64)
	url, err := st.Upload(ctx, 7, bytes.NewReader(body), int64(len(body)), "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, cfg.Endpoint+"/avatars/avatars/7/"), url)

	obj, err := st.client.GetObject(ctx, cfg.Bucket, strings.TrimPrefix(url, cfg.Endpoint+"/avatars/"), mclient.GetObjectOptions{})
	require.NoError(t, err)
	got, err := io.ReadAll(obj)
	require.NoError(t, err)
	assert.Equal(t, body, got)

	_, err = st.Upload(ctx, 7, bytes.NewReader(body), int64(len(body)), "text/plain")
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = st.Upload(ctx, 7, bytes.NewReader(nil), 2<<20, "image/png")
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = NewMinioStorage(ctx, cfg)
	require.NoError(t, err, "existing bucket is reused")
}
