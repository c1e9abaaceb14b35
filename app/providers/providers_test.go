package providers_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/upbridge/app/providers"
	"github.com/shashiranjanraj/upbridge/pkg/callback"
	"github.com/shashiranjanraj/upbridge/pkg/router"
	"github.com/shashiranjanraj/upbridge/pkg/uploader"
)

func env(t *testing.T) {
	t.Helper()
	t.Setenv("STORAGE_DISK", "local")
	t.Setenv("STORAGE_LOCAL_ROOT", t.TempDir())
	t.Setenv("UPLOAD_STORE", "memory")
	t.Setenv("UPLOAD_AUTO", "true")
	t.Setenv("S3_BUCKET", "")
	t.Setenv("LOG_MONGO_URI", "")
}

func TestBuild_WiresEngineAndRoutes(t *testing.T) {
	env(t)

	var submitted []string
	c, err := providers.Build(context.Background(), map[string]callback.Handler{
		callback.OnSubmitted: func(args ...any) any {
			submitted = append(submitted, args[1].(string))
			return nil
		},
	})
	require.NoError(t, err)
	defer c.Close()

	rec, err := c.Uploader.AddFile(context.Background(), "a.txt", bytes.NewReader([]byte("abc")))
	require.NoError(t, err)
	c.Uploader.Wait()

	got, err := c.Uploader.GetUpload(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, uploader.StatusUploadSuccessful, got.Status)
	assert.Equal(t, []string{"a.txt"}, submitted)
	assert.Equal(t, "local", got.Disk)

	r := router.New()
	c.RegisterRoutes(r)
	path, ok := r.Path("uploads.store")
	require.True(t, ok)
	assert.Equal(t, "/api/uploads", path)
}

func TestBuild_UnknownStore(t *testing.T) {
	env(t)
	t.Setenv("UPLOAD_STORE", "etcd")

	_, err := providers.Build(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "etcd")
}
