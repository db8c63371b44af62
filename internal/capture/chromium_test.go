package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureMapPNGValidatesOptions(t *testing.T) {
	err := CaptureMapPNG(context.Background(), Options{OutputPath: "x.png"})
	assert.EqualError(t, err, "capture: URL is required")

	err = CaptureMapPNG(context.Background(), Options{URL: "http://127.0.0.1:1/"})
	assert.EqualError(t, err, "capture: OutputPath is required")
}

func TestNormalizeDefaults(t *testing.T) {
	o := Options{URL: "http://127.0.0.1:8080/", OutputPath: "out.png"}
	require.NoError(t, o.normalize())
	assert.Equal(t, DefaultWidth, o.Width)
	assert.Equal(t, DefaultHeight, o.Height)
	assert.Equal(t, DefaultTimeout, o.Timeout)
}

func TestTasks(t *testing.T) {
	var png []byte
	o := Options{URL: "http://127.0.0.1:8080/", OutputPath: "out.png"}
	require.NoError(t, o.normalize())
	assert.Len(t, tasks(o, &png), 5)

	o.Username, o.Password = "admin", "s3cret"
	assert.Len(t, tasks(o, &png), 7, "auth adds network setup")
}

func TestAuthHeader(t *testing.T) {
	assert.Equal(t, "", authHeader("admin", ""))
	assert.Equal(t, "Basic YWRtaW46czNjcmV0", authHeader("admin", "s3cret"))
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "preview.png")
	require.NoError(t, writeFileAtomic(path, []byte("png")))
	require.NoError(t, writeFileAtomic(path, []byte("png2")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png2", string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}
