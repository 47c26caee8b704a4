package deploy

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvillar/webmirror/internal/config"
)

func buildTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "css"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>home</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "css", "main.css"), []byte("body{}"), 0o644))
	return dir
}

func TestList(t *testing.T) {
	dir := buildTree(t)
	files, err := List(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"index.html", "css/main.css"}, files)
}

func TestWriteTarRoundTrip(t *testing.T) {
	dir := buildTree(t)

	var buf bytes.Buffer
	count, total, err := writeTar(&buf, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, int64(len("<html>home</html>")+len("body{}")), total)

	got := map[string]string{}
	tr := tar.NewReader(&buf)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		got[hdr.Name] = string(body)
		assert.Equal(t, int64(0o644), hdr.Mode)
	}
	assert.Equal(t, map[string]string{
		"index.html":   "<html>home</html>",
		"css/main.css": "body{}",
	}, got)
}

func TestDialRequiresHost(t *testing.T) {
	_, err := Dial(&config.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deploy_host")
}

func TestDialRequiresAuth(t *testing.T) {
	_, err := Dial(&config.Config{
		DeployHost:    "203.0.113.7",
		DeployKeyPath: filepath.Join(t.TempDir(), "no-such-key"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable SSH auth")
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "'/var/www/site'", shellQuote("/var/www/site"))
	assert.Equal(t, `'it'"'"'s'`, shellQuote("it's"))
}
