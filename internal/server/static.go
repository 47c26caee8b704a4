// Mirror-tree and dashboard serving. The tree is served verbatim: response
// bodies are byte-identical to the files on disk, content types inferred
// from extensions, missing paths answered with a JSON 404.
package server

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lvillar/webmirror/webui"
)

// dashboardPrefix is where the embedded control UI lives, chosen to never
// collide with mirrored site paths.
const dashboardPrefix = "/_webmirror"

// registerDashboard mounts the embedded web UI.
func (s *Server) registerDashboard(r *gin.Engine) {
	sub, err := fs.Sub(webui.FS, "web")
	if err != nil {
		panic("embed: web sub-fs failed: " + err.Error())
	}
	r.StaticFS(dashboardPrefix, http.FS(sub))
}

// registerMirror makes every unmatched route resolve into the mirror tree.
func (s *Server) registerMirror(r *gin.Engine) {
	r.NoRoute(s.serveMirrorFile)
}

func (s *Server) serveMirrorFile(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
		return
	}

	rel, ok := mirrorPath(c.Request.URL.Path)
	if !ok {
		notFoundTotal.Inc()
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	target := filepath.Join(s.cfg.OutputDir, filepath.FromSlash(rel))
	info, err := os.Stat(target)
	if err == nil && info.IsDir() {
		target = filepath.Join(target, "index.html")
		info, err = os.Stat(target)
	}
	if err != nil || info.IsDir() {
		notFoundTotal.Inc()
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	bytesServedTotal.Add(float64(info.Size()))
	c.File(target)
}

// mirrorPath normalizes a request path into a tree-relative file path.
// Dotfiles and escapes are rejected.
func mirrorPath(reqPath string) (string, bool) {
	cleaned := path.Clean("/" + reqPath)
	if cleaned == "/" {
		return "index.html", true
	}
	rel := strings.TrimPrefix(cleaned, "/")
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." || strings.HasPrefix(seg, ".") {
			return "", false
		}
	}
	return rel, true
}
