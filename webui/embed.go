// Package webui exposes the embedded dashboard filesystem.
// It lives at the module root so go:embed can reach the sibling web/
// directory; internal/server mounts it under /_webmirror/.
package webui

import "embed"

// FS is the embedded dashboard tree.
//
//go:embed web
var FS embed.FS
