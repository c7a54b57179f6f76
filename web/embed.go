package web

import "embed"

// FS contains the embedded dashboard assets.
//
//go:embed index.html
var FS embed.FS
