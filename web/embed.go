// Package web carries the frontend bundle built into the binary.
package web

import (
	"embed"
	"io/fs"
)

//go:embed all:dist
var dist embed.FS

// Dist returns the bundle rooted at the dist directory
func Dist() fs.FS {
	sub, err := fs.Sub(dist, "dist")
	if err != nil {
		// "dist" is a valid path embedded above
		panic(err)
	}
	return sub
}
