// Package assets provides access to embedded static files such as SQL, CSS, images, and HTML templates.
package assets

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed css/*.css img/*.svg js/*.js migrations/*.sql templates/*.html data/*.json
var embedFS embed.FS

// GetFileSystem returns an http.FileSystem interface for the embedded assets,
// rooted at the current directory of the embed.FS.
func GetFileSystem() http.FileSystem {
	return http.FS(embedFS)
}

// Migrations returns the SQL migration files rooted at their directory.
func Migrations() fs.FS {
	return mustSub("migrations")
}

// Templates returns the HTML page templates rooted at their directory.
func Templates() fs.FS {
	return mustSub("templates")
}

func mustSub(dir string) fs.FS {
	fsys, err := fs.Sub(embedFS, dir)
	if err != nil {
		panic(err)
	}
	return fsys
}
