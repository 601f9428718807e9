package proxy

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const indexFile = "index.html"

// spaHandler serves files from dir and falls back to index.html for client routes
type spaHandler struct {
	dir string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := path.Clean("/" + r.URL.Path)
	if name != "/" && !strings.HasSuffix(name, "/"+indexFile) {
		if h.serveFile(w, r, name) {
			return
		}
	}
	if !h.serveFile(w, r, "/"+indexFile) {
		writePage(w, r, http.StatusNotFound, "Not found", "The BioGames app has not been built.")
	}
}

// serveFile writes the named file if it is a regular file under dir
func (h spaHandler) serveFile(w http.ResponseWriter, r *http.Request, name string) bool {
	f, err := os.Open(filepath.Join(h.dir, filepath.FromSlash(name)))
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return false
	}

	if path.Base(name) == indexFile {
		w.Header().Set("Cache-Control", "no-cache")
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	return true
}

func checkBuildDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &fs.PathError{Op: "stat", Path: dir, Err: errors.New("not a directory")}
	}
	return nil
}
