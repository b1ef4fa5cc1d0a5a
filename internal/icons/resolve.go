// Package icons resolves, decodes and scales notification icons off the
// event loop. Results are delivered on a channel and tagged with the icon
// generation they were requested for.
package icons

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/adrg/xdg"
)

// ErrNotFound is returned when a name resolves to no file.
var ErrNotFound = errors.New("icon not found")

var iconExtensions = []string{".png", ".webp", ".jpg", ".jpeg", ".gif", ".bmp"}

// Resolver maps icon references (paths, file:// URIs, theme names) to files.
// It is safe for concurrent use; lookups are cached, misses included.
type Resolver struct {
	themes []string
	dirs   []string

	mu    sync.Mutex
	cache map[string]string
}

// NewResolver searches the given theme, then hicolor, under the XDG data
// directories.
func NewResolver(theme string) *Resolver {
	dirs := append([]string{xdg.DataHome}, xdg.DataDirs...)
	return NewResolverWithDirs(theme, dirs)
}

// NewResolverWithDirs searches explicit data directories.
func NewResolverWithDirs(theme string, dirs []string) *Resolver {
	themes := []string{}
	if theme != "" {
		themes = append(themes, theme)
	}
	if theme != "hicolor" {
		themes = append(themes, "hicolor")
	}
	return &Resolver{
		themes: themes,
		dirs:   dirs,
		cache:  make(map[string]string),
	}
}

// Resolve returns the file for ref at roughly size pixels.
func (r *Resolver) Resolve(ref string, size int) (string, error) {
	if ref == "" {
		return "", ErrNotFound
	}

	if strings.HasPrefix(ref, "file://") {
		u, err := url.Parse(ref)
		if err != nil {
			return "", ErrNotFound
		}
		ref = u.Path
	}
	if filepath.IsAbs(ref) {
		if _, err := os.Stat(ref); err != nil {
			return "", ErrNotFound
		}
		return ref, nil
	}

	key := ref + "@" + strconv.Itoa(size)
	r.mu.Lock()
	path, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		if path == "" {
			return "", ErrNotFound
		}
		return path, nil
	}

	path = r.lookup(ref, size)
	r.mu.Lock()
	r.cache[key] = path
	r.mu.Unlock()

	if path == "" {
		return "", ErrNotFound
	}
	return path, nil
}

func (r *Resolver) lookup(name string, size int) string {
	for _, theme := range r.themes {
		best, bestSize := "", 0
		for _, base := range r.dirs {
			root := filepath.Join(base, "icons", theme)
			for _, ext := range iconExtensions {
				matches, _ := filepath.Glob(filepath.Join(root, "*", "*", name+ext))
				for _, m := range matches {
					s := sizeFromPath(m, root)
					if better(s, bestSize, size) {
						best, bestSize = m, s
					}
				}
			}
		}
		if best != "" {
			return best
		}
	}

	for _, base := range r.dirs {
		for _, ext := range iconExtensions {
			p := filepath.Join(base, "pixmaps", name+ext)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	return ""
}

// sizeFromPath reads the "48x48" or "48" directory under root. Scalable and
// unknown directories count as 0.
func sizeFromPath(path, root string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return 0
	}
	dir := strings.Split(rel, string(filepath.Separator))[0]
	dir, _, _ = strings.Cut(dir, "@")
	w, _, _ := strings.Cut(dir, "x")
	n, err := strconv.Atoi(w)
	if err != nil {
		return 0
	}
	return n
}

// better prefers the smallest size at or above want, then the largest below.
func better(candidate, current, want int) bool {
	if current == 0 {
		return true
	}
	candUp, curUp := candidate >= want, current >= want
	switch {
	case candUp && !curUp:
		return true
	case !candUp && curUp:
		return false
	case candUp:
		return candidate < current
	default:
		return candidate > current
	}
}
