// Package storage maps public upload URLs to files on local disk and removes them.
package storage

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Remover deletes stored blobs by local path.
type Remover interface {
	Remove(paths ...string) int
}

// LocalStore serves files under root at urlPrefix.
type LocalStore struct {
	root      string
	urlPrefix string
}

func NewLocalStore(root, urlPrefix string) *LocalStore {
	if urlPrefix == "" {
		urlPrefix = "/uploads/"
	}
	if !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}
	return &LocalStore{root: filepath.Clean(root), urlPrefix: urlPrefix}
}

// ResolveURL returns the local path backing url, or "" when url points elsewhere.
func (s *LocalStore) ResolveURL(url string) string {
	rest, ok := strings.CutPrefix(url, s.urlPrefix)
	if !ok || rest == "" {
		return ""
	}
	p := filepath.Join(s.root, filepath.FromSlash(rest))
	if !s.contains(p) {
		return ""
	}
	return p
}

// Remove deletes each path that lives under the store root. Missing files are not errors.
// It returns how many files were actually removed.
func (s *LocalStore) Remove(paths ...string) int {
	removed := 0
	for _, p := range paths {
		if p == "" {
			continue
		}
		p = filepath.Clean(p)
		if !s.contains(p) {
			log.Printf("storage: refusing to remove %s outside %s", p, s.root)
			continue
		}
		if err := os.Remove(p); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				log.Printf("storage: remove %s: %v", p, err)
			}
			continue
		}
		removed++
	}
	return removed
}

func (s *LocalStore) contains(p string) bool {
	rel, err := filepath.Rel(s.root, p)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
