package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

const tmpSuffix = ".xcp-tmp"

// tmpRegistry tracks in-progress temporary files so anything a worker could
// not remove itself is cleaned up when the pool closes.
type tmpRegistry struct {
	paths *xsync.MapOf[string, struct{}]
}

func newTmpRegistry() *tmpRegistry {
	return &tmpRegistry{paths: xsync.NewMapOf[string, struct{}]()}
}

// tmpPathFor returns a unique hidden sibling of dst.
func tmpPathFor(dst string) string {
	name := fmt.Sprintf(".%s.%s%s", filepath.Base(dst), uuid.NewString()[:8], tmpSuffix)
	return filepath.Join(filepath.Dir(dst), name)
}

func (r *tmpRegistry) register(path string)   { r.paths.Store(path, struct{}{}) }
func (r *tmpRegistry) deregister(path string) { r.paths.Delete(path) }

// cleanup removes every registered temporary file and returns how many
// were left behind.
func (r *tmpRegistry) cleanup() int {
	n := 0
	r.paths.Range(func(path string, _ struct{}) bool {
		_ = os.Remove(path)
		r.paths.Delete(path)
		n++
		return true
	})
	return n
}
