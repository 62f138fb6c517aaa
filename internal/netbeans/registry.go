package netbeans

import (
	"path/filepath"
	"sync"

	"github.com/jbpratt78/vimoir/internal/types"
)

// Registry maps pathnames to buffers. Buffers are numbered from one in
// allocation order and are never removed for the life of the session, so a
// buffer number always refers to the same file.
//
// It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	buffers []*types.Buffer
	byName  map[string]int
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]int),
	}
}

// Get returns the buffer for pathname, creating it with the next buffer
// number when it does not exist yet. pathname must be absolute.
func (r *Registry) Get(pathname string) (*types.Buffer, error) {
	if !filepath.IsAbs(pathname) {
		return nil, &InvalidPathnameError{Pathname: pathname}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.byName[pathname]; ok {
		return r.buffers[i], nil
	}
	b := types.NewBuffer(pathname, len(r.buffers)+1)
	r.byName[pathname] = len(r.buffers)
	r.buffers = append(r.buffers, b)
	return b, nil
}

// ByID returns the buffer numbered id, or nil.
func (r *Registry) ByID(id int) *types.Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id <= 0 || id > len(r.buffers) {
		return nil
	}
	return r.buffers[id-1]
}

// Len returns the number of buffers allocated so far.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffers)
}
