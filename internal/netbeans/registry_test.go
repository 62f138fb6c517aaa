package netbeans

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestRegistryGet(t *testing.T) {
	r := NewRegistry()

	a, err := r.Get("/tmp/a.py")
	require.NoError(t, err)
	b, err := r.Get("/tmp/b.py")
	require.NoError(t, err)
	again, err := r.Get("/tmp/a.py")
	require.NoError(t, err)

	assert.Equal(t, 1, a.ID())
	assert.Equal(t, 2, b.ID())
	assert.Same(t, a, again)
	assert.Equal(t, 2, r.Len())
}

func TestRegistryRelativePath(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("relative/path.py")
	var ipe *InvalidPathnameError
	require.True(t, xerrors.As(err, &ipe), "got %v", err)
	assert.Equal(t, "relative/path.py", ipe.Pathname)
	assert.Equal(t, 0, r.Len())
}

func TestRegistryByID(t *testing.T) {
	r := NewRegistry()
	a, _ := r.Get("/x")
	b, _ := r.Get("/y")

	assert.Same(t, a, r.ByID(1))
	assert.Same(t, b, r.ByID(2))
	assert.Nil(t, r.ByID(0))
	assert.Nil(t, r.ByID(-1))
	assert.Nil(t, r.ByID(3))
}

func TestRegistryConcurrentIDs(t *testing.T) {
	const workers, perWorker = 8, 50
	r := NewRegistry()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				// every worker asks for every name, in a different order
				n := (i + w*7) % perWorker
				_, err := r.Get(fmt.Sprintf("/file/%d", n))
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	require.Equal(t, perWorker, r.Len())
	seen := make(map[string]bool)
	for id := 1; id <= perWorker; id++ {
		b := r.ByID(id)
		require.NotNil(t, b)
		assert.Equal(t, id, b.ID())
		assert.False(t, seen[b.Name()], "duplicate pathname %v", b.Name())
		seen[b.Name()] = true
		same, _ := r.Get(b.Name())
		assert.Same(t, b, same)
	}
}
