// Package hash provides striped read/write locks keyed by object keys.
package hash

import (
	"sort"
	"sync"

	"github.com/rarydzu/monoio/utils"
)

type Hash struct {
	stripes []sync.RWMutex
	size    uint64
}

func New(size uint64) *Hash {
	if size == 0 {
		size = 1
	}
	return &Hash{
		stripes: make([]sync.RWMutex, size),
		size:    size,
	}
}

func (h *Hash) index(key []byte) uint64 {
	return utils.KeyHash(key) % h.size
}

func (h *Hash) Lock(key []byte) {
	h.stripes[h.index(key)].Lock()
}

func (h *Hash) Unlock(key []byte) {
	h.stripes[h.index(key)].Unlock()
}

func (h *Hash) RLock(key []byte) {
	h.stripes[h.index(key)].RLock()
}

func (h *Hash) RUnlock(key []byte) {
	h.stripes[h.index(key)].RUnlock()
}

// LockKeys takes the stripes of every key in ascending stripe order, each
// stripe once, and returns the matching unlock. Shared takes read locks.
func (h *Hash) LockKeys(keys [][]byte, shared bool) (unlock func()) {
	seen := make(map[uint64]bool, len(keys))
	idx := make([]uint64, 0, len(keys))
	for _, k := range keys {
		i := h.index(k)
		if !seen[i] {
			seen[i] = true
			idx = append(idx, i)
		}
	}
	sort.Slice(idx, func(a, b int) bool { return idx[a] < idx[b] })
	for _, i := range idx {
		if shared {
			h.stripes[i].RLock()
		} else {
			h.stripes[i].Lock()
		}
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			if shared {
				h.stripes[idx[j]].RUnlock()
			} else {
				h.stripes[idx[j]].Unlock()
			}
		}
	}
}
