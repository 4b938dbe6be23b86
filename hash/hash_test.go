package hash

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func sleep(h *Hash, seconds int, endSignal chan<- bool) {
	h.Lock([]byte("dkey\x00a"))
	defer h.Unlock([]byte("dkey\x00a"))
	h.Lock([]byte("dkey\x00b"))
	defer h.Unlock([]byte("dkey\x00b"))
	time.Sleep(time.Duration(seconds) * time.Second)
	endSignal <- true
}

func TestHash(t *testing.T) {
	var end bool
	// one stripe per key so the nested locks above never share a mutex
	hash := New(1 << 16)
	if hash.index([]byte("dkey\x00a")) == hash.index([]byte("dkey\x00b")) {
		t.Skip("keys collide")
	}
	endSignal := make(chan bool, 1)
	go sleep(hash, 1, endSignal)
	for !end {
		select {
		case end = <-endSignal:
		case <-time.After(2 * time.Second):
			t.Error("TestHash failed")
			end = true
		}
	}
}

func TestLockKeysNoDeadlock(t *testing.T) {
	h := New(4)
	keys := make([][]byte, 16)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("akey-%d", i))
	}
	reversed := make([][]byte, len(keys))
	for i, k := range keys {
		reversed[len(keys)-1-i] = k
	}
	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(2)
			shared := i%2 == 0
			go func() {
				defer wg.Done()
				h.LockKeys(keys, false)()
			}()
			go func() {
				defer wg.Done()
				h.LockKeys(reversed, shared)()
			}()
		}
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("LockKeys deadlocked")
	}
}

func TestLockKeysShared(t *testing.T) {
	h := New(8)
	keys := [][]byte{[]byte("x"), []byte("y"), []byte("x")}
	unlock := h.LockKeys(keys, true)
	// readers share the stripe
	second := h.LockKeys(keys, true)
	second()
	unlock()
	// all stripes free again
	h.LockKeys(keys, false)()
}
