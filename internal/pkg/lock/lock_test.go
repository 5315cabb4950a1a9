package lock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestTryLock(t *testing.T) {
	kl := NewKeyLock()

	assert.True(t, kl.TryLock("tx-1"))
	assert.False(t, kl.TryLock("tx-1"), "second TryLock on held key must fail")
	assert.True(t, kl.TryLock("tx-2"), "distinct keys are independent")

	kl.Unlock("tx-1")
	assert.True(t, kl.TryLock("tx-1"))
	kl.Unlock("tx-1")
	kl.Unlock("tx-2")
}

func TestWithLockSerializes(t *testing.T) {
	kl := NewKeyLock()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = kl.WithLock("acct", func() error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

// Under any interleaving of lock/unlock across random keys, each key admits
// exactly one holder at a time.
func TestMutualExclusionProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		kl := NewKeyLock()
		keys := rapid.SliceOfN(rapid.StringMatching(`k[0-9]`), 1, 10).Draw(t, "keys")

		held := make(map[string]int)
		var mu sync.Mutex
		var wg sync.WaitGroup

		for _, k := range keys {
			wg.Add(1)
			go func(key string) {
				defer wg.Done()
				kl.Lock(key)
				mu.Lock()
				held[key]++
				if held[key] > 1 {
					mu.Unlock()
					kl.Unlock(key)
					t.Errorf("key %q held by more than one goroutine", key)
					return
				}
				mu.Unlock()

				mu.Lock()
				held[key]--
				mu.Unlock()
				kl.Unlock(key)
			}(k)
		}
		wg.Wait()
	})
}
