package sync_test

import (
	"fmt"
	gosync "sync"
	"testing"

	"github.com/hbomb79/batchconv/pkg/sync"
	"github.com/stretchr/testify/assert"
)

func Test_TypedSyncMap(t *testing.T) {
	t.Parallel()

	var m sync.TypedSyncMap[string, int]
	_, ok := m.Load("missing")
	assert.False(t, ok)

	v, loaded := m.LoadOrStore("a", 1)
	assert.False(t, loaded)
	assert.Equal(t, 1, v)

	v, loaded = m.LoadOrStore("a", 2)
	assert.True(t, loaded)
	assert.Equal(t, 1, v, "existing value should be returned")

	m.Store("a", 3)
	v, ok = m.Load("a")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func Test_TypedSyncMap_ConcurrentLoadOrStore(t *testing.T) {
	t.Parallel()

	var m sync.TypedSyncMap[string, struct{}]
	wg := gosync.WaitGroup{}
	stored := make(chan string, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("dir-%d", i%10)
			if _, loaded := m.LoadOrStore(key, struct{}{}); !loaded {
				stored <- key
			}
		}(i)
	}
	wg.Wait()
	close(stored)

	count := 0
	for range stored {
		count++
	}
	assert.Equal(t, 10, count, "each key should be stored exactly once")
}
