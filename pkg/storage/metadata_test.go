package storage

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadataBasics(t *testing.T) {
	m := NewMetadata()
	m.Set("b", 2)
	m.Set("a", 10)
	m.Set("b", 3)

	assert.Equal(t, []string{"a", "b"}, m.Names())
	files, total := m.Totals()
	assert.Equal(t, 2, files)
	assert.EqualValues(t, 13, total)

	snap := m.Snapshot()
	snap["c"] = 1
	_, ok := m.Get("c")
	assert.False(t, ok)

	m.Remove("a")
	_, ok = m.Get("a")
	assert.False(t, ok)

	m.Replace(map[string]int64{"z": 1})
	assert.Equal(t, []string{"z"}, m.Names())
}

func TestMetadataConcurrentAccess(t *testing.T) {
	m := NewMetadata()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				name := fmt.Sprintf("f-%d-%d", i, j)
				m.Set(name, int64(j))
				m.Names()
				if j%2 == 0 {
					m.Remove(name)
				}
			}
		}(i)
	}
	wg.Wait()
	files, _ := m.Totals()
	assert.Equal(t, 8*50, files)
}
