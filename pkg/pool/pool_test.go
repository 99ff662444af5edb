package pool

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolResetsAndCounts(t *testing.T) {
	p := New(
		func() *bytes.Buffer { return new(bytes.Buffer) },
		func(b *bytes.Buffer) { b.Reset() },
	)

	buf := p.Get()
	buf.WriteString("payload")
	_, inUse, gets := p.Stats()
	assert.Equal(t, int64(1), inUse)
	assert.Equal(t, int64(1), gets)

	p.Put(buf)
	assert.Equal(t, 0, buf.Len())

	allocated, inUse, gets := p.Stats()
	assert.GreaterOrEqual(t, allocated, int64(1))
	assert.Equal(t, int64(0), inUse)
	assert.Equal(t, int64(1), gets)
}

func TestBuffersConcurrentUse(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buf := GetBuffer()
				assert.Equal(t, 0, buf.Len())
				buf.WriteString("x")
				PutBuffer(buf)
			}
		}()
	}
	wg.Wait()
}

func TestOversizedBufferIsDropped(t *testing.T) {
	buf := GetBuffer()
	buf.Grow(maxPooledBuffer + 1)
	PutBuffer(buf)
	assert.Equal(t, 0, buf.Cap())
}
