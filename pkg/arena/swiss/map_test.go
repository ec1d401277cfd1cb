package swiss_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sindarin-lang/rtarena/pkg/arena/swiss"
)

func TestMapPutGetDelete(t *testing.T) {
	m := swiss.NewMap[string, int](8)

	m.Put("a", 1)
	m.Put("b", 2)

	v, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	assert.True(t, m.Has("b"))
	assert.False(t, m.Has("c"))

	assert.Equal(t, 2, m.Count())

	assert.True(t, m.Delete("a"))
	assert.False(t, m.Has("a"))
	assert.Equal(t, 1, m.Count())

	assert.False(t, m.Delete("a"))
}

func TestMapOverwrite(t *testing.T) {
	m := swiss.NewMap[int, string](4)

	m.Put(1, "one")
	m.Put(1, "uno")

	v, ok := m.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "uno", v)
	assert.Equal(t, 1, m.Count())
}

func TestMapGrowsPastInitialCapacity(t *testing.T) {
	m := swiss.NewMap[int, int](4)

	const n = 500
	for i := 0; i < n; i++ {
		m.Put(i, i*i)
	}

	assert.Equal(t, n, m.Count())

	for i := 0; i < n; i++ {
		v, ok := m.Get(i)
		assert.True(t, ok)
		assert.Equal(t, i*i, v)
	}
}

func TestMapDeleteThenRefill(t *testing.T) {
	m := swiss.NewMap[int, int](4)

	for i := 0; i < 64; i++ {
		m.Put(i, i)
	}
	for i := 0; i < 32; i++ {
		assert.True(t, m.Delete(i))
	}
	assert.Equal(t, 32, m.Count())

	for i := 0; i < 32; i++ {
		m.Put(i, i*2)
	}
	assert.Equal(t, 64, m.Count())
	for i := 0; i < 32; i++ {
		v, ok := m.Get(i)
		assert.True(t, ok)
		assert.Equal(t, i*2, v)
	}
}

func TestMapClear(t *testing.T) {
	m := swiss.NewMap[int, int](8)
	for i := 0; i < 10; i++ {
		m.Put(i, i)
	}

	m.Clear()

	assert.Equal(t, 0, m.Count())
	assert.False(t, m.Has(0))
}

func TestMapIter(t *testing.T) {
	m := swiss.NewMap[int, int](8)
	want := map[int]int{}
	for i := 0; i < 20; i++ {
		m.Put(i, i*10)
		want[i] = i * 10
	}

	got := map[int]int{}
	for k, v := range m.Iter() {
		got[k] = v
	}

	assert.Equal(t, want, got)
}

func TestMapPointerValues(t *testing.T) {
	type payload struct{ n int }

	m := swiss.NewMap[uintptr, *payload](4)
	p := &payload{n: 7}
	m.Put(1, p)

	got, ok := m.Get(1)
	assert.True(t, ok)
	assert.Same(t, p, got)
}
