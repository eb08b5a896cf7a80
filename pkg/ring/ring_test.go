package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopBack(t *testing.T) {
	d := New[int](3)
	d.PushBack(1)
	d.PushBack(2)
	d.PushBack(3)

	assert.Equal(t, 3, d.Len())

	v, ok := d.PopBack()
	require.True(t, ok)
	assert.Equal(t, 3, v)

	v, ok = d.PopBack()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	assert.Equal(t, 1, d.Len())
}

func TestEvictsOldestWhenFull(t *testing.T) {
	d := New[string](2)

	_, evicted := d.PushBack("a")
	assert.False(t, evicted)
	_, evicted = d.PushBack("b")
	assert.False(t, evicted)

	old, evicted := d.PushBack("c")
	require.True(t, evicted)
	assert.Equal(t, "a", old)

	assert.Equal(t, []string{"b", "c"}, d.Items())
}

func TestWraparound(t *testing.T) {
	d := New[int](3)
	for i := 1; i <= 10; i++ {
		d.PushBack(i)
	}
	assert.Equal(t, []int{8, 9, 10}, d.Items())

	v, ok := d.PopFront()
	require.True(t, ok)
	assert.Equal(t, 8, v)

	d.PushBack(11)
	assert.Equal(t, []int{9, 10, 11}, d.Items())
}

func TestEmptyPops(t *testing.T) {
	d := New[int](2)

	_, ok := d.PopBack()
	assert.False(t, ok)
	_, ok = d.PopFront()
	assert.False(t, ok)
	_, ok = d.PeekBack()
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	d := New[int](4)
	d.PushBack(1)
	d.PushBack(2)
	d.Clear()

	assert.Equal(t, 0, d.Len())
	assert.Equal(t, 4, d.Cap())

	d.PushBack(7)
	assert.Equal(t, []int{7}, d.Items())
}

func TestMinimumCapacity(t *testing.T) {
	d := New[int](0)
	assert.Equal(t, 1, d.Cap())

	d.PushBack(1)
	old, evicted := d.PushBack(2)
	require.True(t, evicted)
	assert.Equal(t, 1, old)
}
