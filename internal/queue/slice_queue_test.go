package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSliceQueue(t *testing.T) {
	t.Run("Empty Queue", func(t *testing.T) {
		q := NewSliceQueue[[]byte](1, 0)

		assert.True(t, q.IsEmpty())
		assert.Equal(t, 0, q.Length())
		_, ok := q.Dequeue()
		assert.False(t, ok)
		_, ok = q.Peek()
		assert.False(t, ok)
	})

	t.Run("Enqueue and Dequeue", func(t *testing.T) {
		q := NewSliceQueue[*frameItem](1, 0)

		item1 := &frameItem{1}
		item2 := &frameItem{2}
		q.Enqueue(item1)
		q.Enqueue(item2)
		assert.Equal(t, 2, q.Length())

		head, ok := q.Peek()
		require.True(t, ok)
		assert.Same(t, item1, head)

		got, ok := q.Dequeue()
		require.True(t, ok)
		assert.Same(t, item1, got)
		assert.Equal(t, 1, q.Length())

		got, ok = q.Dequeue()
		require.True(t, ok)
		assert.Same(t, item2, got)
		assert.True(t, q.IsEmpty())
	})

	t.Run("Limit drops oldest", func(t *testing.T) {
		q := NewSliceQueue[int](0, 3)
		for i := range 5 {
			q.Enqueue(i)
		}

		assert.Equal(t, []int{2, 3, 4}, q.Items())

		items := q.Items()
		items[0] = 99
		assert.Equal(t, []int{2, 3, 4}, q.Items())
	})

	t.Run("Reset", func(t *testing.T) {
		q := NewSliceQueue[int](4, 0)
		q.Enqueue(1)
		q.Enqueue(2)
		q.Reset()
		assert.True(t, q.IsEmpty())
		assert.Empty(t, q.Items())
	})
}
