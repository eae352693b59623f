package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLane_RunsInOrder(t *testing.T) {
	l := NewLane()
	defer l.Close()

	var got []int
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, l.Do(context.Background(), func() {}))

	want := make([]int, 50)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got)
}

func TestLane_PostFromLane(t *testing.T) {
	l := NewLane()
	defer l.Close()

	var order []string
	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, l.Do(context.Background(), func() {
		order = append(order, "outer")
		l.Post(func() {
			order = append(order, "inner")
			wg.Done()
		})
	}))
	wg.Wait()
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestLane_SurvivesPanic(t *testing.T) {
	l := NewLane()
	defer l.Close()

	require.NoError(t, l.Do(context.Background(), func() { panic("boom") }))

	ran := false
	require.NoError(t, l.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestLane_DoHonoursContext(t *testing.T) {
	l := NewLane()
	defer l.Close()

	release := make(chan struct{})
	l.Post(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Do(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestLane_Closed(t *testing.T) {
	l := NewLane()
	l.Close()
	assert.ErrorIs(t, l.Post(func() {}), ErrLaneClosed)
	assert.ErrorIs(t, l.Do(context.Background(), func() {}), ErrLaneClosed)
	l.Close()
}
