package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReportsMutatedSessions(t *testing.T) {
	st := New()
	defer st.Close()
	require.NoError(t, st.Create("s1", testSession(testPlayer("u1", false))))

	w, err := st.Watch()
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, st.Update("s1", Heartbeat{UserID: "u1", At: time.Now()}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ids, err := w.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)
}

func TestWatcher_CoalescesPerSession(t *testing.T) {
	st := New()
	defer st.Close()
	require.NoError(t, st.Create("s1", testSession(testPlayer("u1", false))))
	require.NoError(t, st.Create("s2", testSession(testPlayer("u2", false))))

	w, err := st.Watch()
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, st.Update("s1", Heartbeat{UserID: "u1", At: time.Now()}))
	}
	require.NoError(t, st.Update("s2", Heartbeat{UserID: "u2", At: time.Now()}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ids, err := w.Next(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, ids)
}

func TestWatcher_SeesCreates(t *testing.T) {
	st := New()
	defer st.Close()

	w, err := st.Watch()
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, st.Create("s1", testSession()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ids, err := w.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)
}

func TestWatcher_NextBlocksUntilChange(t *testing.T) {
	st := New()
	defer st.Close()
	require.NoError(t, st.Create("s1", testSession(testPlayer("u1", false))))

	w, err := st.Watch()
	require.NoError(t, err)
	defer w.Close()

	// Drain the create notification first.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = w.Next(ctx)
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = st.Update("s1", Heartbeat{UserID: "u1", At: time.Now()})
	}()

	ids, err := w.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)
}

func TestWatcher_ContextCancel(t *testing.T) {
	st := New()
	defer st.Close()

	w, err := st.Watch()
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = w.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWatcher_CloseUnblocksNext(t *testing.T) {
	st := New()
	defer st.Close()

	w, err := st.Watch()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := w.Next(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	w.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStoreClosed)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Close")
	}
}
