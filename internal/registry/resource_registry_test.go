package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"modeld/internal/status"
)

type fakeResource struct{ n int }

func TestRegistryRegisterAndAcquire(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(1, &fakeResource{n: 7}))
	require.True(t, r.HasResource(1))

	lock, err := Acquire[*fakeResource](r, 1)
	require.NoError(t, err)
	defer lock.Unlock()
	require.Equal(t, 7, lock.Value().n)
}

func TestRegistryRegisterRejectsNilAndDuplicate(t *testing.T) {
	r := New()
	err := r.Register(1, nil)
	require.True(t, status.IsInvalidArgument(err))

	require.NoError(t, r.Register(2, &fakeResource{}))
	err = r.Register(2, &fakeResource{})
	require.True(t, status.IsAlreadyExists(err))
}

func TestRegistryAcquireMissingOrWrongType(t *testing.T) {
	r := New()
	_, err := Acquire[*fakeResource](r, 99)
	require.True(t, status.IsNotFound(err))

	require.NoError(t, r.Register(3, &fakeResource{}))
	_, err = Acquire[*struct{ X int }](r, 3)
	require.True(t, status.IsInvalidArgument(err))
}

func TestRegistryPerResourceLocksDoNotContend(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(1, &fakeResource{}))
	require.NoError(t, r.Register(2, &fakeResource{}))

	lock1, err := Acquire[*fakeResource](r, 1)
	require.NoError(t, err)
	defer lock1.Unlock()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		lock2, err := Acquire[*fakeResource](r, 2)
		require.NoError(t, err)
		lock2.Unlock()
		close(done)
	}()
	wg.Wait()
	select {
	case <-done:
	default:
		t.Fatal("acquiring an unrelated resource should not block on resource 1's lock")
	}
}

func TestRegistryUnregister(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(1, &fakeResource{}))
	r.Unregister(1)
	require.False(t, r.HasResource(1))
}

func TestRegistryView(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(1, &fakeResource{n: 42}))
	v, err := View[*fakeResource](r, 1)
	require.NoError(t, err)
	require.Equal(t, 42, v.n)
}
