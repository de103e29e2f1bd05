package actor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunUnfencedExecutesInOrder(t *testing.T) {
	l := New[string]("test")
	defer l.Close()

	var out []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, l.RunUnfenced(func() {
			out = append(out, i)
			if i == 4 {
				close(done)
			}
		}))
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for commands to run")
	}
	require.Equal(t, []int{0, 1, 2, 3, 4}, out)
}

func TestRunFencedRejectsWithoutToken(t *testing.T) {
	l := New[string]("test")
	defer l.Close()

	err := l.RunFenced("epoch-1", func() { t.Fatal("must not run") })
	require.Error(t, err)
}

func TestRunFencedRejectsMismatchedToken(t *testing.T) {
	l := New[string]("test")
	defer l.Close()

	done := make(chan struct{})
	require.NoError(t, l.RunUnfenced(func() {
		l.SetToken("epoch-1")
		close(done)
	}))
	<-done

	err := l.RunFenced("epoch-2", func() { t.Fatal("must not run") })
	require.Error(t, err)
}

func TestRunFencedAcceptsMatchingToken(t *testing.T) {
	l := New[string]("test")
	defer l.Close()

	ready := make(chan struct{})
	require.NoError(t, l.RunUnfenced(func() {
		l.SetToken("epoch-1")
		close(ready)
	}))
	<-ready

	ran := make(chan struct{})
	require.NoError(t, l.RunFenced("epoch-1", func() { close(ran) }))
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("fenced command never ran")
	}
}

func TestClearTokenRejectsSubsequentFencedCalls(t *testing.T) {
	l := New[string]("test")
	defer l.Close()

	ready := make(chan struct{})
	require.NoError(t, l.RunUnfenced(func() {
		l.SetToken("epoch-1")
		close(ready)
	}))
	<-ready

	cleared := make(chan struct{})
	require.NoError(t, l.RunUnfenced(func() {
		l.ClearToken()
		close(cleared)
	}))
	<-cleared

	err := l.RunFenced("epoch-1", func() { t.Fatal("must not run") })
	require.Error(t, err)
}

func TestCloseStopsProcessing(t *testing.T) {
	l := New[string]("test")
	l.Close()

	err := l.RunUnfenced(func() {})
	require.Error(t, err)
}
