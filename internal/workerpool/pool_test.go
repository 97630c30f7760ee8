package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/serfrae/solder/internal/apperror"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type doubler struct{}

func (doubler) Handle(_ context.Context, n int) (int, bool, error) {
	return n * 2, true, nil
}

func TestPoolProcessesEveryItem(t *testing.T) {
	in := make(chan int, 8)
	out := make(chan int, 8)
	for i := 1; i <= 5; i++ {
		in <- i
	}
	close(in)

	p := New[int, int]("doubler", 3, doubler{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.Run(ctx, in, out)
	close(out)

	var got []int
	for v := range out {
		got = append(got, v)
	}
	require.Len(t, got, 5)
	sum := 0
	for _, v := range got {
		sum += v
	}
	require.Equal(t, 2*(1+2+3+4+5), sum)
}

type dropHandler struct{}

func (dropHandler) Handle(_ context.Context, n int) (int, bool, error) {
	if n%2 == 0 {
		return 0, false, nil
	}
	return n, true, nil
}

func TestPoolDropsUnokItems(t *testing.T) {
	in := make(chan int, 4)
	out := make(chan int, 4)
	in <- 1
	in <- 2
	in <- 3
	in <- 4
	close(in)

	p := New[int, int]("dropper", 1, dropHandler{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.Run(ctx, in, out)
	close(out)

	var got []int
	for v := range out {
		got = append(got, v)
	}
	require.ElementsMatch(t, []int{1, 3}, got)
}

type fatalHandler struct{}

func (fatalHandler) Handle(_ context.Context, n int) (int, bool, error) {
	if n == 3 {
		return 0, false, apperror.Wrap(apperror.Fatal, "boom", nil)
	}
	return n, true, nil
}

func TestPoolReportsFatalOnce(t *testing.T) {
	in := make(chan int, 8)
	out := make(chan int, 8)
	for i := 1; i <= 8; i++ {
		in <- i
	}

	var calls int32
	onFatal := func(err error) {
		atomic.AddInt32(&calls, 1)
		require.True(t, errors.Is(err, apperror.Fatal))
	}

	p := New[int, int]("fataler", 1, fatalHandler{}, onFatal)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx, in, out)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop after fatal handler error")
	}

	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPoolStopsOnCancel(t *testing.T) {
	in := make(chan int)
	out := make(chan int)

	p := New[int, int]("blocker", 2, doubler{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Run(ctx, in, out)
	}()

	cancel()
	wg.Wait()

	states := p.States()
	for id, s := range states {
		require.Equal(t, Stopped, s, "worker %s should be stopped", id)
	}
}
