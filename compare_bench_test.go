package asyncronaut_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	concpool "github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/errgroup"

	"github.com/patrickhulce/asyncronaut"
)

// Comparative benchmarks: asyncronaut's queue against plain goroutines,
// errgroup, and conc for the same bounded fan-out workload.

const benchConcurrency = 10

func BenchmarkBoundedFanOut_Native(b *testing.B) {
	for _, n := range []int{100, 1000} {
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				var wg sync.WaitGroup
				sem := make(chan struct{}, benchConcurrency)
				for range n {
					wg.Add(1)
					sem <- struct{}{}
					go func() {
						defer func() { <-sem; wg.Done() }()
					}()
				}
				wg.Wait()
			}
		})
	}
}

func BenchmarkBoundedFanOut_Errgroup(b *testing.B) {
	for _, n := range []int{100, 1000} {
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				g, _ := errgroup.WithContext(context.Background())
				g.SetLimit(benchConcurrency)
				for range n {
					g.Go(func() error { return nil })
				}
				_ = g.Wait()
			}
		})
	}
}

func BenchmarkBoundedFanOut_Conc(b *testing.B) {
	for _, n := range []int{100, 1000} {
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				p := concpool.New().WithMaxGoroutines(benchConcurrency)
				for range n {
					p.Go(func() {})
				}
				p.Wait()
			}
		})
	}
}

func BenchmarkBoundedFanOut_Queue(b *testing.B) {
	for _, n := range []int{100, 1000} {
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				q := asyncronaut.NewQueue(func(ctx context.Context, task *asyncronaut.Task[int, struct{}]) (struct{}, error) {
					return struct{}{}, nil
				}, asyncronaut.WithMaxConcurrentTasks(benchConcurrency))

				_ = q.Start()
				for j := range n {
					_, _ = q.Enqueue(j)
				}
				_ = q.WaitForCompletion(context.Background())
			}
		})
	}
}
