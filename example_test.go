package asyncronaut_test

import (
	"context"
	"fmt"

	"github.com/patrickhulce/asyncronaut"
)

func ExampleQueue() {
	q := asyncronaut.NewQueue(func(ctx context.Context, task *asyncronaut.Task[string, int]) (int, error) {
		return len(task.Input), nil
	})

	task, _ := q.Enqueue("hello")
	_ = q.Start()
	_ = task.Wait(context.Background())

	fmt.Println(task.State(), task.Output())
	// Output: succeeded 5
}

func ExamplePool() {
	var next int
	p := asyncronaut.NewPool(
		func(ctx context.Context) (int, error) {
			next++
			return next, nil
		},
		func(ctx context.Context, res int) error { return nil },
	)

	ctx := context.Background()
	lease, _ := p.Acquire(ctx)
	fmt.Println("leased", lease.Resource)

	_ = p.Release(ctx, lease)
	lease, _ = p.Acquire(ctx)
	fmt.Println("leased", lease.Resource)

	_ = p.Release(ctx, lease)
	_ = p.Drain(ctx)
	// Output:
	// leased 1
	// leased 1
}
