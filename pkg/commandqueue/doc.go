// Package commandqueue runs tasks in named lanes with FIFO ordering per lane.
//
// The bridge gives every agent its own lane so that requests for one agent
// never overlap, while different agents proceed in parallel.
//
// Invariants:
// - Tasks in the same lane execute in FIFO order.
// - Tasks in different lanes may execute concurrently.
// - Queue activity is observable through enqueued/completed events and metrics.
//
// Usage:
//
//	queue := commandqueue.New()
//	defer queue.Close()
//	result, err := queue.Enqueue("agent:abc", func(ctx context.Context) (interface{}, error) {
//		return "ok", nil
//	}, nil)
package commandqueue
