package actors

import (
	stdctx "context"
	"time"

	"github.com/asynkron/protoactor-go/actor"

	"promptpal/internal/utils"
)

// pendingRequest is a caller waiting for a network round trip to finish.
type pendingRequest struct {
	sender *actor.PID
	op     string
	start  time.Time
}

// inflight tracks the network calls an actor has started. Calls run on their
// own goroutines and post their result back to the actor as a message, so the
// actor's state is only ever touched from Receive.
type inflight struct {
	ctx     stdctx.Context
	cancel  stdctx.CancelFunc
	next    uint64
	waiting map[uint64]pendingRequest
	metrics *utils.MetricsCollector
}

func newInflight(metrics *utils.MetricsCollector) *inflight {
	ctx, cancel := stdctx.WithCancel(stdctx.Background())
	return &inflight{
		ctx:     ctx,
		cancel:  cancel,
		waiting: make(map[uint64]pendingRequest),
		metrics: metrics,
	}
}

// track remembers the current sender until finish is called with the returned id.
func (f *inflight) track(context actor.Context, op string) uint64 {
	f.next++
	f.waiting[f.next] = pendingRequest{sender: context.Sender(), op: op, start: time.Now()}
	return f.next
}

// finish answers the caller of request id with reply.
func (f *inflight) finish(context actor.Context, id uint64, reply interface{}) {
	req, ok := f.waiting[id]
	if !ok {
		return
	}
	delete(f.waiting, id)
	f.metrics.AddOperationLatency(req.op, time.Since(req.start))
	if req.sender != nil {
		context.Send(req.sender, reply)
	}
}

// run executes call off the actor and delivers its result to self. Results of
// calls that complete after close are dropped.
func (f *inflight) run(context actor.Context, call func(stdctx.Context) interface{}) {
	root := context.ActorSystem().Root
	self := context.Self()
	ctx := f.ctx
	go func() {
		result := call(ctx)
		if ctx.Err() != nil {
			return
		}
		root.Send(self, result)
	}()
}

// close answers every waiting caller with err and cancels running calls.
func (f *inflight) close(context actor.Context, err *utils.AppError) {
	for id, req := range f.waiting {
		delete(f.waiting, id)
		if req.sender != nil {
			context.Send(req.sender, err)
		}
	}
	f.cancel()
}

func (f *inflight) size() int {
	return len(f.waiting)
}
