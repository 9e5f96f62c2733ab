package fanout

import (
	"sync"

	"masterok/internal/metrics"
)

// Async runs a slow broadcaster (network drivers) on a background worker
// behind a bounded queue. Publishes beyond the queue capacity are dropped.
type Async struct {
	next  Broadcaster
	name  string
	queue chan Published
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

// NewAsync starts the worker. size is the queue capacity.
func NewAsync(name string, next Broadcaster, size int) *Async {
	if size <= 0 {
		size = 256
	}
	a := &Async{
		next:  next,
		name:  name,
		queue: make(chan Published, size),
		done:  make(chan struct{}),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) run() {
	defer a.wg.Done()
	for {
		select {
		case p := <-a.queue:
			a.next.Publish(p.Topic, p.Payload)
		case <-a.done:
			for {
				select {
				case p := <-a.queue:
					a.next.Publish(p.Topic, p.Payload)
				default:
					return
				}
			}
		}
	}
}

// Publish enqueues without blocking.
func (a *Async) Publish(topic string, payload interface{}) {
	select {
	case <-a.done:
		return
	default:
	}
	select {
	case a.queue <- Published{Topic: topic, Payload: payload}:
	default:
		metrics.Event(a.name, "dropped")
	}
}

// Close drains queued events and stops the worker.
func (a *Async) Close() {
	a.once.Do(func() { close(a.done) })
	a.wg.Wait()
}
