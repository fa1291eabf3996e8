package group

import "sync"

// mailbox runs queued deliveries on a single goroutine in FIFO order. The
// queue is unbounded so a handler that sends to its own channel cannot
// deadlock the delivery loop.
type mailbox struct {
	mu     sync.Mutex
	items  []func()
	signal chan struct{}
	done   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

func newMailbox() *mailbox {
	mb := &mailbox{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	mb.wg.Add(1)
	go mb.run()
	return mb
}

func (mb *mailbox) put(fn func()) bool {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return false
	}
	mb.items = append(mb.items, fn)
	mb.mu.Unlock()

	select {
	case mb.signal <- struct{}{}:
	default:
	}
	return true
}

func (mb *mailbox) run() {
	defer mb.wg.Done()
	for {
		mb.mu.Lock()
		items := mb.items
		mb.items = nil
		mb.mu.Unlock()

		for _, fn := range items {
			fn()
		}
		if len(items) > 0 {
			continue
		}

		select {
		case <-mb.signal:
		case <-mb.done:
			mb.mu.Lock()
			rest := mb.items
			mb.items = nil
			mb.mu.Unlock()
			for _, fn := range rest {
				fn()
			}
			return
		}
	}
}

// close stops the loop after the items already queued have run. It must not
// be called from a delivery.
func (mb *mailbox) close() {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return
	}
	mb.closed = true
	mb.mu.Unlock()

	close(mb.done)
	mb.wg.Wait()
}
