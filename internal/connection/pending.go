package connection

// pending correlates get_latest requests with the next quote-bearing frame.
// Owned by the actor goroutine.
type pending struct {
	next    int64
	waiters map[int64]chan error
}

func newPending() *pending {
	return &pending{waiters: make(map[int64]chan error)}
}

// add registers a waiter and returns its id and result channel.
func (p *pending) add() (int64, <-chan error) {
	p.next++
	ch := make(chan error, 1)
	p.waiters[p.next] = ch
	return p.next, ch
}

// remove drops a waiter whose caller gave up.
func (p *pending) remove(id int64) {
	delete(p.waiters, id)
}

// resolve completes every waiter with err.
func (p *pending) resolve(err error) {
	for id, ch := range p.waiters {
		ch <- err
		delete(p.waiters, id)
	}
}

func (p *pending) len() int { return len(p.waiters) }
