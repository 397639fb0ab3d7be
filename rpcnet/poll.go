package rpcnet

import "time"

// adaptivePoll is Serve's backoff cadence: fast while a session is being
// actively served, backing off exponentially toward a steady idle
// interval. Adapted from the teacher's poll.go AdaptivePoll (same
// fast/steady/reset shape), generalized from driving Azure's HTTP
// long-poll to driving ServerHandle.Peek/Dispatch.
type adaptivePoll struct {
	cur    time.Duration
	fast   time.Duration
	steady time.Duration
	skip   bool
}

func newAdaptivePoll(fast, steady time.Duration) *adaptivePoll {
	if fast <= 0 {
		fast = DefaultFastPoll
	}
	if steady < fast {
		steady = fast
	}
	return &adaptivePoll{cur: fast, fast: fast, steady: steady}
}

func (p *adaptivePoll) sleep() {
	if p.skip {
		p.skip = false
		return
	}
	time.Sleep(p.cur)
	if p.cur < p.steady {
		p.cur *= 2
		if p.cur > p.steady {
			p.cur = p.steady
		}
	}
}

func (p *adaptivePoll) reset() {
	p.cur = p.fast
	p.skip = true
}
