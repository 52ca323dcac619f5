package scheduler

// Poller delivers completed results to callbacks from inside a cooperative
// loop. The loop calls Tick on its own schedule; Tick never blocks. A Poller
// belongs to that loop and is not safe for concurrent use.
type Poller struct {
	pending []pending
}

type pending struct {
	handle *Handle
	fn     func(Result)
}

// Add registers fn to run on the Tick that first sees h completed.
func (p *Poller) Add(h *Handle, fn func(Result)) {
	p.pending = append(p.pending, pending{handle: h, fn: fn})
}

// Tick runs the callbacks of completed handles in submission order and
// returns how many it delivered.
func (p *Poller) Tick() int {
	current := p.pending
	p.pending = nil

	delivered := 0
	for _, pd := range current {
		if res, ok := pd.handle.Poll(); ok {
			pd.fn(res)
			delivered++
			continue
		}
		p.pending = append(p.pending, pd)
	}
	return delivered
}

func (p *Poller) Pending() int {
	return len(p.pending)
}
