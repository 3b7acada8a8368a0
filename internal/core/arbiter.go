package core

// arbiterShared is the Shared policy: every eligible
// thread fetches in the same cycle, processed in index order. No
// arbitration state is touched.
func arbiterShared(p *Processor, c *Core) {
	for _, t := range c.Threads {
		if CanFetch(p, c, t) {
			FetchBlockPath(p, c, t)
		}
	}
}

// arbiterTimeslice is the Timeslice (round-robin) policy.
// The pointer advances before the eligibility test, so even a cycle
// with no fetcher still rotates the starting point. The scan is
// bounded at exactly num_threads steps, guaranteeing termination when
// no thread is eligible instead of relying on unchecked iteration.
func arbiterTimeslice(p *Processor, c *Core) {
	n := len(c.Threads)
	for i := 0; i < n; i++ {
		c.FetchCurrent = (c.FetchCurrent + 1) % n
		t := c.Threads[c.FetchCurrent]
		if CanFetch(p, c, t) {
			FetchBlockPath(p, c, t)
			return
		}
	}
}

// arbiterSwitchOnEvent is the Switch-on-event policy. The
// fairness throttle and the long-latency preference are evaluated as
// two independent sequential guards per candidate, not folded into one boolean expression.
func arbiterSwitchOnEvent(p *Processor, c *Core) {
	current := c.Threads[c.FetchCurrent]
	if current.FetchStallUntil >= p.Cycle {
		return
	}

	mustSwitch := !CanFetch(p, c, current) ||
		(p.Cycle-c.FetchSwitchWhen > c.Quantum+c.SwitchPenalty) ||
		hasLongLatency(c, c.FetchCurrent)

	n := len(c.Threads)
	newIdx := -1
	for i := 0; i < n-1; i++ {
		cand := (c.FetchCurrent + 1 + i) % n
		candThread := c.Threads[cand]

		if !CanFetch(p, c, candThread) {
			continue
		}

		if mustSwitch {
			newIdx = cand
			break
		}

		if candThread.Committed > current.Committed+100000 {
			continue
		}
		if hasLongLatency(c, cand) {
			continue
		}
		newIdx = cand
		break
	}

	if newIdx >= 0 {
		c.FetchCurrent = newIdx
		c.FetchSwitchWhen = p.Cycle
		c.Threads[newIdx].FetchStallUntil = p.Cycle + c.SwitchPenalty - 1
	}

	fetcher := c.Threads[c.FetchCurrent]
	if CanFetch(p, c, fetcher) {
		FetchBlockPath(p, c, fetcher)
	}
}

func hasLongLatency(c *Core, thread int) bool {
	return c.LongLat != nil && c.LongLat.HasLongLatency(c.Index, thread)
}

// ArbiterCore runs the configured SMT fetch policy for one core, one
// cycle. Unknown policy values are a fatal configuration error — this
// is a programmer/config mistake caught long before this function
// should ever be reached; Validate() in internal/config is the
// intended gate, so this is a defensive panic, not a recoverable
// runtime condition.
func ArbiterCore(p *Processor, c *Core) {
	switch c.Policy {
	case KindShared:
		arbiterShared(p, c)
	case KindTimeslice:
		arbiterTimeslice(p, c)
	case KindSwitchOnEvent:
		arbiterSwitchOnEvent(p, c)
	default:
		panic("core: wrong fetch policy " + string(c.Policy))
	}
}

// CycleDriver is the Cycle Driver: tags the stage name and
// invokes the arbiter for each core in index order.
func CycleDriver(p *Processor) {
	p.Stage = "fetch"
	for _, c := range p.Cores {
		ArbiterCore(p, c)
	}
	p.Cycle++
}
