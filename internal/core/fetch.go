package core

// blockOf returns the aligned block_size-byte cache-line base address
// containing addr.
func blockOf(addr uint64, blockSize int) uint64 {
	return addr &^ uint64(blockSize-1)
}

// CanFetch is the Fetch Eligibility Predicate. It performs
// an MMU translation for peek-ahead purposes when the next fetch
// would cross a block boundary; that translation is not cached and is
// redone independently by the Block Fetch Path, matching the source.
func CanFetch(p *Processor, c *Core, t *Thread) bool {
	if !t.Bound() || !t.Ctx.Running() {
		return false
	}
	if t.FetchStallUntil >= p.Cycle || t.Ctx.DeallocPending() {
		return false
	}
	if t.FetchqOcc >= c.FetchQueueCap {
		return false
	}
	block := blockOf(t.FetchNEIP, c.BlockSize)
	if block != t.FetchBlock {
		paddr := c.MMU.Translate(t.Asid, t.FetchNEIP)
		if !c.InstMod.CanAccess(paddr) {
			return false
		}
	}
	return true
}

// FetchInst is the Fetch Primitive: it functionally
// executes exactly one macro-instruction and drains every uinst it
// produces into uops appended to the thread's fetch queue. It returns
// the representative uop (nil if none was produced), that uop's index
// within t.FetchQueue (-1 if none was produced) so callers can write
// back into the actual queue slot rather than assuming it is the last
// entry appended, and the number of uops actually produced, which
// callers need to update the trace-cache sub-queue occupancy
// (uop-counted, not byte-counted).
func FetchInst(p *Processor, c *Core, t *Thread, fromTraceCache bool) (uop *Uop, queueIndex int, uopsProduced int, instSize int) {
	t.FetchEIP = t.FetchNEIP
	t.Ctx.SetEIP(t.FetchEIP)

	result := t.Ctx.Execute(&p.Staging)
	t.FetchNEIP = t.FetchEIP + uint64(result.Size)

	uinstCount := p.Staging.Len()
	items := p.Staging.drainAll()

	var retUop *Uop
	retIdx := -1
	for i, ui := range items {
		id := p.nextUopID()
		idInCore := nextUopIDInCore(c)

		u := Uop{
			ID:              id,
			IDInCore:        idInCore,
			MopID:           id - uint64(i),
			MopCount:        uinstCount,
			MopIndex:        i,
			MopSize:         result.Size,
			Flags:           ui.Flags,
			EIP:             t.FetchEIP,
			NEIP:            t.Ctx.RegsEIP(),
			PredNEIP:        t.FetchNEIP,
			TargetNEIP:      t.Ctx.TargetEIP(),
			SpecMode:        t.Ctx.SpecMode(),
			FetchAddress:    t.FetchAddress,
			FetchAccess:     t.FetchAccess,
			FetchTraceCache: fromTraceCache,
			InFetchQueue:    true,
			Uinst:           ui,
		}
		if c.Regs != nil {
			c.Regs.CountDeps(&u)
		}
		if ui.Flags&FlagMem != 0 {
			u.PhyAddr = c.MMU.Translate(t.Asid, ui.Address)
		}

		if c.Tracer != nil {
			c.Tracer(t.Index, formatTraceLine(c.Index, &u, result.Disasm))
		}

		t.FetchQueue = append(t.FetchQueue, u)
		idx := len(t.FetchQueue) - 1
		t.Fetched++

		if retUop == nil || u.Flags&FlagCtrl != 0 {
			cp := u
			retUop = &cp
			retIdx = idx
		}
	}

	if retUop != nil && !fromTraceCache {
		t.FetchqOcc += retUop.MopSize
	}

	return retUop, retIdx, len(items), result.Size
}

// FetchTraceCachePath is the Trace-Cache Fetch Path. It
// returns false ("miss") if the trace cache is disabled, already
// saturated, or the lookup itself misses.
func FetchTraceCachePath(p *Processor, c *Core, t *Thread) bool {
	if t.TraceCache == nil || t.TraceCacheQOcc >= c.TraceQueueCap {
		return false
	}

	eipBranch := c.BTB.NextBranch(t.FetchNEIP, c.BlockSize)
	var mpred uint64
	if eipBranch != 0 {
		mpred = t.BPred.LookupMultiple(eipBranch, c.BranchMax)
	}

	hit, mopCount, mopArray, neip := t.TraceCache.Lookup(t.FetchNEIP, mpred)
	if !hit {
		return false
	}

	for i := 0; i < mopCount; i++ {
		if !t.Ctx.Running() {
			break
		}
		t.FetchNEIP = mopArray[i]
		uop, idx, produced, _ := FetchInst(p, c, t, true)
		t.TraceCacheQOcc += produced

		if uop != nil && uop.Flags&FlagCtrl != 0 {
			t.BPred.Lookup(uop.EIP)
			if i < mopCount-1 {
				uop.PredNEIP = mopArray[i+1]
			} else {
				uop.PredNEIP = neip
			}
			t.FetchQueue[idx].PredNEIP = uop.PredNEIP
		}
	}

	t.FetchNEIP = neip
	return true
}

// FetchBlockPath is the Block Fetch Path: it tries the
// trace cache first, then falls back to a standard cache-line-bounded
// fetch loop terminated by a predict-taken branch, fetch-queue
// saturation, a context stall, or an invalid decode.
func FetchBlockPath(p *Processor, c *Core, t *Thread) {
	if FetchTraceCachePath(p, c, t) {
		return
	}

	block := blockOf(t.FetchNEIP, c.BlockSize)
	if block != t.FetchBlock {
		paddr := c.MMU.Translate(t.Asid, t.FetchNEIP)
		t.FetchBlock = block
		t.FetchAddress = paddr
		t.FetchAccess = c.InstMod.Access(paddr)
		t.BTBReads++
		if c.MMUReport {
			c.MMU.AccessPage(paddr, "execute")
		}
	}

	for blockOf(t.FetchNEIP, c.BlockSize) == block {
		if !t.Ctx.Running() {
			break
		}
		if t.FetchqOcc >= c.FetchQueueCap {
			break
		}

		uop, idx, _, instSize := FetchInst(p, c, t, false)

		if instSize == 0 {
			break
		}
		if uop == nil {
			continue
		}
		if uop.Flags&FlagCtrl != 0 {
			target := c.BTB.Lookup(uop.EIP)
			if target != 0 && t.BPred.Lookup(uop.EIP) {
				t.FetchNEIP = target
				t.FetchQueue[idx].PredNEIP = target
				break
			}
		}
	}
}
