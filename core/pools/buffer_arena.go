package pools

// Buffer size tiers for HTTP read/write workloads
var arenaSizes = [...]int{
	512,   // tiny requests
	2048,  // typical request head
	8192,  // default connection read buffer
	32768, // pipelined bursts / large heads
}

// BufferArena hands out byte buffers from per-tier free lists. It is NOT
// safe for concurrent use: every dispatch worker owns exactly one arena, so
// buffer recycling never crosses cores and needs no locks.
type BufferArena struct {
	free [len(arenaSizes)][][]byte

	// Statistics (single writer: the owning worker)
	hits   uint64
	misses uint64
}

// NewBufferArena creates an empty arena. Buffers are allocated on first use
// and recycled through the free lists afterwards.
func NewBufferArena() *BufferArena {
	return &BufferArena{}
}

// Get returns a buffer with len(buf) == size and capacity of the matching
// tier. Requests beyond the largest tier are allocated directly and will not
// be recycled.
func (a *BufferArena) Get(size int) []byte {
	for i, tier := range arenaSizes {
		if size <= tier {
			if n := len(a.free[i]); n > 0 {
				buf := a.free[i][n-1]
				a.free[i] = a.free[i][:n-1]
				a.hits++
				return buf[:size]
			}
			a.misses++
			return make([]byte, size, tier)
		}
	}

	a.misses++
	return make([]byte, size)
}

// Grow returns a buffer of twice buf's capacity with buf's contents copied
// in, recycling buf. The result keeps its full length so a read loop sizing
// itself by len sees the new room. Used when a request outgrows its read
// buffer.
func (a *BufferArena) Grow(buf []byte) []byte {
	bigger := a.Get(cap(buf) * 2)
	copy(bigger, buf)
	a.Put(buf)
	return bigger
}

// Put returns a buffer to its tier. Buffers with foreign capacities are
// dropped for the GC to collect.
func (a *BufferArena) Put(buf []byte) {
	capacity := cap(buf)

	for i, tier := range arenaSizes {
		if capacity == tier {
			// Cap the free list so one burst doesn't pin memory forever.
			if len(a.free[i]) < 64 {
				a.free[i] = append(a.free[i], buf[:0])
			}
			return
		}
	}
}

// Stats reports hit/miss counts since creation.
func (a *BufferArena) Stats() (hits, misses uint64) {
	return a.hits, a.misses
}
