package tier

import "math"

// Resolver remembers the last resolved tier and only asks the source again
// once the notional leaves that tier's range.
type Resolver struct {
	src  Source
	last Tier
	ok   bool
}

func NewResolver(src Source) *Resolver {
	return &Resolver{src: src}
}

func (r *Resolver) Source() Source { return r.src }

func (r *Resolver) Resolve(notional float64) Tier {
	n := math.Abs(notional)
	if r.ok && r.last.Contains(n) {
		return r.last
	}
	r.last = r.src.Resolve(n)
	r.ok = true
	return r.last
}

// Reset swaps in a freshly loaded source and forgets the cached tier.
func (r *Resolver) Reset(src Source) {
	r.src = src
	r.ok = false
}
