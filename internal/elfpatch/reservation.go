package elfpatch

import "sort"

// interval is a virtual address range, either closed [Lo, Hi) or, when
// OpenEnded is set, unbounded above: [Lo, 2^64). The dynamic linker's
// claim on the negative half of the address space has no finite Hi
// that fits in a uint64 one-past-the-end encoding, hence the separate
// flag rather than trying to special-case Hi==0.
type interval struct {
	Lo, Hi    uint64
	OpenEnded bool
}

func (iv interval) overlaps(o interval) bool {
	ivEndsAfter := iv.OpenEnded || iv.Hi > o.Lo
	oEndsAfter := o.OpenEnded || o.Hi > iv.Lo
	return ivEndsAfter && oEndsAfter
}

// Reservations implements a reserve(range) oracle: it records
// address-range ownership and rejects overlapping claims. This
// package owns a concrete implementation because nothing upstream of
// the Validator supplies one; a full toolchain driving many emission
// calls against one address space might centralize this across
// binaries, but for a single call a private interval set is the whole
// contract.
type Reservations struct {
	ranges []interval
}

// NewReservations returns an empty reservation set.
func NewReservations() *Reservations {
	return &Reservations{}
}

// Reserve claims [lo, hi). It returns false iff the range overlaps a
// prior reservation, in which case nothing is recorded.
func (r *Reservations) Reserve(lo, hi uint64) bool {
	if lo >= hi {
		return true // empty range, nothing to claim
	}
	return r.reserve(interval{Lo: lo, Hi: hi})
}

// ReserveFrom claims [lo, 2^64), the open-ended negative-half grant
// the dynamic linker holds for PT_DYNAMIC objects loaded as shared
// libraries.
func (r *Reservations) ReserveFrom(lo uint64) bool {
	return r.reserve(interval{Lo: lo, OpenEnded: true})
}

func (r *Reservations) reserve(nv interval) bool {
	for _, existing := range r.ranges {
		if existing.overlaps(nv) {
			return false
		}
	}
	r.ranges = append(r.ranges, nv)
	sort.Slice(r.ranges, func(i, j int) bool { return r.ranges[i].Lo < r.ranges[j].Lo })
	return true
}
