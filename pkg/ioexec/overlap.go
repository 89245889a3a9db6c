package ioexec

import "github.com/flashcore/ooce/pkg/stride"

// sectorLen is the alignment unit hazard detection rounds descriptors to.
// Direct I/O only guarantees isolation between requests that don't share a
// sector, so two byte ranges that are logically disjoint but round up to
// the same sector must still be treated as conflicting.
const sectorLen = 512

func roundDown(v, align uint64) uint64 { return v &^ (align - 1) }
func roundUp(v, align uint64) uint64   { return (v + align - 1) &^ (align - 1) }
func isAligned(v uint64) bool          { return v&(sectorLen-1) == 0 }

// stripOverlap reports whether the sector-aligned byte ranges [start1,end1)
// and [start2,end2) intersect.
func stripOverlap(start1, end1, start2, end2 uint64) bool {
	start1 = roundDown(start1, sectorLen)
	start2 = roundDown(start2, sectorLen)
	end1 = roundUp(end1, sectorLen)
	end2 = roundUp(end2, sectorLen)
	return !(end2 <= start1 || end1 <= start2)
}

// descriptor is the minimal shape overlap detection needs from an IoTask:
// the file it targets, whether it writes, and its strided access pattern.
type descriptor struct {
	file    stride.FileID
	offset  uint64
	info    stride.Info
	isWrite bool
}

func sameStrideOverlap(o1, l1, n1, o2, l2, n2, s uint64) bool {
	if isAligned(o1) && isAligned(o2) && isAligned(l1) && isAligned(l2) && isAligned(s) {
		return false
	}
	// caller guarantees o1 <= o2
	if stripOverlap(o1, o1+l1, o2, o2+l2) {
		return true
	}
	if stripOverlap(o1+s, o1+s+l1, o2, o2+l2) {
		return true
	}
	delta := o2 - (o1 + l1)
	if delta < sectorLen {
		return !(isAligned(o1) && isAligned(o2) && isAligned(s))
	}
	return false
}

// isOverlap reports whether two I/O descriptors touch overlapping bytes of
// the same file such that concurrent execution would race. Reads never
// conflict with reads nor with writes; only a write/write pair can race.
// Ported from FlashFileHandle's is_overlap: strided accesses are checked
// strip-by-strip against the sector-rounded range of the other descriptor
// rather than element-by-element.
func isOverlap(a, b descriptor) bool {
	if a.file != b.file {
		return false
	}
	if !a.isWrite || !b.isWrite {
		return false
	}

	o1, n1, l1, s1 := a.offset, a.info.NStrides, a.info.LenPerStride, a.info.Stride
	o2, n2, l2, s2 := b.offset, b.info.NStrides, b.info.LenPerStride, b.info.Stride

	if n1 == 1 && n2 == 1 {
		return stripOverlap(o1, o1+l1, o2, o2+l2)
	}

	if n2 != 1 && n1 == 1 {
		n1, n2 = n2, n1
		l1, l2 = l2, l1
		o1, o2 = o2, o1
		s1, s2 = s2, s1
	}

	if n1 != 1 && n2 == 1 {
		e2 := o2 + l2
		if !stripOverlap(o1, o1+n1*s1, o2, e2) {
			return false
		}
		if o2 <= o1 {
			return true
		}
		kLow := (o2 - o1) / s1
		kStart := o1 + kLow*s1
		if stripOverlap(kStart, kStart+l1, o2, e2) {
			return true
		}
		kStart += s1
		return stripOverlap(kStart, kStart+l1, o2, e2)
	}

	// both strided
	if s1 == s2 {
		if o2 < o1 {
			o1, o2 = o2, o1
			l1, l2 = l2, l1
			n1, n2 = n2, n1
		}
		return sameStrideOverlap(o1, l1, n1, o2, l2, n2, s1)
	}

	// heterogeneous strides: fall back to a conservative whole-span check
	return stripOverlap(o1, o1+n1*s1, o2, o2+n2*s2)
}
