package canobj

// FrameFilter decides whether a frame should be delivered.
type FrameFilter func(Frame) bool

// ByID returns a filter that matches frames with the exact identifier.
func ByID(id uint32) FrameFilter {
	return func(f Frame) bool { return f.ID == id }
}

// ByIDs returns a filter that matches any of the provided identifiers.
func ByIDs(ids ...uint32) FrameFilter {
	m := make(map[uint32]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return func(f Frame) bool {
		_, ok := m[f.ID]
		return ok
	}
}

// ByRange returns a filter that matches IDs within [min, max].
func ByRange(min, max uint32) FrameFilter {
	return func(f Frame) bool { return f.ID >= min && f.ID <= max }
}

// ByMask matches when (frame.ID & mask) == (id & mask). Mask bits that are
// zero are "don't care".
func ByMask(id uint32, mask uint32) FrameFilter {
	want := id & mask
	return func(f Frame) bool { return (f.ID & mask) == want }
}

// ByAcceptance implements the acceptance rule of a hardware receive object:
// the identifier format must agree and the ID must match under mask, where
// the mask is first narrowed to the identifier width. A mask of all ones
// therefore means exact match for either format.
func ByAcceptance(id, mask uint32, extended bool) FrameFilter {
	mask &= IDMask(extended)
	return And(ByFormat(extended), ByMask(id, mask))
}

// ByFormat matches frames whose identifier format equals extended.
func ByFormat(extended bool) FrameFilter {
	if extended {
		return ExtendedOnly()
	}
	return StandardOnly()
}

// StandardOnly matches standard (11-bit) identifiers.
func StandardOnly() FrameFilter {
	return func(f Frame) bool { return !f.Extended }
}

// ExtendedOnly matches extended (29-bit) identifiers.
func ExtendedOnly() FrameFilter {
	return func(f Frame) bool { return f.Extended }
}

// DataOnly matches non-RTR frames.
func DataOnly() FrameFilter {
	return func(f Frame) bool { return !f.RTR }
}

// RTROnly matches remote transmission request frames.
func RTROnly() FrameFilter {
	return func(f Frame) bool { return f.RTR }
}

// And composes two filters; the result matches when both match.
func And(a, b FrameFilter) FrameFilter {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	default:
		return func(f Frame) bool { return a(f) && b(f) }
	}
}

// Or composes two filters; the result matches when either matches.
func Or(a, b FrameFilter) FrameFilter {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	default:
		return func(f Frame) bool { return a(f) || b(f) }
	}
}

// Not inverts a filter. Not(nil) matches everything.
func Not(a FrameFilter) FrameFilter {
	if a == nil {
		return func(Frame) bool { return true }
	}
	return func(f Frame) bool { return !a(f) }
}
