package prompt

// LongContextReorder takes items already ordered most-relevant-first and
// returns them rearranged so the highest-relevance items sit at the start
// and end of the slice, with lower-relevance items folded into the middle.
// This counters the tendency of long-context models to under-attend to the
// middle of their input. Slices of 2 or fewer items are returned unchanged,
// since there's no middle to protect.
func LongContextReorder[T any](items []T) []T {
	if len(items) <= 2 {
		return items
	}

	out := make([]T, len(items))
	left, right := 0, len(items)-1

	for i, item := range items {
		if i%2 == 0 {
			out[left] = item
			left++
		} else {
			out[right] = item
			right--
		}
	}
	return out
}
