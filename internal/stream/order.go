package stream

import "github.com/drawgate/api/internal/dispatch"

// OrderByIndex re-sequences outcomes arriving in completion order into
// index order (1, 2, 3, ...). Out-of-order completions are buffered until
// their predecessor index is ready, so the Nth emitted result always
// corresponds to the Nth requested image slot.
func OrderByIndex(in <-chan dispatch.Outcome) <-chan dispatch.Outcome {
	out := make(chan dispatch.Outcome)

	go func() {
		defer close(out)
		pending := make(map[int]dispatch.Outcome)
		next := 1

		for o := range in {
			pending[o.Index] = o
			for {
				ready, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				out <- ready
				next++
			}
		}

		// The input channel closing with gaps means the dispatcher dropped a
		// slot, which its contract forbids; drain whatever is buffered in
		// ascending order regardless.
		for {
			ready, ok := pending[next]
			if !ok {
				return
			}
			delete(pending, next)
			out <- ready
			next++
		}
	}()

	return out
}
