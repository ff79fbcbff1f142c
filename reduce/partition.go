package reduce

import "github.com/teranos/plansum/capability"

// Partition splits fragments into ordered batches whose summed token length
// stays within tokenMax. A fragment longer than tokenMax on its own becomes
// a singleton batch, unsplit. Input order is preserved within and across
// batches.
func Partition(fragments []string, length capability.TokenCounter, tokenMax int) [][]string {
	var (
		batches [][]string
		current []string
		sum     int
	)
	flush := func() {
		if len(current) > 0 {
			batches = append(batches, current)
			current, sum = nil, 0
		}
	}

	for _, f := range fragments {
		n := length(f)
		if n > tokenMax {
			flush()
			batches = append(batches, []string{f})
			continue
		}
		if sum+n > tokenMax {
			flush()
		}
		current = append(current, f)
		sum += n
	}
	flush()
	return batches
}

// BatchTokens returns the summed token length of batch.
func BatchTokens(batch []string, length capability.TokenCounter) int {
	total := 0
	for _, f := range batch {
		total += length(f)
	}
	return total
}
