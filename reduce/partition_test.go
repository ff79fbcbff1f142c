package reduce

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teranos/plansum/capability"
)

func byteLen(s string) int { return len(s) }

func TestPartitionRespectsBudget(t *testing.T) {
	fragments := []string{
		strings.Repeat("a", 40),
		strings.Repeat("b", 30),
		strings.Repeat("c", 50),
		strings.Repeat("d", 10),
		strings.Repeat("e", 90),
		strings.Repeat("f", 5),
	}

	batches := Partition(fragments, byteLen, 100)

	assert.Equal(t, [][]string{
		{fragments[0], fragments[1]},
		{fragments[2], fragments[3]},
		{fragments[4], fragments[5]},
	}, batches)
	for _, b := range batches {
		assert.LessOrEqual(t, BatchTokens(b, byteLen), 100)
	}
}

func TestPartitionOversizeSingleton(t *testing.T) {
	big := strings.Repeat("x", 250)
	batches := Partition([]string{"small", big, "tail"}, byteLen, 100)

	assert.Equal(t, [][]string{{"small"}, {big}, {"tail"}}, batches)
}

func TestPartitionPreservesOrder(t *testing.T) {
	fragments := []string{"1", "2", "3", "4", "5", "6", "7"}
	batches := Partition(fragments, byteLen, 3)

	var flat []string
	for _, b := range batches {
		flat = append(flat, b...)
		assert.LessOrEqual(t, len(b), 3)
	}
	assert.Equal(t, fragments, flat)
}

func TestPartitionEmpty(t *testing.T) {
	assert.Empty(t, Partition(nil, byteLen, 10))
}

func TestPartitionWithEstimator(t *testing.T) {
	tokens := capability.EstimateTokens(4)
	// 3 fragments of 10 tokens under a 25 token ceiling
	fragments := []string{strings.Repeat("a", 40), strings.Repeat("b", 40), strings.Repeat("c", 40)}

	batches := Partition(fragments, tokens, 25)
	assert.Len(t, batches, 2)
	assert.Equal(t, 20, BatchTokens(batches[0], tokens))
}
