package mocks

import (
	"github.com/mcoot/biogames-go/internal/dependencies/random"
)

// MockRandom is a mock implementation of Random for testing.
// Without queued results it is fully deterministic: Intn returns 0 and
// Sample returns the first k values of the pool in order.
type MockRandom struct {
	// IntnResults is a queue of results to return from Intn
	IntnResults []int
	intnIndex   int

	// SampleResults is a queue of results to return from Sample
	SampleResults [][]int
	sampleIndex   int
}

// Ensure MockRandom implements Random
var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a new MockRandom
func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// Intn returns the next queued result, or 0 if none remaining
func (r *MockRandom) Intn(n int) int {
	if r.intnIndex >= len(r.IntnResults) {
		return 0
	}
	result := r.IntnResults[r.intnIndex]
	r.intnIndex++
	return result
}

// Sample returns the next queued result, or the head of the pool
func (r *MockRandom) Sample(pool []int, k int) []int {
	if r.sampleIndex < len(r.SampleResults) {
		result := r.SampleResults[r.sampleIndex]
		r.sampleIndex++
		return result
	}
	if k > len(pool) {
		k = len(pool)
	}
	return append([]int(nil), pool[:k]...)
}

// QueueIntn adds values to the Intn result queue
func (r *MockRandom) QueueIntn(values ...int) {
	r.IntnResults = append(r.IntnResults, values...)
}

// QueueSample adds a result to the Sample result queue
func (r *MockRandom) QueueSample(values ...int) {
	r.SampleResults = append(r.SampleResults, values)
}

// Reset clears all queued results
func (r *MockRandom) Reset() {
	r.IntnResults = nil
	r.intnIndex = 0
	r.SampleResults = nil
	r.sampleIndex = 0
}
