package random

import (
	"crypto/rand"
	"math/big"
)

// Random provides random selection that can be mocked for testing
type Random interface {
	// Intn returns a random int in [0, n)
	Intn(n int) int

	// Sample returns k distinct values drawn from pool, in random order
	Sample(pool []int, k int) []int
}

// CryptoRandom implements Random using crypto/rand
type CryptoRandom struct{}

// New creates a new CryptoRandom
func New() *CryptoRandom {
	return &CryptoRandom{}
}

// Intn returns a cryptographically random int in [0, n)
func (r *CryptoRandom) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	result, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(result.Int64())
}

// Sample performs a partial Fisher-Yates shuffle over a copy of pool
func (r *CryptoRandom) Sample(pool []int, k int) []int {
	if k > len(pool) {
		k = len(pool)
	}
	if k <= 0 {
		return []int{}
	}
	values := append([]int(nil), pool...)
	for i := 0; i < k; i++ {
		j := i + r.Intn(len(values)-i)
		values[i], values[j] = values[j], values[i]
	}
	return values[:k]
}
