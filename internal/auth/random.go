package auth

import (
	"crypto/rand"
	"math/big"
)

// randIntn returns a uniform random number in [0, n) from crypto/rand.
// rand.Int rejects out-of-range draws, so the result carries no modulo bias.
func randIntn(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
