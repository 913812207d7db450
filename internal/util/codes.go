package util

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	PairingCodeChars  = "abcdefghijklmnopqrstuvwxyz0123456789"
	PairingCodeLength = 8

	ComparisonCodeChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	ComparisonCodeLength = 6
)

// CodeFunc draws one random code.
type CodeFunc func() (string, error)

// RandomCode draws length characters uniformly from alphabet using crypto/rand.
func RandomCode(alphabet string, length int) (string, error) {
	chars := []byte(alphabet)
	base := big.NewInt(int64(len(chars)))
	code := make([]byte, length)

	for i := range code {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		code[i] = chars[n.Int64()]
	}

	return string(code), nil
}

func GeneratePairingCode() (string, error) {
	return RandomCode(PairingCodeChars, PairingCodeLength)
}

func GenerateComparisonCode() (string, error) {
	return RandomCode(ComparisonCodeChars, ComparisonCodeLength)
}
