package verify

import (
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

var selectorMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 250), big.NewInt(1))

// Selector returns the Starknet entry-point selector for name: keccak256 of
// the name truncated to 250 bits.
func Selector(name string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(name))
	n := new(big.Int).SetBytes(h.Sum(nil))
	n.And(n, selectorMask)
	return "0x" + n.Text(16)
}

// toFelt normalizes a decimal or 0x-prefixed hex value to 0x-prefixed hex.
func toFelt(v string) (string, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(v), 0)
	if !ok || n.Sign() < 0 {
		return "", fmt.Errorf("invalid felt %q", v)
	}
	return "0x" + n.Text(16), nil
}

// toDecimal renders a felt as a decimal string.
func toDecimal(v string) string {
	n, ok := new(big.Int).SetString(strings.TrimSpace(v), 0)
	if !ok {
		return v
	}
	return n.String()
}
