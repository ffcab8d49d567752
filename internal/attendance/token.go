package attendance

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	TokenLength   = 6
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateToken returns a random 6-character [A-Z0-9] token.
// Uniqueness against outstanding codes is not checked.
func GenerateToken() (string, error) {
	max := big.NewInt(int64(len(tokenAlphabet)))
	var sb strings.Builder
	sb.Grow(TokenLength)
	for i := 0; i < TokenLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(tokenAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// NormalizeToken trims and uppercases user input.
func NormalizeToken(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

func wellFormed(token string) bool {
	if len(token) != TokenLength {
		return false
	}
	for i := 0; i < len(token); i++ {
		if strings.IndexByte(tokenAlphabet, token[i]) < 0 {
			return false
		}
	}
	return true
}
