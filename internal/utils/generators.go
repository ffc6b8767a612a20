package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateTicketCode returns a 12-character reference code drawn from a
// 62-symbol alphabet. Callers must still check uniqueness against the store
// and regenerate on collision.
func GenerateTicketCode() string {
	max := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, 12)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			b[i] = codeAlphabet[int(time.Now().UnixNano())%len(codeAlphabet)]
			continue
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b)
}

// GenerateGuestID returns an identifier for synthesized guest accounts.
func GenerateGuestID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999))
	return fmt.Sprintf("guest_%d_%06d", timestamp, randomNum.Int64())
}
