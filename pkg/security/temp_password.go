package security

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// DefaultTempPasswordLength is the length of credentials issued to newly
// provisioned members.
const DefaultTempPasswordLength = 16

// Look-alike characters (0/O, 1/l/I) are left out.
var tempClasses = []string{
	"ABCDEFGHJKLMNPQRSTUVWXYZ",
	"abcdefghijkmnopqrstuvwxyz",
	"23456789",
	"!@#$%^&*-_=+?",
}

var tempAlphabet = func() string {
	var all string
	for _, c := range tempClasses {
		all += c
	}
	return all
}()

// GenerateTempPassword returns a random credential of length characters.
// When length is at least the number of character classes the result holds
// one character from every class.
func GenerateTempPassword(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("temp password length must be positive")
	}

	out := make([]byte, 0, length)
	for _, class := range tempClasses {
		if len(out) == length {
			break
		}
		c, err := randomByte(class)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < length {
		c, err := randomByte(tempAlphabet)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	// Fisher-Yates so the guaranteed characters are not always in front.
	for i := len(out) - 1; i > 0; i-- {
		j, err := randomIndex(i + 1)
		if err != nil {
			return "", err
		}
		out[i], out[j] = out[j], out[i]
	}
	return string(out), nil
}

func randomByte(alphabet string) (byte, error) {
	i, err := randomIndex(len(alphabet))
	if err != nil {
		return 0, err
	}
	return alphabet[i], nil
}

func randomIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("read random: %w", err)
	}
	return int(v.Int64()), nil
}
