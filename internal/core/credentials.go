package core

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	credentialLetters = "abcdefghjkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"
	credentialDigits  = "23456789"
)

// credentialPrefixes keep temporary credentials recognisable per role.
var credentialPrefixes = map[AccountRole]string{
	RoleStudent:          "Student",
	RoleTeachingStaff:    "Teacher",
	RoleNonTeachingStaff: "Staff",
	RoleParent:           "Parent",
}

// NewTemporaryCredential returns a fresh one-time password such as
// "Student@kQ7mZp42". It always contains upper and lower case letters, a
// digit and a symbol so it passes common password policies.
func NewTemporaryCredential(role AccountRole) (string, error) {
	prefix, ok := credentialPrefixes[role]
	if !ok {
		prefix = "User"
	}

	letters, err := randomFrom(credentialLetters, 6)
	if err != nil {
		return "", err
	}
	digits, err := randomFrom(credentialDigits, 2)
	if err != nil {
		return "", err
	}
	return prefix + "@" + letters + digits, nil
}

func randomFrom(alphabet string, n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate credential: %w", err)
		}
		buf[i] = alphabet[idx.Int64()]
	}
	return string(buf), nil
}
