package utils

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
)

const (
	codeMin  = 100000
	codeSpan = 900000
)

// NewVerificationCode returns a uniformly random six digit code in
// [100000, 999999].
func NewVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}

// NicknameBase is the local part of an email address.
func NicknameBase(email string) string {
	local, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(email)), "@")
	return local
}

// NextNickname derives a nickname from base given the highest numeric
// suffix already used for it. found is false when neither base nor any
// base<N> exists yet. The bare base counts as suffix 0, so "ann" is
// followed by "ann1", then "ann2".
func NextNickname(base string, maxSuffix uint64, found bool) string {
	if !found {
		return base
	}
	return base + strconv.FormatUint(maxSuffix+1, 10)
}
