package util

import (
	"encoding/base64"
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// Normalize maps s to NFKD so that visually identical secrets typed on
// different platforms derive the same key.
func Normalize(s string) string {
	return norm.NFKD.String(s)
}

func HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

func B64Encode(b []byte) string {
	return base64.RawStdEncoding.EncodeToString(b)
}

func B64Decode(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(s)
}
