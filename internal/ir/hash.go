package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for fingerprints. The version suffix leaves room for an
// algorithm change without colliding with stored hashes.
const (
	DomainPayload = "captree/payload/v1"
	DomainCopy    = "captree/copy/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint hashes the canonical form of v under domain.
func Fingerprint(domain string, v IRValue) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(domain, canonical), nil
}

// PayloadHash fingerprints a capacity payload. The store keeps it next to
// each payload so unchanged capacities can be detected without decoding.
func PayloadHash(payload IRValue) (string, error) {
	return Fingerprint(DomainPayload, payload)
}

// MustPayloadHash is like PayloadHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustPayloadHash(payload IRValue) string {
	h, err := PayloadHash(payload)
	if err != nil {
		panic(err)
	}
	return h
}
