package ir

import (
	"crypto/sha256"
	"encoding/hex"
)

// DomainArtifact prefixes artifact content hashes. The version suffix allows
// a later algorithm change.
const DomainArtifact = "assetpack/artifact/v1"

// VersionLength is the number of hex digits of the artifact hash embedded in
// versioned file names.
const VersionLength = 10

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ArtifactHash is the content hash of an output artifact.
func ArtifactHash(data []byte) string {
	return hashWithDomain(DomainArtifact, data)
}

// VersionToken is the short form of ArtifactHash used in versioned paths.
func VersionToken(data []byte) string {
	return ArtifactHash(data)[:VersionLength]
}

// Digest is a plain SHA-256 of data, used to compare file contents.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
