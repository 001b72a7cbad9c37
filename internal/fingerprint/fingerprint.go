// Package fingerprint computes stable content hashes for deduplication.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/lexwatch/dje-monitor/internal/monitor"
)

// Hasher fingerprints feed records using SHA-256 over their identifying
// fields. Two records with the same court, process number, availability
// date, and body always produce the same digest.
type Hasher struct{}

// New returns a SHA-256 fingerprint hasher.
func New() *Hasher {
	return &Hasher{}
}

// Record returns the hex digest identifying a feed record.
func (Hasher) Record(rec monitor.FeedRecord) string {
	h := sha256.New()
	// Field separator keeps ("ab","c") distinct from ("a","bc").
	h.Write([]byte(strings.TrimSpace(rec.Court)))
	h.Write([]byte{'\n'})
	h.Write([]byte(strings.TrimSpace(rec.ProcessNumber)))
	h.Write([]byte{'\n'})
	h.Write([]byte(strings.TrimSpace(rec.AvailabilityDate)))
	h.Write([]byte{'\n'})
	h.Write([]byte(strings.TrimSpace(rec.Body)))
	return hex.EncodeToString(h.Sum(nil))
}
