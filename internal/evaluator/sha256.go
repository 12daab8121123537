package evaluator

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// SHA256Name is the registry key of the built-in evaluator.
const SHA256Name = "sha256"

// SHA256Evaluator searches for a counter whose derived fingerprint starts with
// a target prefix. The candidate for a counter is sha256(seed || le64(counter));
// its fingerprint is sha256(candidate). The payload of a match is the candidate
// in hex.
type SHA256Evaluator struct {
	seed   []byte
	target string
}

// NewSHA256 builds a SHA256Evaluator. Target must be 1..64 hex characters.
func NewSHA256(cfg Config) (Evaluator, error) {
	target := strings.ToLower(strings.TrimSpace(cfg.Target))
	if target == "" {
		return nil, errors.New("target is required")
	}
	if len(target) > sha256.Size*2 {
		return nil, fmt.Errorf("target longer than %d hex characters", sha256.Size*2)
	}
	if _, err := hex.DecodeString(padEven(target)); err != nil {
		return nil, fmt.Errorf("target is not hex: %w", err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(cfg.Seed))
	if err != nil {
		return nil, fmt.Errorf("seed is not hex: %w", err)
	}
	return &SHA256Evaluator{seed: seed, target: target}, nil
}

// Name returns SHA256Name.
func (e *SHA256Evaluator) Name() string { return SHA256Name }

// Candidate derives the candidate bytes for counter.
func (e *SHA256Evaluator) Candidate(counter uint64) [sha256.Size]byte {
	buf := make([]byte, len(e.seed)+8)
	copy(buf, e.seed)
	binary.LittleEndian.PutUint64(buf[len(e.seed):], counter)
	return sha256.Sum256(buf)
}

// Fingerprint returns the hex fingerprint of a candidate.
func Fingerprint(candidate [sha256.Size]byte) string {
	fp := sha256.Sum256(candidate[:])
	return hex.EncodeToString(fp[:])
}

// Evaluate implements Evaluator.
func (e *SHA256Evaluator) Evaluate(counter uint64) (bool, string, error) {
	cand := e.Candidate(counter)
	if !strings.HasPrefix(Fingerprint(cand), e.target) {
		return false, "", nil
	}
	return true, hex.EncodeToString(cand[:]), nil
}

func padEven(s string) string {
	if len(s)%2 == 1 {
		return s + "0"
	}
	return s
}
