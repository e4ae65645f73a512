package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainProgram = "qsched/program/v1"
	DomainStream  = "qsched/stream/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ProgramHash computes the content-addressed identity of a program.
//
// A trace recorded against one program hash must never be replayed or
// verified against a program with a different hash: the instruction streams
// encode one specific reaction graph.
func ProgramHash(p *Program) (string, error) {
	canonical, err := MarshalCanonical(p.Canonical())
	if err != nil {
		return "", fmt.Errorf("ProgramHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainProgram, canonical), nil
}

// StreamHash identifies a single worker stream. Two schedules that share a
// stream hash give that worker identical work.
func StreamHash(s Stream) string {
	insts := s.Instructions()
	encoded := make([]any, len(insts))
	for i, inst := range insts {
		encoded[i] = map[string]any{"op": string(rune(inst.Op)), "arg": inst.Operand}
	}
	// Instructions only contain strings and ints; marshaling cannot fail.
	canonical, _ := MarshalCanonical(encoded)
	return hashWithDomain(DomainStream, canonical)
}

// MustProgramHash is like ProgramHash but panics on error.
// Use only in tests or when the program is known to be valid.
func MustProgramHash(p *Program) string {
	h, err := ProgramHash(p)
	if err != nil {
		panic(err)
	}
	return h
}
