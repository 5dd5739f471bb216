// Package reasoner turns language-model answers into typed pipeline values.
//
// Architect proposes an ArchitectureDiff plus the updated Architecture for a
// requirement; TaskMaster breaks a diff into a TaskPlan. Both decode the
// model's JSON strictly and never repair it: structural checks belong to the
// pipeline coordinator.
package reasoner

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/HendryAvila/archpipe/internal/arch"
	"github.com/HendryAvila/archpipe/internal/llm"
)

// decodeStrict decodes exactly one JSON value into v, rejecting unknown
// fields and trailing data. A surrounding markdown code fence is stripped.
func decodeStrict(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(stripFence(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}

func stripFence(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(s, "```") {
		return []byte(s)
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return []byte(strings.TrimSpace(s))
}

// classify maps a client failure: an unusable answer is a generation error
// of the calling agent, anything else (transport, timeout, cancel) is
// upstream.
func classify(err error, generation error) error {
	if errors.Is(err, llm.ErrInvalidJSON) {
		return fmt.Errorf("%w: %w", generation, err)
	}
	return fmt.Errorf("%w: %w", arch.ErrUpstream, err)
}
