package classify

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"krampus/internal/domain"
)

// MaxIdentifierLength caps raw identifier input before any matching runs.
const MaxIdentifierLength = 512

var ErrInvalidIdentifier = errors.New("invalid identifier")

var (
	binaryHashPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
	signingIDPattern  = regexp.MustCompile(`^[A-Za-z0-9]+(\.[A-Za-z0-9]+)+$`)
)

// Identifier is a typed (kind, value) pair with a case-normalized value.
type Identifier struct {
	Kind  domain.RuleType `json:"kind"`
	Value string          `json:"value"`
}

// Classify maps a raw string to a typed identifier. 64 hex characters become
// a lower-cased binary hash, dotted tokens become a signing id, anything else
// falls back to binary: callers that already know the kind (explicit
// certificate, team id or cdhash selections) should use Normalize instead.
func Classify(raw string) (Identifier, error) {
	if raw == "" {
		return Identifier{}, fmt.Errorf("%w: empty value", ErrInvalidIdentifier)
	}
	if len(raw) > MaxIdentifierLength {
		return Identifier{}, fmt.Errorf("%w: value exceeds %d characters", ErrInvalidIdentifier, MaxIdentifierLength)
	}

	if binaryHashPattern.MatchString(raw) {
		return Identifier{Kind: domain.RuleTypeBinary, Value: strings.ToLower(raw)}, nil
	}
	if signingIDPattern.MatchString(raw) {
		return Identifier{Kind: domain.RuleTypeSigningID, Value: raw}, nil
	}
	return Identifier{Kind: domain.RuleTypeBinary, Value: strings.ToLower(raw)}, nil
}

// Normalize validates a raw value against an explicitly chosen kind and
// applies the same case normalization Classify would.
func Normalize(kind domain.RuleType, raw string) (Identifier, error) {
	if !kind.Valid() {
		return Identifier{}, fmt.Errorf("%w: unknown rule type %q", ErrInvalidIdentifier, kind)
	}
	if raw == "" {
		return Identifier{}, fmt.Errorf("%w: empty value", ErrInvalidIdentifier)
	}
	if len(raw) > MaxIdentifierLength {
		return Identifier{}, fmt.Errorf("%w: value exceeds %d characters", ErrInvalidIdentifier, MaxIdentifierLength)
	}

	switch kind {
	case domain.RuleTypeBinary, domain.RuleTypeCertificate, domain.RuleTypeCDHash:
		// Hash-shaped kinds are stored lower-case hex.
		return Identifier{Kind: kind, Value: strings.ToLower(raw)}, nil
	default:
		return Identifier{Kind: kind, Value: raw}, nil
	}
}
