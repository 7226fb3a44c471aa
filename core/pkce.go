package core

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	PKCEMethodS256       = "S256"
	stateEntropyBytes    = 32
	verifierEntropyBytes = 32
)

type PKCEPair struct {
	Verifier  string
	Challenge string
	Method    string
}

func randomURLToken(size int) (string, error) {
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func GenerateState() (string, error) {
	state, err := randomURLToken(stateEntropyBytes)
	if err != nil {
		return "", fmt.Errorf("core: generate oauth state: %w", err)
	}
	return state, nil
}

func GeneratePKCE() (PKCEPair, error) {
	verifier, err := randomURLToken(verifierEntropyBytes)
	if err != nil {
		return PKCEPair{}, fmt.Errorf("core: generate code verifier: %w", err)
	}
	return PKCEPair{
		Verifier:  verifier,
		Challenge: CodeChallengeS256(verifier),
		Method:    PKCEMethodS256,
	}, nil
}

func CodeChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// statesEqual compares in constant time; empty values never match.
func statesEqual(expected, actual string) bool {
	expected = strings.TrimSpace(expected)
	actual = strings.TrimSpace(actual)
	if expected == "" || actual == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(actual)) == 1
}
