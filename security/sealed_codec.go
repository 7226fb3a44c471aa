// Package security seals credential payloads with an application key before
// they reach a store.
package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-integrations/core"
)

const (
	envelopePrefix    = "integrations.credential.v1:"
	envelopeAlgorithm = "aes-256-gcm"
	formatSuffix      = "+" + envelopeAlgorithm
)

// Key is one application key. ID is written into every envelope so payloads
// sealed under a retired key stay readable after rotation.
type Key struct {
	ID       string
	Material []byte
}

type envelope struct {
	KeyID      string `json:"kid"`
	Algorithm  string `json:"alg"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

type EnvelopeMetadata struct {
	KeyID     string
	Algorithm string
}

// SealedCredentialCodec encrypts whatever the inner codec produces. New
// payloads always use the active key.
type SealedCredentialCodec struct {
	inner  core.CredentialCodec
	active string
	aeads  map[string]cipher.AEAD
}

func NewSealedCredentialCodec(inner core.CredentialCodec, active Key, retired ...Key) (*SealedCredentialCodec, error) {
	if inner == nil {
		inner = core.JSONCredentialCodec{}
	}
	codec := &SealedCredentialCodec{inner: inner, aeads: map[string]cipher.AEAD{}}
	for idx, key := range append([]Key{active}, retired...) {
		id := strings.TrimSpace(key.ID)
		if id == "" {
			return nil, fmt.Errorf("security: key %d has no id", idx)
		}
		if _, exists := codec.aeads[id]; exists {
			return nil, fmt.Errorf("security: duplicate key id %q", id)
		}
		aead, err := newAEAD(key.Material)
		if err != nil {
			return nil, fmt.Errorf("security: key %q: %w", id, err)
		}
		codec.aeads[id] = aead
		if idx == 0 {
			codec.active = id
		}
	}
	return codec, nil
}

func (c *SealedCredentialCodec) Format() string {
	return c.inner.Format() + formatSuffix
}

func (c *SealedCredentialCodec) Version() int {
	return c.inner.Version()
}

func (c *SealedCredentialCodec) ActiveKeyID() string {
	return c.active
}

func (c *SealedCredentialCodec) Encode(tokens core.TokenMaterial) ([]byte, error) {
	plaintext, err := c.inner.Encode(tokens)
	if err != nil {
		return nil, err
	}
	aead := c.aeads[c.active]
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}
	data, err := json.Marshal(envelope{
		KeyID:      c.active,
		Algorithm:  envelopeAlgorithm,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(aead.Seal(nil, nonce, plaintext, []byte(c.active))),
	})
	if err != nil {
		return nil, fmt.Errorf("security: encode envelope: %w", err)
	}
	return append([]byte(envelopePrefix), data...), nil
}

func (c *SealedCredentialCodec) Decode(payload []byte) (core.TokenMaterial, error) {
	env, err := decodeEnvelope(payload)
	if err != nil {
		return core.TokenMaterial{}, err
	}
	aead, ok := c.aeads[env.KeyID]
	if !ok {
		return core.TokenMaterial{}, fmt.Errorf("security: unknown key id %q", env.KeyID)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return core.TokenMaterial{}, fmt.Errorf("security: decode nonce: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return core.TokenMaterial{}, fmt.Errorf("security: decode ciphertext payload: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return core.TokenMaterial{}, fmt.Errorf("security: nonce has %d bytes, want %d", len(nonce), aead.NonceSize())
	}
	plaintext, err := aead.Open(nil, nonce, sealed, []byte(env.KeyID))
	if err != nil {
		return core.TokenMaterial{}, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return c.inner.Decode(plaintext)
}

// NeedsRotation reports whether payload was sealed under a key other than
// the active one.
func (c *SealedCredentialCodec) NeedsRotation(payload []byte) (bool, error) {
	meta, err := ParseEnvelopeMetadata(payload)
	if err != nil {
		return false, err
	}
	return meta.KeyID != c.active, nil
}

func ParseEnvelopeMetadata(payload []byte) (EnvelopeMetadata, error) {
	env, err := decodeEnvelope(payload)
	if err != nil {
		return EnvelopeMetadata{}, err
	}
	return EnvelopeMetadata{KeyID: env.KeyID, Algorithm: env.Algorithm}, nil
}

func decodeEnvelope(payload []byte) (envelope, error) {
	if len(payload) == 0 {
		return envelope{}, fmt.Errorf("security: ciphertext is required")
	}
	raw, ok := bytes.CutPrefix(payload, []byte(envelopePrefix))
	if !ok {
		return envelope{}, fmt.Errorf("security: invalid ciphertext envelope prefix")
	}
	parsed := envelope{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return envelope{}, fmt.Errorf("security: decode envelope: %w", err)
	}
	parsed.KeyID = strings.TrimSpace(parsed.KeyID)
	if parsed.Algorithm != envelopeAlgorithm {
		return envelope{}, fmt.Errorf("security: unsupported algorithm %q", parsed.Algorithm)
	}
	if parsed.Ciphertext == "" {
		return envelope{}, fmt.Errorf("security: envelope ciphertext is required")
	}
	return parsed, nil
}

func newAEAD(material []byte) (cipher.AEAD, error) {
	trimmed := bytes.TrimSpace(material)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("key material is required")
	}
	block, err := aes.NewCipher(normalizeKey(trimmed))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// normalizeKey keeps raw AES key lengths and hashes anything else to 32 bytes.
func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		return append([]byte(nil), value...)
	}
	sum := sha256.Sum256(value)
	return sum[:]
}

var _ core.CredentialCodec = (*SealedCredentialCodec)(nil)
