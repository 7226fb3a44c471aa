package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	CredentialPayloadFormatJSONV1 = "token_material_json"
	CredentialPayloadVersionV1    = 1
)

// CredentialCodec serializes TokenMaterial for stores that keep it as an
// opaque payload.
type CredentialCodec interface {
	Format() string
	Version() int
	Encode(tokens TokenMaterial) ([]byte, error)
	Decode(payload []byte) (TokenMaterial, error)
}

type JSONCredentialCodec struct{}

func (JSONCredentialCodec) Format() string {
	return CredentialPayloadFormatJSONV1
}

func (JSONCredentialCodec) Version() int {
	return CredentialPayloadVersionV1
}

type jsonCredentialPayload struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Scope        string     `json:"scope,omitempty"`
	TokenType    string     `json:"token_type,omitempty"`
}

func (JSONCredentialCodec) Encode(tokens TokenMaterial) ([]byte, error) {
	if strings.TrimSpace(tokens.AccessToken) == "" {
		return nil, fmt.Errorf("core: credential payload requires an access token")
	}
	encoded, err := json.Marshal(jsonCredentialPayload{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    cloneTimePointer(tokens.ExpiresAt),
		Scope:        tokens.Scope,
		TokenType:    tokens.TokenType,
	})
	if err != nil {
		return nil, fmt.Errorf("core: encode credential payload: %w", err)
	}
	return encoded, nil
}

func (JSONCredentialCodec) Decode(payload []byte) (TokenMaterial, error) {
	if len(payload) == 0 {
		return TokenMaterial{}, fmt.Errorf("core: credential payload is empty")
	}
	decoded := jsonCredentialPayload{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return TokenMaterial{}, fmt.Errorf("core: decode credential payload: %w", err)
	}
	return TokenMaterial{
		AccessToken:  decoded.AccessToken,
		RefreshToken: decoded.RefreshToken,
		ExpiresAt:    cloneTimePointer(decoded.ExpiresAt),
		Scope:        decoded.Scope,
		TokenType:    decoded.TokenType,
	}, nil
}

func cloneTimePointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := value.UTC()
	return &clone
}
