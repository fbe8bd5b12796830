package publisher

import (
	"fmt"
	"strings"
)

const (
	classicTokenPrefix      = "ghp_"
	fineGrainedTokenPrefix  = "github_pat_"
	redactVisibleCharacters = 4
)

// Credential is either a TokenCredential or a BearerCredential. The scheme
// is decided once, when the raw token is parsed.
type Credential interface {
	// AuthorizationHeader is the full value of the Authorization header.
	AuthorizationHeader() string
	// Redact describes the token without revealing it.
	Redact() string
	credential()
}

// TokenCredential is a classic personal access token, sent as "token X".
type TokenCredential struct {
	value string
}

// BearerCredential is a fine-grained token, sent as "Bearer X".
type BearerCredential struct {
	value string
}

func (c TokenCredential) AuthorizationHeader() string  { return "token " + c.value }
func (c BearerCredential) AuthorizationHeader() string { return "Bearer " + c.value }

func (c TokenCredential) Redact() string  { return redact("token", c.value) }
func (c BearerCredential) Redact() string { return redact("bearer", c.value) }

func (TokenCredential) credential()  {}
func (BearerCredential) credential() {}

// ParseCredential picks the header scheme from the token shape. Tokens that
// are neither classic nor fine-grained are sent with the classic scheme.
func ParseCredential(raw string) (Credential, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("content store token is empty")
	}

	switch {
	case strings.HasPrefix(raw, fineGrainedTokenPrefix):
		return BearerCredential{value: raw}, nil
	case strings.HasPrefix(raw, classicTokenPrefix):
		return TokenCredential{value: raw}, nil
	default:
		return TokenCredential{value: raw}, nil
	}
}

func redact(scheme, value string) string {
	if len(value) <= 2*redactVisibleCharacters {
		return fmt.Sprintf("%s(len=%d)", scheme, len(value))
	}
	return fmt.Sprintf("%s(len=%d prefix=%s suffix=%s)", scheme, len(value),
		value[:redactVisibleCharacters], value[len(value)-redactVisibleCharacters:])
}
