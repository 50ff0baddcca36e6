// Package authn validates inbound credential material and produces an
// AuthContext (C2 of the gateway core).
package authn

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/fabricgw/gateway/pkg/fabric"
)

// Credential is the raw, transport-independent credential material handed
// to the verifier chain: an HTTP Authorization header value for the HTTP
// front, or an out-of-band supplied value for the local JSON front.
type Credential struct {
	Scheme string // "Bearer", "Passport", "mTLS", ""
	Value  string
}

// Provider is one entry in the verifier chain.
//
// Contract, mirroring a classic chain-of-responsibility:
//   - (nil, false, nil)  → this provider doesn't recognize the credential, try next
//   - (nil, false, err)  → recognized but rejected, stop and fail
//   - (actx, true, nil)  → accepted, stop
type Provider interface {
	Name() string
	// Verify returns (context, true, nil) on acceptance, (nil, false, nil) to
	// pass to the next provider, or (nil, false, err) to reject immediately.
	Verify(ctx context.Context, cred Credential) (*fabric.AuthContext, bool, error)
}

// Chain walks registered providers in order until one accepts or rejects.
type Chain struct {
	providers []Provider
}

// NewChain builds a chain that consults providers in the given order.
func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

// Authenticate walks the chain. No provider accepting yields AUTH_DENIED.
func (c *Chain) Authenticate(ctx context.Context, cred Credential) (*fabric.AuthContext, error) {
	for _, p := range c.providers {
		actx, ok, err := p.Verify(ctx, cred)
		if err != nil {
			return nil, err
		}
		if ok {
			return actx, nil
		}
	}
	return nil, fabric.NewError(fabric.AuthDenied, "no provider accepted credential")
}

// PSKProvider validates a single shared secret with a constant-time
// comparison, per §4.2.
type PSKProvider struct {
	secret string
}

// NewPSKProvider builds a PSKProvider for the configured shared secret.
func NewPSKProvider(secret string) *PSKProvider {
	return &PSKProvider{secret: secret}
}

func (p *PSKProvider) Name() string { return "psk" }

func (p *PSKProvider) Verify(ctx context.Context, cred Credential) (*fabric.AuthContext, bool, error) {
	if cred.Scheme != "Bearer" {
		return nil, false, nil
	}
	token := strings.TrimSpace(cred.Value)
	if token == "" {
		return nil, false, fabric.NewError(fabric.AuthInvalid, "empty bearer credential")
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(p.secret)) != 1 {
		return nil, false, fabric.NewError(fabric.AuthDenied, "credential rejected")
	}
	return &fabric.AuthContext{Mode: fabric.AuthModePSK, PrincipalID: "psk"}, true, nil
}

// PassportProvider is a reserved stub: it parses the envelope shape of a
// passport credential but does not cryptographically verify it (§4.2, §9
// Open Questions). Verification is a designated extension point.
type PassportProvider struct{ enabled bool }

// NewPassportProvider builds a (disabled by default) passport stub.
func NewPassportProvider(enabled bool) *PassportProvider {
	return &PassportProvider{enabled: enabled}
}

func (p *PassportProvider) Name() string { return "passport" }

func (p *PassportProvider) Verify(ctx context.Context, cred Credential) (*fabric.AuthContext, bool, error) {
	if !p.enabled || cred.Scheme != "Passport" {
		return nil, false, nil
	}
	if cred.Value == "" {
		return nil, false, fabric.NewError(fabric.AuthInvalid, "malformed passport credential")
	}
	// Shape-only: the passport id is carried through, signature verification
	// is not performed in this revision.
	return &fabric.AuthContext{Mode: fabric.AuthModePassport, PrincipalID: "passport", AgentPassportID: cred.Value}, true, nil
}

// NoneProvider accepts every request with no credential check. Used for the
// local JSON front, where the caller is local and out-of-band trusted.
type NoneProvider struct{}

func (NoneProvider) Name() string { return "none" }

func (NoneProvider) Verify(ctx context.Context, cred Credential) (*fabric.AuthContext, bool, error) {
	return &fabric.AuthContext{Mode: fabric.AuthModeNone, PrincipalID: "local"}, true, nil
}
