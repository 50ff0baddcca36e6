package authn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabricgw/gateway/pkg/fabric"
)

func TestPSKProviderAccepts(t *testing.T) {
	chain := NewChain(NewPSKProvider("s3cret"))
	actx, err := chain.Authenticate(context.Background(), Credential{Scheme: "Bearer", Value: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, fabric.AuthModePSK, actx.Mode)
}

func TestPSKProviderRejectsMismatch(t *testing.T) {
	chain := NewChain(NewPSKProvider("s3cret"))
	_, err := chain.Authenticate(context.Background(), Credential{Scheme: "Bearer", Value: "wrong"})
	require.Error(t, err)
	ferr, ok := err.(*fabric.Error)
	require.True(t, ok)
	assert.Equal(t, fabric.AuthDenied, ferr.Code)
}

func TestPSKProviderRejectsEmpty(t *testing.T) {
	chain := NewChain(NewPSKProvider("s3cret"))
	_, err := chain.Authenticate(context.Background(), Credential{Scheme: "Bearer", Value: ""})
	require.Error(t, err)
	ferr, ok := err.(*fabric.Error)
	require.True(t, ok)
	assert.Equal(t, fabric.AuthInvalid, ferr.Code)
}

func TestChainFallsThroughToDenied(t *testing.T) {
	chain := NewChain(NewPassportProvider(false))
	_, err := chain.Authenticate(context.Background(), Credential{Scheme: "Bearer", Value: "x"})
	require.Error(t, err)
	ferr, ok := err.(*fabric.Error)
	require.True(t, ok)
	assert.Equal(t, fabric.AuthDenied, ferr.Code)
}
