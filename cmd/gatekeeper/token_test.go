package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "gatekeeper/internal/jwt_token"
)

func TestMintToken(t *testing.T) {
	t.Setenv("ADMIN_JWT_SECRET", "s3cret")

	var out bytes.Buffer
	require.NoError(t, mintToken([]string{"-operator", "alice", "-ttl", "1h"}, &out))

	claims, err := jwttoken.NewJWTService("s3cret", tokenIssuer, tokenAudience).ValidateToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Operator)
}

func TestMintTokenRequiresOperatorAndSecret(t *testing.T) {
	t.Setenv("ADMIN_JWT_SECRET", "")

	var out bytes.Buffer
	require.Error(t, mintToken(nil, &out))
	require.Error(t, mintToken([]string{"-operator", "alice"}, &out))
	assert.Empty(t, out.String())
}
