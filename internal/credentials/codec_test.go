package credentials

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pmahajan3105/releasenote-sub004/internal/domain/integration"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestCodec(t *testing.T, rawKey string) *Codec {
	t.Helper()
	return NewCodec(rawKey, zap.NewNop())
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	codec := newTestCodec(t, testKeyHex)

	payload := map[string]any{
		"access_token":  "ghp_xyz",
		"refresh_token": "r1",
		"expires_in":    float64(3600),
	}

	env, err := codec.Encrypt(payload)
	require.NoError(t, err)
	require.Equal(t, 1, env.V)
	require.NotEmpty(t, env.IV)
	require.NotEmpty(t, env.Data)
	require.NotEmpty(t, env.Tag)

	got, err := codec.Decrypt(env)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestEncryptFreshNonce(t *testing.T) {
	codec := newTestCodec(t, testKeyHex)
	a, err := codec.Encrypt(map[string]any{"access_token": "t"})
	require.NoError(t, err)
	b, err := codec.Encrypt(map[string]any{"access_token": "t"})
	require.NoError(t, err)
	require.NotEqual(t, a.IV, b.IV)
}

func TestDecryptTampered(t *testing.T) {
	codec := newTestCodec(t, testKeyHex)
	env, err := codec.Encrypt(map[string]any{"access_token": "secret"})
	require.NoError(t, err)

	flip := func(field string) integration.Envelope {
		tampered := env
		raw, decErr := hex.DecodeString(field)
		require.NoError(t, decErr)
		raw[0] ^= 0x01
		switch field {
		case env.Data:
			tampered.Data = hex.EncodeToString(raw)
		case env.Tag:
			tampered.Tag = hex.EncodeToString(raw)
		}
		return tampered
	}

	_, err = codec.Decrypt(flip(env.Data))
	require.ErrorIs(t, err, integration.ErrNotDecryptable)
	_, err = codec.Decrypt(flip(env.Tag))
	require.ErrorIs(t, err, integration.ErrNotDecryptable)
}

func TestDecryptRejectsWrongVersion(t *testing.T) {
	codec := newTestCodec(t, testKeyHex)
	env, err := codec.Encrypt(map[string]any{"access_token": "secret"})
	require.NoError(t, err)

	env.V = 2
	_, err = codec.Decrypt(env)
	require.ErrorIs(t, err, integration.ErrNotDecryptable)
}

func TestDecryptRejectsMissingFields(t *testing.T) {
	codec := newTestCodec(t, testKeyHex)
	env, err := codec.Encrypt(map[string]any{"access_token": "secret"})
	require.NoError(t, err)

	for _, mutate := range []func(*integration.Envelope){
		func(e *integration.Envelope) { e.IV = "" },
		func(e *integration.Envelope) { e.Data = "" },
		func(e *integration.Envelope) { e.Tag = "" },
		func(e *integration.Envelope) { e.IV = "not-hex" },
	} {
		broken := env
		mutate(&broken)
		_, err := codec.Decrypt(broken)
		require.ErrorIs(t, err, integration.ErrNotDecryptable)
	}
}

func TestKeyFormats(t *testing.T) {
	raw, err := hex.DecodeString(testKeyHex)
	require.NoError(t, err)

	hexCodec := newTestCodec(t, testKeyHex)
	_, err = hexCodec.Encrypt(map[string]any{"a": "b"})
	require.NoError(t, err)

	b64Codec := newTestCodec(t, base64.StdEncoding.EncodeToString(raw))
	env, err := b64Codec.Encrypt(map[string]any{"access_token": "tok"})
	require.NoError(t, err)

	// Hex and base64 spellings of the same key interoperate.
	payload, err := hexCodec.Decrypt(env)
	require.NoError(t, err)
	require.Equal(t, "tok", payload["access_token"])
}

func TestKeyMisconfigured(t *testing.T) {
	for _, raw := range []string{"", "too-short", "deadbeef"} {
		codec := newTestCodec(t, raw)
		_, err := codec.Encrypt(map[string]any{"a": "b"})
		require.Error(t, err)
		require.True(t, errors.Is(err, integration.ErrNotConfigured), "key %q", raw)
	}
}

func TestAccessTokenBestEffort(t *testing.T) {
	codec := newTestCodec(t, testKeyHex)
	env, err := codec.Encrypt(map[string]any{"access_token": "ghp_xyz"})
	require.NoError(t, err)

	require.Equal(t, "ghp_xyz", codec.AccessToken(env))

	raw, err := hex.DecodeString(env.Data)
	require.NoError(t, err)
	raw[0] ^= 0x01
	env.Data = hex.EncodeToString(raw)
	require.Equal(t, "", codec.AccessToken(env))

	misconfigured := newTestCodec(t, "bogus")
	require.Equal(t, "", misconfigured.AccessToken(env))
}
