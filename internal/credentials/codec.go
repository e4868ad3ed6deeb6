// Package credentials encrypts third-party access tokens at rest using
// AES-256-GCM inside a versioned envelope.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/pmahajan3105/releasenote-sub004/internal/domain/integration"
)

const (
	keyLen   = 32
	nonceLen = 12
)

// Codec seals and opens credential envelopes with a single symmetric key.
// The key material is parsed lazily on first use so that deployments which
// never touch integrations do not need it at boot.
type Codec struct {
	rawKey string
	logger *zap.Logger

	once   sync.Once
	key    []byte
	keyErr error
}

// NewCodec creates a codec over the configured key value, accepted as
// 64 hex characters or base64 of 32 bytes.
func NewCodec(rawKey string, logger *zap.Logger) *Codec {
	return &Codec{rawKey: rawKey, logger: logger}
}

func (c *Codec) loadKey() ([]byte, error) {
	c.once.Do(func() {
		c.key, c.keyErr = parseKey(c.rawKey)
	})
	return c.key, c.keyErr
}

func parseKey(raw string) ([]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("credentials encryption key missing: %w", integration.ErrNotConfigured)
	}

	if len(trimmed) == hex.EncodedLen(keyLen) {
		if key, err := hex.DecodeString(trimmed); err == nil {
			return key, nil
		}
	}
	if key, err := base64.StdEncoding.DecodeString(trimmed); err == nil && len(key) == keyLen {
		return key, nil
	}
	if key, err := base64.RawStdEncoding.DecodeString(trimmed); err == nil && len(key) == keyLen {
		return key, nil
	}

	return nil, fmt.Errorf("credentials encryption key must be %d bytes as hex-64 or base64: %w", keyLen, integration.ErrNotConfigured)
}

// Encrypt seals the payload into a version-1 envelope. A fresh 12-byte nonce
// is generated per call; a nonce is never accepted from the caller.
func (c *Codec) Encrypt(payload map[string]any) (integration.Envelope, error) {
	key, err := c.loadKey()
	if err != nil {
		return integration.Envelope{}, err
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return integration.Envelope{}, fmt.Errorf("marshal credentials: %w", err)
	}

	aead, err := newAEAD(key)
	if err != nil {
		return integration.Envelope{}, err
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return integration.Envelope{}, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)
	tagAt := len(sealed) - aead.Overhead()

	return integration.Envelope{
		V:    integration.EnvelopeVersion,
		IV:   hex.EncodeToString(nonce),
		Data: hex.EncodeToString(sealed[:tagAt]),
		Tag:  hex.EncodeToString(sealed[tagAt:]),
	}, nil
}

// Decrypt opens an envelope and returns the credential payload. Structural
// problems, authentication failures, and non-object payloads all surface as
// ErrNotDecryptable; key configuration errors propagate as ErrNotConfigured.
func (c *Codec) Decrypt(env integration.Envelope) (map[string]any, error) {
	key, err := c.loadKey()
	if err != nil {
		return nil, err
	}

	nonce, ciphertext, err := decodeEnvelope(env)
	if err != nil {
		return nil, err
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, integration.ErrNotDecryptable
	}

	var payload map[string]any
	if err := json.Unmarshal(plaintext, &payload); err != nil || payload == nil {
		return nil, integration.ErrNotDecryptable
	}
	return payload, nil
}

// AccessToken is the best-effort accessor: it opens the envelope and pulls
// the access_token field, returning "" on any failure. Misconfiguration is
// still logged so a broken deployment does not masquerade as "not connected".
func (c *Codec) AccessToken(env integration.Envelope) string {
	payload, err := c.Decrypt(env)
	if err != nil {
		if errors.Is(err, integration.ErrNotConfigured) {
			c.log().Error("credentials codec misconfigured", zap.Error(err))
		} else {
			c.log().Debug("credentials envelope not decryptable", zap.Error(err))
		}
		return ""
	}
	token, _ := payload["access_token"].(string)
	return token
}

func decodeEnvelope(env integration.Envelope) (nonce, ciphertext []byte, err error) {
	if env.V != integration.EnvelopeVersion || env.IV == "" || env.Data == "" || env.Tag == "" {
		return nil, nil, integration.ErrNotDecryptable
	}
	nonce, err = hex.DecodeString(env.IV)
	if err != nil || len(nonce) != nonceLen {
		return nil, nil, integration.ErrNotDecryptable
	}
	data, err := hex.DecodeString(env.Data)
	if err != nil {
		return nil, nil, integration.ErrNotDecryptable
	}
	tag, err := hex.DecodeString(env.Tag)
	if err != nil {
		return nil, nil, integration.ErrNotDecryptable
	}
	return nonce, append(data, tag...), nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return aead, nil
}

func (c *Codec) log() *zap.Logger {
	if c != nil && c.logger != nil {
		return c.logger
	}
	return zap.L()
}
