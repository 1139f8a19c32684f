package services

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"io"

	"ieltsprep/internal/observability"
	contextutils "ieltsprep/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// ProviderKeyServiceInterface stores and retrieves each user's Gemini API
// key. Keys must round-trip (the gateway sends them on every call), so they
// are encrypted, not hashed.
type ProviderKeyServiceInterface interface {
	SetProviderKey(ctx context.Context, userID int, apiKey string) error
	GetProviderKey(ctx context.Context, userID int) (string, error)
	DeleteProviderKey(ctx context.Context, userID int) error
}

// ProviderKeyService encrypts provider keys with AES-GCM under a key
// derived from the configured secret.
type ProviderKeyService struct {
	db     *sql.DB
	logger *observability.Logger
	aead   cipher.AEAD
}

// NewProviderKeyService creates the service. secret is the server's
// key-encryption secret from config.
func NewProviderKeyService(db *sql.DB, logger *observability.Logger, secret string) (result0 *ProviderKeyService, err error) {
	if secret == "" {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "key encryption secret is not configured")
	}
	derived := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(derived[:])
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to initialize cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to initialize AEAD")
	}
	return &ProviderKeyService{
		db:     db,
		logger: logger,
		aead:   aead,
	}, nil
}

// SetProviderKey encrypts and upserts the user's provider key.
func (s *ProviderKeyService) SetProviderKey(ctx context.Context, userID int, apiKey string) (err error) {
	ctx, span := observability.TraceFunction(ctx, "provider_key", "set",
		attribute.Int("user.id", userID),
	)
	defer observability.FinishSpan(span, &err)

	if apiKey == "" {
		return contextutils.WrapError(contextutils.ErrInvalidInput, "provider key cannot be empty")
	}

	encrypted, err := s.encrypt(apiKey)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO provider_keys (user_id, encrypted_key, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET encrypted_key = EXCLUDED.encrypted_key, updated_at = NOW()`,
		userID, encrypted)
	if err != nil {
		return contextutils.WrapError(err, "failed to store provider key")
	}
	s.logger.Info(ctx, "Provider key updated", map[string]interface{}{"user_id": userID})
	return nil
}

// GetProviderKey decrypts and returns the user's provider key.
func (s *ProviderKeyService) GetProviderKey(ctx context.Context, userID int) (result0 string, err error) {
	ctx, span := observability.TraceFunction(ctx, "provider_key", "get",
		attribute.Int("user.id", userID),
	)
	defer observability.FinishSpan(span, &err)

	var encrypted string
	err = s.db.QueryRowContext(ctx,
		`SELECT encrypted_key FROM provider_keys WHERE user_id = $1`, userID).Scan(&encrypted)
	if err == sql.ErrNoRows {
		return "", contextutils.WrapError(contextutils.ErrRecordNotFound, "no provider key stored for user")
	}
	if err != nil {
		return "", contextutils.WrapError(err, "failed to read provider key")
	}
	return s.decrypt(encrypted)
}

// DeleteProviderKey removes the user's stored key.
func (s *ProviderKeyService) DeleteProviderKey(ctx context.Context, userID int) (err error) {
	ctx, span := observability.TraceFunction(ctx, "provider_key", "delete",
		attribute.Int("user.id", userID),
	)
	defer observability.FinishSpan(span, &err)

	if _, err := s.db.ExecContext(ctx, `DELETE FROM provider_keys WHERE user_id = $1`, userID); err != nil {
		return contextutils.WrapError(err, "failed to delete provider key")
	}
	return nil
}

func (s *ProviderKeyService) encrypt(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", contextutils.WrapError(err, "failed to generate nonce")
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *ProviderKeyService) decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", contextutils.WrapError(err, "stored key is not valid base64")
	}
	if len(sealed) < s.aead.NonceSize() {
		return "", contextutils.WrapError(contextutils.ErrInternalError, "stored key ciphertext is truncated")
	}
	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", contextutils.WrapError(err, "failed to decrypt provider key")
	}
	return string(plaintext), nil
}
