package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"ieltsprep/internal/models"
	"ieltsprep/internal/observability"
	contextutils "ieltsprep/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"
)

// AuthAPIKeyServiceInterface defines header-based API key authentication.
type AuthAPIKeyServiceInterface interface {
	CreateAPIKey(ctx context.Context, userID int, keyName string) (*models.AuthAPIKey, string, error)
	ListAPIKeys(ctx context.Context, userID int) ([]models.AuthAPIKey, error)
	DeleteAPIKey(ctx context.Context, userID, keyID int) error
	ValidateAPIKey(ctx context.Context, rawKey string) (*models.AuthAPIKey, error)
}

// AuthAPIKeyService stores bcrypt-hashed service keys. The raw key is shown
// once at creation and never stored.
type AuthAPIKeyService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewAuthAPIKeyService creates a new AuthAPIKeyService instance.
func NewAuthAPIKeyService(db *sql.DB, logger *observability.Logger) *AuthAPIKeyService {
	return &AuthAPIKeyService{
		db:     db,
		logger: logger,
	}
}

const (
	// APIKeyPrefix starts every service key; the stored prefix column lets
	// validation skip bcrypt checks on obviously foreign keys.
	APIKeyPrefix = "ielts_"
	apiKeyBytes  = 16
)

func generateAPIKey() (string, error) {
	randomBytes := make([]byte, apiKeyBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", contextutils.WrapError(err, "failed to generate random key")
	}
	return APIKeyPrefix + hex.EncodeToString(randomBytes), nil
}

// CreateAPIKey creates a key for a user, returning the record and the raw
// key.
func (s *AuthAPIKeyService) CreateAPIKey(ctx context.Context, userID int, keyName string) (result0 *models.AuthAPIKey, result1 string, err error) {
	ctx, span := observability.TraceFunction(ctx, "auth_api_key", "create",
		attribute.Int("user.id", userID),
		attribute.String("key.name", keyName),
	)
	defer observability.FinishSpan(span, &err)

	if strings.TrimSpace(keyName) == "" {
		return nil, "", contextutils.WrapError(contextutils.ErrInvalidInput, "key name is required")
	}

	rawKey, err := generateAPIKey()
	if err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", contextutils.WrapError(err, "failed to hash API key")
	}

	key := &models.AuthAPIKey{
		UserID:    userID,
		KeyName:   keyName,
		KeyHash:   string(hash),
		KeyPrefix: rawKey[:len(APIKeyPrefix)+4],
		CreatedAt: time.Now().UTC(),
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO auth_api_keys (user_id, key_name, key_hash, key_prefix, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		key.UserID, key.KeyName, key.KeyHash, key.KeyPrefix, key.CreatedAt,
	).Scan(&key.ID)
	if err != nil {
		return nil, "", contextutils.WrapError(err, "failed to store API key")
	}

	return key, rawKey, nil
}

// ListAPIKeys returns the user's keys, hashes omitted.
func (s *AuthAPIKeyService) ListAPIKeys(ctx context.Context, userID int) (result0 []models.AuthAPIKey, err error) {
	ctx, span := observability.TraceFunction(ctx, "auth_api_key", "list",
		attribute.Int("user.id", userID),
	)
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, key_name, key_prefix, last_used_at, created_at
		FROM auth_api_keys WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to list API keys")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var keys []models.AuthAPIKey
	for rows.Next() {
		var k models.AuthAPIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.KeyName, &k.KeyPrefix, &k.LastUsedAt, &k.CreatedAt); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan API key row")
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// DeleteAPIKey removes one of the user's keys.
func (s *AuthAPIKeyService) DeleteAPIKey(ctx context.Context, userID, keyID int) (err error) {
	ctx, span := observability.TraceFunction(ctx, "auth_api_key", "delete",
		attribute.Int("user.id", userID),
		attribute.Int("key.id", keyID),
	)
	defer observability.FinishSpan(span, &err)

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM auth_api_keys WHERE id = $1 AND user_id = $2`, keyID, userID)
	if err != nil {
		return contextutils.WrapError(err, "failed to delete API key")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return contextutils.WrapError(contextutils.ErrRecordNotFound, "API key not found")
	}
	return nil
}

// ValidateAPIKey resolves a raw key from the X-API-Key header to its record.
func (s *AuthAPIKeyService) ValidateAPIKey(ctx context.Context, rawKey string) (result0 *models.AuthAPIKey, err error) {
	ctx, span := observability.TraceFunction(ctx, "auth_api_key", "validate")
	defer observability.FinishSpan(span, &err)

	if !strings.HasPrefix(rawKey, APIKeyPrefix) || len(rawKey) < len(APIKeyPrefix)+4 {
		return nil, contextutils.WrapError(contextutils.ErrInvalidCredentials, "malformed API key")
	}

	// The prefix column narrows the bcrypt comparisons to a handful of rows.
	prefix := rawKey[:len(APIKeyPrefix)+4]
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, key_name, key_hash, key_prefix, last_used_at, created_at
		FROM auth_api_keys WHERE key_prefix = $1`, prefix)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to look up API key")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	for rows.Next() {
		var k models.AuthAPIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.KeyName, &k.KeyHash, &k.KeyPrefix, &k.LastUsedAt, &k.CreatedAt); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan API key row")
		}
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(rawKey)) == nil {
			s.touchLastUsed(ctx, k.ID)
			return &k, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate API key rows")
	}
	return nil, contextutils.WrapError(contextutils.ErrInvalidCredentials, "unknown API key")
}

func (s *AuthAPIKeyService) touchLastUsed(ctx context.Context, keyID int) {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE auth_api_keys SET last_used_at = NOW() WHERE id = $1`, keyID); err != nil &&
		!errors.Is(err, context.Canceled) {
		s.logger.Warn(ctx, "Failed to update key last_used_at", map[string]interface{}{"error": err.Error()})
	}
}
