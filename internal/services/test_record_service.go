package services

import (
	"context"
	"database/sql"
	"encoding/json"

	"ieltsprep/internal/models"
	"ieltsprep/internal/observability"
	contextutils "ieltsprep/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// TestRecordServiceInterface persists finished tests so users can reopen
// past material.
type TestRecordServiceInterface interface {
	SaveTest(ctx context.Context, userID int, test *models.GeneratedTest) error
	ListTests(ctx context.Context, userID int, limit, offset int) ([]models.TestRecord, error)
	// GetTest returns the stored payload for a test owned by the user.
	// Returns ErrRecordNotFound both for missing ids and for tests owned
	// by someone else.
	GetTest(ctx context.Context, userID int, testID string) (*models.GeneratedTest, error)
}

// TestRecordService stores generated tests as JSONB rows. The audio payload
// is stripped before persistence; it is large and single-use.
type TestRecordService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewTestRecordService creates a test archive backed by the given database.
func NewTestRecordService(db *sql.DB, logger *observability.Logger) *TestRecordService {
	return &TestRecordService{
		db:     db,
		logger: logger,
	}
}

// DefaultTestListLimit caps ListTests when the caller passes no limit.
const DefaultTestListLimit = 50

// SaveTest writes the test payload for later retrieval.
func (s *TestRecordService) SaveTest(ctx context.Context, userID int, test *models.GeneratedTest) (err error) {
	ctx, span := observability.TraceStorageFunction(ctx, "save_test",
		attribute.Int("user.id", userID),
		attribute.String("test.id", test.ID),
		attribute.String("test.module", string(test.Module)),
	)
	defer observability.FinishSpan(span, &err)

	stored := *test
	stored.AudioBase64 = ""
	payload, err := json.Marshal(&stored)
	if err != nil {
		return contextutils.WrapError(err, "failed to serialize test payload")
	}

	query := `
		INSERT INTO generated_tests (id, user_id, module, question_type, topic, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`
	if _, err := s.db.ExecContext(ctx, query, test.ID, userID, string(test.Module), test.QuestionType, test.Topic, payload); err != nil {
		return contextutils.WrapError(err, "failed to save generated test")
	}
	return nil
}

// ListTests returns the user's saved tests, newest first, without payloads.
func (s *TestRecordService) ListTests(ctx context.Context, userID int, limit, offset int) (result0 []models.TestRecord, err error) {
	ctx, span := observability.TraceStorageFunction(ctx, "list_tests",
		attribute.Int("user.id", userID),
	)
	defer observability.FinishSpan(span, &err)

	if limit <= 0 || limit > DefaultTestListLimit {
		limit = DefaultTestListLimit
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, user_id, module, question_type, COALESCE(topic, ''), created_at
		FROM generated_tests
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := s.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to list generated tests")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close test list rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	records := make([]models.TestRecord, 0, limit)
	for rows.Next() {
		var rec models.TestRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Module, &rec.QuestionType, &rec.Topic, &rec.CreatedAt); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan test record")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate test records")
	}
	return records, nil
}

// GetTest loads a stored test payload by id, scoped to its owner.
func (s *TestRecordService) GetTest(ctx context.Context, userID int, testID string) (result0 *models.GeneratedTest, err error) {
	ctx, span := observability.TraceStorageFunction(ctx, "get_test",
		attribute.Int("user.id", userID),
		attribute.String("test.id", testID),
	)
	defer observability.FinishSpan(span, &err)

	var payload []byte
	query := `SELECT payload FROM generated_tests WHERE id = $1 AND user_id = $2`
	err = s.db.QueryRowContext(ctx, query, testID, userID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, contextutils.WrapError(contextutils.ErrRecordNotFound, "test not found")
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load generated test")
	}

	var test models.GeneratedTest
	if err := json.Unmarshal(payload, &test); err != nil {
		return nil, contextutils.WrapError(err, "failed to decode stored test payload")
	}
	return &test, nil
}
