package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ieltsprep/internal/config"
	"ieltsprep/internal/models"
	"ieltsprep/internal/observability"
	"ieltsprep/internal/services/mailer"
)

type recordingMailer struct {
	enabled bool
	fail    error

	mu   sync.Mutex
	sent []string
}

func (m *recordingMailer) SendEmail(_ context.Context, to, _, _ string, _ map[string]interface{}) error {
	m.mu.Lock()
	m.sent = append(m.sent, to)
	m.mu.Unlock()
	return m.fail
}

func (m *recordingMailer) IsEnabled() bool { return m.enabled }

func (m *recordingMailer) recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

var _ mailer.Mailer = (*recordingMailer)(nil)

func newTestUsageService(t *testing.T, m mailer.Mailer) (*UsageService, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	cleanup := func() {
		require.NoError(t, mock.ExpectationsWereMet())
		mock.ExpectClose()
		require.NoError(t, db.Close())
	}

	cfg := &config.Config{}
	cfg.Quota.DailyTokenCeiling = 1000
	cfg.Quota.AlertThreshold = 0.8

	return NewUsageService(cfg, db, observability.NewLogger(nil), m), mock, cleanup
}

func TestUsageService_RecordUsageUpserts(t *testing.T) {
	service, mock, cleanup := newTestUsageService(t, nil)
	defer cleanup()

	mock.ExpectExec("INSERT INTO daily_usage").
		WithArgs(42, 120, 80, 200).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := service.RecordUsage(context.Background(), 42, models.TokenUsage{
		PromptTokens: 120, CompletionTokens: 80, TotalTokens: 200,
	})
	require.NoError(t, err)
}

func TestUsageService_RecordUsageSkipsZeroTokens(t *testing.T) {
	service, _, cleanup := newTestUsageService(t, nil)
	defer cleanup()

	require.NoError(t, service.RecordUsage(context.Background(), 42, models.TokenUsage{}))
}

func TestUsageService_RecordUsageExecError(t *testing.T) {
	service, mock, cleanup := newTestUsageService(t, nil)
	defer cleanup()

	mock.ExpectExec("INSERT INTO daily_usage").
		WithArgs(42, 1, 1, 2).
		WillReturnError(errors.New("db down"))

	err := service.RecordUsage(context.Background(), 42, models.TokenUsage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upsert daily usage")
}

func TestUsageService_RecordUsageSendsThresholdAlertOnce(t *testing.T) {
	m := &recordingMailer{enabled: true}
	service, mock, cleanup := newTestUsageService(t, m)
	defer cleanup()

	mock.ExpectExec("INSERT INTO daily_usage").
		WithArgs(42, 0, 0, 900).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT prompt_tokens, completion_tokens, total_tokens").
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{"prompt_tokens", "completion_tokens", "total_tokens"}).
			AddRow(0, 0, 900))
	// The email address lookup happens only for the first crossing.
	mock.ExpectQuery("SELECT email FROM users").
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("user@example.com"))
	mock.ExpectExec("INSERT INTO daily_usage").
		WithArgs(42, 0, 0, 900).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT prompt_tokens, completion_tokens, total_tokens").
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{"prompt_tokens", "completion_tokens", "total_tokens"}).
			AddRow(0, 0, 1800))

	usage := models.TokenUsage{TotalTokens: 900}
	require.NoError(t, service.RecordUsage(context.Background(), 42, usage))
	require.NoError(t, service.RecordUsage(context.Background(), 42, usage))

	assert.Equal(t, []string{"user@example.com"}, m.recipients())
}

func TestUsageService_RecordUsageBelowThresholdNoAlert(t *testing.T) {
	m := &recordingMailer{enabled: true}
	service, mock, cleanup := newTestUsageService(t, m)
	defer cleanup()

	mock.ExpectExec("INSERT INTO daily_usage").
		WithArgs(42, 0, 0, 100).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT prompt_tokens, completion_tokens, total_tokens").
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{"prompt_tokens", "completion_tokens", "total_tokens"}).
			AddRow(0, 0, 100))

	require.NoError(t, service.RecordUsage(context.Background(), 42, models.TokenUsage{TotalTokens: 100}))
	assert.Empty(t, m.recipients())
}

func TestUsageService_ConcurrentRecordUsageSendsOneAlert(t *testing.T) {
	m := &recordingMailer{enabled: true}
	service, mock, cleanup := newTestUsageService(t, m)
	defer cleanup()

	// The writing FULL path records usage from two goroutines at once;
	// run more than that to shake out unsynchronized alert bookkeeping
	// under -race.
	const workers = 8
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < workers; i++ {
		mock.ExpectExec("INSERT INTO daily_usage").
			WithArgs(42, 0, 0, 900).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT prompt_tokens, completion_tokens, total_tokens").
			WithArgs(42).
			WillReturnRows(sqlmock.NewRows([]string{"prompt_tokens", "completion_tokens", "total_tokens"}).
				AddRow(0, 0, 900))
	}
	mock.ExpectQuery("SELECT email FROM users").
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("user@example.com"))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, service.RecordUsage(context.Background(), 42, models.TokenUsage{TotalTokens: 900}))
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"user@example.com"}, m.recipients())
}

func TestUsageService_ForceToCeiling(t *testing.T) {
	service, mock, cleanup := newTestUsageService(t, nil)
	defer cleanup()

	mock.ExpectExec("INSERT INTO daily_usage").
		WithArgs(42, 1000).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, service.ForceToCeiling(context.Background(), 42))
}

func TestUsageService_GetTodayUsageNoRowIsZero(t *testing.T) {
	service, mock, cleanup := newTestUsageService(t, nil)
	defer cleanup()

	mock.ExpectQuery("SELECT prompt_tokens, completion_tokens, total_tokens").
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{"prompt_tokens", "completion_tokens", "total_tokens"}))

	usage, err := service.GetTodayUsage(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 42, usage.UserID)
	assert.Zero(t, usage.TotalTokens)
	assert.Equal(t, 1000, usage.Ceiling)
}

func TestUsageService_GetTodayUsageReadsCounter(t *testing.T) {
	service, mock, cleanup := newTestUsageService(t, nil)
	defer cleanup()

	mock.ExpectQuery("SELECT prompt_tokens, completion_tokens, total_tokens").
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{"prompt_tokens", "completion_tokens", "total_tokens"}).
			AddRow(300, 200, 500))

	usage, err := service.GetTodayUsage(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 500, usage.TotalTokens)
	assert.Equal(t, 300, usage.PromptTokens)
}

func TestUsageService_ResetToday(t *testing.T) {
	service, mock, cleanup := newTestUsageService(t, nil)
	defer cleanup()

	mock.ExpectExec("DELETE FROM daily_usage").
		WithArgs(42).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, service.ResetToday(context.Background(), 42))
}
