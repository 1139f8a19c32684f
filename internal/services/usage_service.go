package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"ieltsprep/internal/config"
	"ieltsprep/internal/models"
	"ieltsprep/internal/observability"
	"ieltsprep/internal/services/mailer"
	contextutils "ieltsprep/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// UsageServiceInterface is the per-user daily token-quota tracker.
type UsageServiceInterface interface {
	// RecordUsage upserts today's counter for the user.
	RecordUsage(ctx context.Context, userID int, usage models.TokenUsage) error
	// ForceToCeiling sets today's counter to the daily ceiling. Called when
	// the provider reports 429, so advisory checks reflect reality
	// immediately instead of waiting for the next call's usage metadata.
	ForceToCeiling(ctx context.Context, userID int) error
	// GetTodayUsage returns today's counter for the user.
	GetTodayUsage(ctx context.Context, userID int) (*models.DailyUsage, error)
}

// UsageService tracks per-user daily token usage. Enforcement is advisory:
// the tracker never blocks a generation mid-flight, and concurrent upserts
// from the same user tolerate a benign double-count rather than paying for
// a transaction.
type UsageService struct {
	config *config.Config
	db     *sql.DB
	logger *observability.Logger
	mailer mailer.Mailer

	// alerted remembers which user+day pairs already got a threshold
	// email, so retried requests do not spam. Best-effort only; a restart
	// may re-send one email. Guarded by alertedMu: RecordUsage runs on
	// request goroutines, two of them at once for a writing FULL test.
	alertedMu sync.Mutex
	alerted   map[string]bool
}

// NewUsageService creates a usage tracker. mailer may be nil to disable
// threshold alerts.
func NewUsageService(cfg *config.Config, db *sql.DB, logger *observability.Logger, m mailer.Mailer) *UsageService {
	return &UsageService{
		config:  cfg,
		db:      db,
		logger:  logger,
		mailer:  m,
		alerted: make(map[string]bool),
	}
}

// RecordUsage upserts today's token counter for the user.
func (s *UsageService) RecordUsage(ctx context.Context, userID int, usage models.TokenUsage) (err error) {
	ctx, span := observability.TraceUsageFunction(ctx, "record_usage",
		attribute.Int("user.id", userID),
		attribute.Int("usage.total_tokens", usage.TotalTokens),
	)
	defer observability.FinishSpan(span, &err)

	if usage.TotalTokens <= 0 {
		return nil
	}

	query := `
		INSERT INTO daily_usage (user_id, usage_date, prompt_tokens, completion_tokens, total_tokens, updated_at)
		VALUES ($1, CURRENT_DATE, $2, $3, $4, NOW())
		ON CONFLICT (user_id, usage_date)
		DO UPDATE SET
			prompt_tokens = daily_usage.prompt_tokens + EXCLUDED.prompt_tokens,
			completion_tokens = daily_usage.completion_tokens + EXCLUDED.completion_tokens,
			total_tokens = daily_usage.total_tokens + EXCLUDED.total_tokens,
			updated_at = NOW()`
	if _, err := s.db.ExecContext(ctx, query, userID, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens); err != nil {
		return contextutils.WrapError(err, "failed to upsert daily usage")
	}

	s.maybeSendThresholdAlert(ctx, userID)
	return nil
}

// ForceToCeiling pins today's counter at the daily ceiling.
func (s *UsageService) ForceToCeiling(ctx context.Context, userID int) (err error) {
	ctx, span := observability.TraceUsageFunction(ctx, "force_to_ceiling",
		attribute.Int("user.id", userID),
	)
	defer observability.FinishSpan(span, &err)

	ceiling := s.config.Quota.DailyTokenCeiling
	query := `
		INSERT INTO daily_usage (user_id, usage_date, prompt_tokens, completion_tokens, total_tokens, updated_at)
		VALUES ($1, CURRENT_DATE, 0, 0, $2, NOW())
		ON CONFLICT (user_id, usage_date)
		DO UPDATE SET total_tokens = GREATEST(daily_usage.total_tokens, EXCLUDED.total_tokens), updated_at = NOW()`
	if _, err := s.db.ExecContext(ctx, query, userID, ceiling); err != nil {
		return contextutils.WrapError(err, "failed to pin daily usage to ceiling")
	}

	s.logger.Info(ctx, "Daily usage pinned to ceiling after provider 429", map[string]interface{}{
		"user_id": userID,
		"ceiling": ceiling,
	})
	return nil
}

// GetTodayUsage returns today's counter, zero-valued when no row exists.
func (s *UsageService) GetTodayUsage(ctx context.Context, userID int) (result0 *models.DailyUsage, err error) {
	ctx, span := observability.TraceUsageFunction(ctx, "get_today_usage",
		attribute.Int("user.id", userID),
	)
	defer observability.FinishSpan(span, &err)

	usage := &models.DailyUsage{
		UserID:    userID,
		UsageDate: time.Now().UTC().Truncate(24 * time.Hour),
		Ceiling:   s.config.Quota.DailyTokenCeiling,
	}
	query := `
		SELECT prompt_tokens, completion_tokens, total_tokens
		FROM daily_usage
		WHERE user_id = $1 AND usage_date = CURRENT_DATE`
	err = s.db.QueryRowContext(ctx, query, userID).Scan(&usage.PromptTokens, &usage.CompletionTokens, &usage.TotalTokens)
	if err == sql.ErrNoRows {
		return usage, nil
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to read daily usage")
	}
	return usage, nil
}

// ResetToday deletes today's counter for the user. Used by the admin CLI
// only, so it lives on the concrete type rather than the interface.
func (s *UsageService) ResetToday(ctx context.Context, userID int) (err error) {
	ctx, span := observability.TraceUsageFunction(ctx, "reset_today",
		attribute.Int("user.id", userID),
	)
	defer observability.FinishSpan(span, &err)

	if _, err := s.db.ExecContext(ctx, `DELETE FROM daily_usage WHERE user_id = $1 AND usage_date = CURRENT_DATE`, userID); err != nil {
		return contextutils.WrapError(err, "failed to reset daily usage")
	}
	s.alertedMu.Lock()
	delete(s.alerted, alertKey(userID, time.Now().UTC().Truncate(24*time.Hour)))
	s.alertedMu.Unlock()
	return nil
}

// maybeSendThresholdAlert emails the user once per day when their counter
// crosses the configured fraction of the ceiling. Failures are logged and
// swallowed; quota accounting never fails a generation over email.
func (s *UsageService) maybeSendThresholdAlert(ctx context.Context, userID int) {
	if s.mailer == nil || !s.mailer.IsEnabled() || s.config.Quota.AlertThreshold <= 0 {
		return
	}
	usage, err := s.GetTodayUsage(ctx, userID)
	if err != nil {
		s.logger.Warn(ctx, "Threshold check failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if float64(usage.TotalTokens) < float64(usage.Ceiling)*s.config.Quota.AlertThreshold {
		return
	}

	key := alertKey(userID, usage.UsageDate)
	s.alertedMu.Lock()
	already := s.alerted[key]
	if !already {
		s.alerted[key] = true
	}
	s.alertedMu.Unlock()
	if already {
		return
	}

	var email string
	if err := s.db.QueryRowContext(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email); err != nil || email == "" {
		return
	}
	if err := s.mailer.SendEmail(ctx, email, "You are close to your daily generation limit", "quota_alert", map[string]interface{}{
		"TokensUsed": usage.TotalTokens,
		"Ceiling":    usage.Ceiling,
	}); err != nil {
		s.logger.Warn(ctx, "Quota alert email failed", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
}

func alertKey(userID int, date time.Time) string {
	return fmt.Sprintf("%s/%d", date.Format("2006-01-02"), userID)
}
