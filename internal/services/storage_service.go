package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ieltsprep/internal/config"
	"ieltsprep/internal/observability"
	contextutils "ieltsprep/internal/utils"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

// StorageService uploads generated exam figures to an S3-compatible bucket
// over its REST API and returns the public object URL.
type StorageService struct {
	httpClient *http.Client
	cfg        *config.Config
	logger     *observability.Logger
}

// NewStorageService creates a storage client with an instrumented transport.
func NewStorageService(cfg *config.Config, logger *observability.Logger) *StorageService {
	return &StorageService{
		httpClient: &http.Client{
			Timeout:   config.StorageUploadTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cfg:    cfg,
		logger: logger,
	}
}

// UploadImage stores the bytes under a random object name and returns the
// public URL.
func (s *StorageService) UploadImage(ctx context.Context, data []byte, mimeType string) (result0 string, err error) {
	ctx, span := observability.TraceStorageFunction(ctx, "upload_image",
		attribute.Int("object.bytes", len(data)),
		attribute.String("object.mime_type", mimeType),
	)
	defer observability.FinishSpan(span, &err)

	if len(data) == 0 {
		return "", contextutils.WrapError(contextutils.ErrInvalidInput, "no image bytes to upload")
	}
	if s.cfg.Storage.Endpoint == "" || s.cfg.Storage.Bucket == "" {
		return "", contextutils.WrapError(contextutils.ErrUploadFailure, "storage is not configured")
	}

	objectName := fmt.Sprintf("figures/%s%s", uuid.NewString(), extensionFor(mimeType))
	url := fmt.Sprintf("%s/object/%s/%s",
		strings.TrimSuffix(s.cfg.Storage.Endpoint, "/"), s.cfg.Storage.Bucket, objectName)

	callCtx, cancel := context.WithTimeout(ctx, config.StorageUploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", contextutils.WrapError(err, "failed to create upload request")
	}
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("Authorization", "Bearer "+s.cfg.Storage.ServiceKey)

	startTime := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrUploadFailure, "upload request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close response body", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", contextutils.WrapErrorf(contextutils.ErrUploadFailure,
			"storage returned status %d: %s", resp.StatusCode, string(body))
	}

	publicURL := fmt.Sprintf("%s/object/public/%s/%s",
		strings.TrimSuffix(s.publicBase(), "/"), s.cfg.Storage.Bucket, objectName)
	s.logger.Debug(ctx, "Image uploaded", map[string]interface{}{
		"object":   objectName,
		"duration": time.Since(startTime).String(),
	})
	return publicURL, nil
}

func (s *StorageService) publicBase() string {
	if s.cfg.Storage.PublicBase != "" {
		return s.cfg.Storage.PublicBase
	}
	return s.cfg.Storage.Endpoint
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}
