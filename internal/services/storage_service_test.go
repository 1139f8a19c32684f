package services

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ieltsprep/internal/config"
	"ieltsprep/internal/observability"
	contextutils "ieltsprep/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(endpoint string) *StorageService {
	cfg := &config.Config{}
	cfg.Storage.Endpoint = endpoint
	cfg.Storage.Bucket = "exam-figures"
	cfg.Storage.PublicBase = "https://cdn.example.com"
	cfg.Storage.ServiceKey = "service-key"
	return NewStorageService(cfg, observability.NewLogger(nil))
}

func TestUploadImage(t *testing.T) {
	var gotPath, gotAuth, gotContentType string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	svc := newTestStorage(server.URL)
	url, err := svc.UploadImage(context.Background(), []byte{0x89, 0x50, 0x4e, 0x47}, "image/png")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(gotPath, "/object/exam-figures/figures/"))
	assert.True(t, strings.HasSuffix(gotPath, ".png"))
	assert.Equal(t, "Bearer service-key", gotAuth)
	assert.Equal(t, "image/png", gotContentType)
	assert.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, gotBody)

	assert.True(t, strings.HasPrefix(url, "https://cdn.example.com/object/public/exam-figures/figures/"))
	assert.True(t, strings.HasSuffix(url, ".png"))
}

func TestUploadImage_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bucket not found", http.StatusNotFound)
	}))
	defer server.Close()

	svc := newTestStorage(server.URL)
	_, err := svc.UploadImage(context.Background(), []byte{0x01}, "image/png")
	require.Error(t, err)
	assert.Equal(t, contextutils.ErrorCodeUploadFailure, contextutils.GetErrorCode(err))
}

func TestUploadImage_EmptyPayload(t *testing.T) {
	svc := newTestStorage("http://unused")
	_, err := svc.UploadImage(context.Background(), nil, "image/png")
	require.Error(t, err)
	assert.Equal(t, contextutils.ErrorCodeInvalidInput, contextutils.GetErrorCode(err))
}

func TestUploadImage_NotConfigured(t *testing.T) {
	cfg := &config.Config{}
	svc := NewStorageService(cfg, observability.NewLogger(nil))
	_, err := svc.UploadImage(context.Background(), []byte{0x01}, "image/png")
	require.Error(t, err)
	assert.Equal(t, contextutils.ErrorCodeUploadFailure, contextutils.GetErrorCode(err))
}
