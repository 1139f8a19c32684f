package config

import "time"

// Timeout constants
const (
	// HTTP timeouts
	DefaultHTTPTimeout = 60 * time.Second
	// ModelRequestTimeout bounds one text-generation call; long passages with
	// large token budgets can legitimately take minutes.
	ModelRequestTimeout = 3 * time.Minute
	// TTSRequestTimeout bounds one audio-synthesis call.
	TTSRequestTimeout = 4 * time.Minute
	// ImageRequestTimeout bounds the single-attempt image call.
	ImageRequestTimeout = 90 * time.Second
	// StorageUploadTimeout bounds one blob upload.
	StorageUploadTimeout = 30 * time.Second

	// Database timeouts
	DatabaseConnMaxLifetime = 5 * time.Minute

	// Session timeouts
	SessionMaxAge = 7 * 24 * time.Hour
)

// TTS retry policy: up to TTSMaxAttempts sequential attempts, with
// exponential backoff starting at TTSBackoffBase (doubled per attempt),
// retried only on transient (5xx) failures.
const (
	TTSMaxAttempts = 3
	TTSBackoffBase = 2 * time.Second
)

// Listening script sizing: spoken English runs about 150 words per minute;
// scripts are clamped so they stay within TTS capacity.
const (
	SpokenWordsPerMinute = 150
	MinScriptWords       = 100
	MaxScriptWords       = 1200
)

// Session configuration constants
const (
	SessionPath     = "/"
	SessionHTTPOnly = true
	SessionSecure   = false // Set to true in production with HTTPS

	SessionName = "ieltsprep-session"
)

// Security configuration constants
const (
	// Content Security Policy
	DefaultCSP = "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'; img-src 'self' data: https:; media-src 'self' blob: data:;"
)
