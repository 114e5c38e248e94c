package domain

import "errors"

var (
	ErrInvalidToken   = errors.New("invalid_token")
	ErrTokenExpired   = errors.New("token_expired")
	ErrMissingSecret  = errors.New("session_secret_missing")
	ErrMissingSubject = errors.New("token_subject_missing")
	ErrNoIdentity     = errors.New("unauthenticated")
)
