package strava

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

// Tokens is the persisted OAuth state. ExpiresAt is a Unix timestamp in
// seconds.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

func (t Tokens) oauth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       time.Unix(t.ExpiresAt, 0),
	}
}

// tokensFrom converts a refreshed token for storage. Strava reports an
// absolute expires_at next to expires_in; it is preferred when present.
func tokensFrom(tok *oauth2.Token) Tokens {
	out := Tokens{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if !tok.Expiry.IsZero() {
		out.ExpiresAt = tok.Expiry.Unix()
	}
	switch v := tok.Extra("expires_at").(type) {
	case float64:
		out.ExpiresAt = int64(v)
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			out.ExpiresAt = n
		}
	}
	return out
}

// TokenStore reads and writes Tokens as a JSON file.
type TokenStore struct {
	path string
}

// NewTokenStore constructs a store for path.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Load returns the stored tokens. A missing file yields os.ErrNotExist.
func (s *TokenStore) Load() (Tokens, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return Tokens{}, err
	}
	var t Tokens
	if err := json.Unmarshal(raw, &t); err != nil {
		return Tokens{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if t.RefreshToken == "" {
		return Tokens{}, errors.New("token file has no refresh_token")
	}
	return t, nil
}

// Save replaces the token file atomically.
func (s *TokenStore) Save(t Tokens) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
