package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/runcoach/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTokens(t *testing.T, tokens Tokens) *TokenStore {
	t.Helper()
	store := NewTokenStore(filepath.Join(t.TempDir(), "strava_tokens.json"))
	require.NoError(t, store.Save(tokens))
	return store
}

func TestAccessTokenRequiresClientCredentials(t *testing.T) {
	store := writeTokens(t, Tokens{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour).Unix()})
	c := NewClient(Config{ClientID: "123"}, store, nil, quietLogger())

	_, err := c.AccessToken(context.Background())
	require.ErrorIs(t, err, domain.ErrAuthentication)
}

func TestAccessTokenMissingFile(t *testing.T) {
	store := NewTokenStore(filepath.Join(t.TempDir(), "absent.json"))
	c := NewClient(Config{ClientID: "1", ClientSecret: "s"}, store, nil, quietLogger())

	_, err := c.AccessToken(context.Background())
	require.ErrorIs(t, err, domain.ErrAuthentication)
}

func TestAccessTokenValidIsReturnedWithoutRefresh(t *testing.T) {
	var refreshes atomic.Int32
	oauth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		refreshes.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer oauth.Close()

	store := writeTokens(t, Tokens{AccessToken: "still-good", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour).Unix()})
	c := NewClient(Config{OAuthURL: oauth.URL, ClientID: "1", ClientSecret: "s"}, store, nil, quietLogger())

	token, err := c.AccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "still-good", token)
	require.Zero(t, refreshes.Load())
}

func TestAccessTokenRefreshesAndPersists(t *testing.T) {
	newExpiry := time.Now().Add(6 * time.Hour).Unix()
	oauth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		require.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))
		require.Equal(t, "42", r.PostForm.Get("client_id"))
		require.Equal(t, "shh", r.PostForm.Get("client_secret"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token_type":    "Bearer",
			"access_token":  "fresh-access",
			"refresh_token": "fresh-refresh",
			"expires_at":    newExpiry,
		})
	}))
	defer oauth.Close()

	store := writeTokens(t, Tokens{AccessToken: "stale", RefreshToken: "old-refresh", ExpiresAt: time.Now().Add(-time.Minute).Unix()})
	c := NewClient(Config{OAuthURL: oauth.URL, ClientID: "42", ClientSecret: "shh"}, store, nil, quietLogger())

	token, err := c.AccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fresh-access", token)

	saved, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, Tokens{AccessToken: "fresh-access", RefreshToken: "fresh-refresh", ExpiresAt: newExpiry}, saved)
}

func TestAccessTokenRefreshRejected(t *testing.T) {
	oauth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"Bad Request"}`, http.StatusBadRequest)
	}))
	defer oauth.Close()

	store := writeTokens(t, Tokens{AccessToken: "stale", RefreshToken: "r", ExpiresAt: 1})
	c := NewClient(Config{OAuthURL: oauth.URL, ClientID: "1", ClientSecret: "s"}, store, nil, quietLogger())

	_, err := c.AccessToken(context.Background())
	require.ErrorIs(t, err, domain.ErrAuthentication)
}

func TestFetchActivitiesPaginatesAndMaps(t *testing.T) {
	const total = 5
	var pages []int
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/athlete/activities", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		pages = append(pages, page)

		var batch []map[string]any
		for i := (page - 1) * perPage; i < page*perPage && i < total; i++ {
			batch = append(batch, map[string]any{
				"id":           int64(1000 + i),
				"name":         fmt.Sprintf("Run %d", i),
				"type":         "Run",
				"distance":     5000.0,
				"moving_time":  1500,
				"elapsed_time": 1560,
				"start_date":   "2024-03-03T07:30:00Z",
				"kilojoules":   410.5,
				"kudos_count":  3,
			})
		}
		if batch == nil {
			batch = []map[string]any{}
		}
		_ = json.NewEncoder(w).Encode(batch)
	}))
	defer api.Close()

	store := writeTokens(t, Tokens{AccessToken: "tok", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour).Unix()})
	c := NewClient(Config{APIURL: api.URL + "/", ClientID: "1", ClientSecret: "s", ActivityLimit: 2}, store, api.Client(), quietLogger())

	records, err := c.FetchActivities(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, []int{1}, pages)

	c.cfg.ActivityLimit = 10
	pages = nil
	records, err = c.FetchActivities(context.Background())
	require.NoError(t, err)
	require.Len(t, records, total)
	require.Equal(t, []int{1}, pages, "short page ends pagination")

	first := records[0]
	require.Equal(t, int64(1000), first.ID)
	require.Equal(t, domain.ActivityTypeRun, first.Type)
	require.True(t, time.Date(2024, 3, 3, 7, 30, 0, 0, time.UTC).Equal(first.StartDate))
	require.NotNil(t, first.Calories)
	require.InDelta(t, 410.5, *first.Calories, 1e-9)
	require.Nil(t, first.AverageHeartrate)
}

func TestFetchActivitiesUnauthorized(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer api.Close()

	store := writeTokens(t, Tokens{AccessToken: "tok", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour).Unix()})
	c := NewClient(Config{APIURL: api.URL, ClientID: "1", ClientSecret: "s"}, store, nil, quietLogger())

	_, err := c.FetchActivities(context.Background())
	require.ErrorIs(t, err, domain.ErrAuthentication)
}

func TestFetchActivitiesRefreshesExpiredTokenFirst(t *testing.T) {
	oauth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token_type":    "Bearer",
			"access_token":  "fresh-access",
			"refresh_token": "fresh-refresh",
			"expires_in":    21600,
		})
	}))
	defer oauth.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer fresh-access", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer api.Close()

	store := writeTokens(t, Tokens{AccessToken: "stale", RefreshToken: "old", ExpiresAt: time.Now().Add(-time.Hour).Unix()})
	c := NewClient(Config{APIURL: api.URL, OAuthURL: oauth.URL, ClientID: "1", ClientSecret: "s"}, store, nil, quietLogger())

	records, err := c.FetchActivities(context.Background())
	require.NoError(t, err)
	require.Empty(t, records)

	saved, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "fresh-refresh", saved.RefreshToken)
	require.InDelta(t, time.Now().Add(6*time.Hour).Unix(), saved.ExpiresAt, 60)
}
