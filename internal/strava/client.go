// Package strava fetches athlete activities from the Strava API using a
// file-backed OAuth token that is refreshed on expiry.
package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"example.com/runcoach/internal/domain"
)

const (
	// DefaultAPIURL is the Strava REST base.
	DefaultAPIURL = "https://www.strava.com/api/v3"
	// DefaultOAuthURL is the token refresh endpoint.
	DefaultOAuthURL = "https://www.strava.com/oauth/token"

	maxPageSize = 200
)

// Config configures a Client.
type Config struct {
	APIURL       string
	OAuthURL     string
	ClientID     string
	ClientSecret string
	// ActivityLimit caps how many recent activities are fetched.
	ActivityLimit int
}

// Client fetches activities for the token owner.
type Client struct {
	cfg    Config
	oauth  oauth2.Config
	store  *TokenStore
	http   *http.Client
	logger *slog.Logger

	mu sync.Mutex
}

// NewClient constructs a Client.
func NewClient(cfg Config, store *TokenStore, httpClient *http.Client, logger *slog.Logger) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.OAuthURL == "" {
		cfg.OAuthURL = DefaultOAuthURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.ActivityLimit <= 0 {
		cfg.ActivityLimit = 100
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg: cfg,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.OAuthURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		store:  store,
		http:   httpClient,
		logger: logger,
	}
}

// AccessToken returns a valid access token, refreshing and persisting it
// when the stored one has expired.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

func (c *Client) token(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: client id or client secret missing", domain.ErrAuthentication)
	}

	stored, err := c.store.Load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: tokens not found, authorize the application first", domain.ErrAuthentication)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrAuthentication, err)
	}

	current := stored.oauth2Token()
	tok, err := c.oauth.TokenSource(c.oauthContext(ctx), current).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, fmt.Errorf("%w: refresh rejected: %w", domain.ErrAuthentication, err)
		}
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	if tok.AccessToken != current.AccessToken {
		refreshed := tokensFrom(tok)
		c.logger.Info("refreshed strava access token", "expired_at", stored.ExpiresAt, "expires_at", refreshed.ExpiresAt)
		if err := c.store.Save(refreshed); err != nil {
			return nil, fmt.Errorf("persist refreshed tokens: %w", err)
		}
	}
	return tok, nil
}

// oauthContext hands the configured HTTP client to the oauth2 package.
func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

type apiActivity struct {
	ID                   int64     `json:"id"`
	Name                 string    `json:"name"`
	Type                 string    `json:"type"`
	Distance             float64   `json:"distance"`
	MovingTime           int       `json:"moving_time"`
	ElapsedTime          int       `json:"elapsed_time"`
	TotalElevationGain   float64   `json:"total_elevation_gain"`
	StartDate            time.Time `json:"start_date"`
	AverageSpeed         float64   `json:"average_speed"`
	MaxSpeed             float64   `json:"max_speed"`
	AverageCadence       *float64  `json:"average_cadence"`
	AverageHeartrate     *float64  `json:"average_heartrate"`
	MaxHeartrate         *float64  `json:"max_heartrate"`
	WeightedAverageWatts *float64  `json:"weighted_average_watts"`
	Kilojoules           *float64  `json:"kilojoules"`
	SufferScore          *float64  `json:"suffer_score"`
	KudosCount           int       `json:"kudos_count"`
}

func (a apiActivity) record() domain.ActivityRecord {
	return domain.ActivityRecord{
		ID:                   a.ID,
		Name:                 a.Name,
		Type:                 a.Type,
		Distance:             a.Distance,
		MovingTime:           a.MovingTime,
		ElapsedTime:          a.ElapsedTime,
		TotalElevationGain:   a.TotalElevationGain,
		StartDate:            a.StartDate.UTC(),
		AverageSpeed:         a.AverageSpeed,
		MaxSpeed:             a.MaxSpeed,
		AverageCadence:       a.AverageCadence,
		AverageHeartrate:     a.AverageHeartrate,
		MaxHeartrate:         a.MaxHeartrate,
		WeightedAverageWatts: a.WeightedAverageWatts,
		Calories:             a.Kilojoules,
		SufferScore:          a.SufferScore,
		KudosCount:           a.KudosCount,
	}
}

// FetchActivities returns the most recent activities, newest first, up to
// the configured limit.
func (c *Client) FetchActivities(ctx context.Context) ([]domain.ActivityRecord, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	api := oauth2.NewClient(c.oauthContext(ctx), oauth2.StaticTokenSource(tok))

	perPage := c.cfg.ActivityLimit
	if perPage > maxPageSize {
		perPage = maxPageSize
	}

	records := make([]domain.ActivityRecord, 0, c.cfg.ActivityLimit)
	for page := 1; len(records) < c.cfg.ActivityLimit; page++ {
		batch, err := c.fetchPage(ctx, api, page, perPage)
		if err != nil {
			return nil, err
		}
		for _, a := range batch {
			if len(records) == c.cfg.ActivityLimit {
				break
			}
			records = append(records, a.record())
		}
		if len(batch) < perPage {
			break
		}
	}

	c.logger.Debug("fetched strava activities", "count", len(records))
	return records, nil
}

func (c *Client) fetchPage(ctx context.Context, api *http.Client, page, perPage int) ([]apiActivity, error) {
	q := url.Values{
		"page":     {strconv.Itoa(page)},
		"per_page": {strconv.Itoa(perPage)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIURL+"/athlete/activities?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := api.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch activities: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: activities request rejected", domain.ErrAuthentication)
	case resp.StatusCode != http.StatusOK:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("fetch activities: %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var batch []apiActivity
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, fmt.Errorf("decode activities: %w", err)
	}
	return batch, nil
}
