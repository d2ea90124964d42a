package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"placement-credit-sync/internal/config"
	"placement-credit-sync/internal/logger"
	"placement-credit-sync/internal/model"
	"placement-credit-sync/pkg/errors"

	"github.com/rs/zerolog"
)

// RecordsClient is the remote surface of the external records system.
type RecordsClient interface {
	InsertScore(ctx context.Context, score model.ExternalScore) error
	QueryScores(ctx context.Context, studentKey int64) ([]model.ExternalScore, error)
}

type Client struct {
	cfg         *config.Config
	httpClient  *http.Client
	authManager *AuthManager
	log         zerolog.Logger
}

func NewClient(cfg *config.Config) *Client {
	httpClient := &http.Client{
		Timeout: cfg.ExternalAPI.Records.Timeout,
	}
	return &Client{
		cfg:         cfg,
		httpClient:  httpClient,
		authManager: NewAuthManager(cfg, httpClient),
		log:         logger.Get(),
	}
}

func (c *Client) InsertScore(ctx context.Context, score model.ExternalScore) error {
	jsonData, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("failed to marshal score: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.scoresURL(), bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}

	c.log.Debug().
		Int64("student_key", score.StudentKey).
		Str("test_code", score.TestCode).
		Str("score", score.Score).
		Msg("Sending score to records system")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewRetryableError(err, "HTTP request failed")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	case http.StatusConflict:
		// Already on record; replaying a delivered score is a no-op.
		c.log.Debug().Int64("student_key", score.StudentKey).Str("test_code", score.TestCode).
			Msg("Score already on record")
		return nil
	default:
		return c.statusError(resp)
	}
}

func (c *Client) QueryScores(ctx context.Context, studentKey int64) ([]model.ExternalScore, error) {
	u := c.scoresURL() + "?" + url.Values{"student_key": {strconv.FormatInt(studentKey, 10)}}.Encode()

	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewRetryableError(err, "HTTP request failed")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return []model.ExternalScore{}, nil
	default:
		return nil, c.statusError(resp)
	}

	var list model.ExternalScoreList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, errors.NewRetryableError(err, "failed to decode scores response")
	}
	if list.Scores == nil {
		list.Scores = []model.ExternalScore{}
	}
	return list.Scores, nil
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if c.authManager.Enabled() {
		token, err := c.authManager.GetToken(ctx)
		if err != nil {
			return nil, errors.NewRetryableError(err, "failed to get auth token")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req, nil
}

func (c *Client) statusError(resp *http.Response) error {
	var body model.ExternalWriteResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		// Token might be expired, retry will refresh it
		c.authManager.Invalidate()
		return errors.NewRetryableError(fmt.Errorf("unauthorized"), "authentication failed")
	case http.StatusTooManyRequests:
		return errors.NewRetryableError(fmt.Errorf("HTTP %d", resp.StatusCode), "rate limited")
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		// Business rule rejection - don't retry
		return fmt.Errorf("%w: HTTP %d %s", errors.ErrScoreRejected, resp.StatusCode, body.Message)
	}

	return errors.NewRetryableError(fmt.Errorf("HTTP %d", resp.StatusCode), "records system error")
}

func (c *Client) scoresURL() string {
	return c.cfg.ExternalAPI.Records.BaseURL + c.cfg.ExternalAPI.Records.ScoresEndpoint
}
