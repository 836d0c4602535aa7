// internal/lending/scoring/client.go
// Package scoring pulls a client's credit score from the external scoring
// service. Scores are advisory input for reviewers; a scoring outage never
// blocks a review.
package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lending-workers/internal/common/httpclient"
	"lending-workers/internal/common/logger"
)

type Score struct {
	ClientID string `json:"clientId"`
	Score    int    `json:"score"`
	RiskBand string `json:"riskBand"`
}

type Client struct {
	baseURL string
	apiKey  string
	http    *httpclient.Client
	logger  logger.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, log logger.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    httpclient.NewClient(timeout),
		logger:  log.WithFields(map[string]interface{}{"component": "scoring"}),
	}
}

// GetScore fetches the current score for a client. Callers treat a nil score
// with an error as "score unavailable" and proceed without it.
func (c *Client) GetScore(ctx context.Context, clientID uuid.UUID) (*Score, error) {
	url := fmt.Sprintf("%s/scores/%s", c.baseURL, clientID)
	headers := map[string]string{
		"X-API-Key": c.apiKey,
		"Accept":    "application/json",
	}

	var score Score
	if err := c.http.GetJSON(ctx, url, headers, &score); err != nil {
		c.logger.Warn("score lookup failed", map[string]interface{}{
			"clientId": clientID.String(),
			"error":    err.Error(),
		})
		return nil, err
	}

	return &score, nil
}
