// Package client is a typed HTTP client for the scoring API.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"credit-scorer/internal/common"
	"credit-scorer/internal/features"
	"credit-scorer/internal/ml"
	"credit-scorer/internal/scoring"

	"github.com/go-resty/resty/v2"
)

type Client struct {
	base string
	rest *resty.Client
}

func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(30 * time.Second) // default fallback
	}
	r.SetHeader("Accept", "application/json")
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

type clientReq struct {
	ClientID int64 `json:"client_id"`
}

type errorResp struct {
	Detail string `json:"detail"`
}

// ClientIDs lists every client known to the service.
func (c *Client) ClientIDs(ctx context.Context) ([]int64, error) {
	var out struct {
		ClientIDs []int64 `json:"client_ids"`
	}
	if err := c.get(ctx, "/clients", &out); err != nil {
		return nil, err
	}
	return out.ClientIDs, nil
}

// Predict scores one client.
func (c *Client) Predict(ctx context.Context, id int64) (ml.Prediction, error) {
	var out ml.Prediction
	if err := c.post(ctx, "/predict", id, &out); err != nil {
		return ml.Prediction{}, err
	}
	out.ClientID = id
	return out, nil
}

// ClientData returns the feature row of one client.
func (c *Client) ClientData(ctx context.Context, id int64) (features.Vector, error) {
	return c.postVector(ctx, "/client_data", id)
}

// Explain returns the top attributions of one client's score.
func (c *Client) Explain(ctx context.Context, id int64) (features.Vector, error) {
	return c.postVector(ctx, "/explain", id)
}

// ExplainFull returns every signed attribution of one client's score.
func (c *Client) ExplainFull(ctx context.Context, id int64) (features.Vector, error) {
	return c.postVector(ctx, "/explain_full", id)
}

// Compare returns the client's difference to the high-risk cohort mean.
func (c *Client) Compare(ctx context.Context, id int64) (features.Vector, error) {
	return c.postVector(ctx, "/compare_client_group_class_1", id)
}

// CohortMean returns the high-risk cohort mean profile.
func (c *Client) CohortMean(ctx context.Context) (features.Vector, error) {
	var out features.Vector
	if err := c.get(ctx, "/mean_class_1", &out); err != nil {
		return features.Vector{}, err
	}
	return out, nil
}

// ClassProfile returns the client's top features against both outcome
// classes.
func (c *Client) ClassProfile(ctx context.Context, id int64) (scoring.ClientProfile, error) {
	var out scoring.ClientProfile
	if err := c.post(ctx, "/class_profile", id, &out); err != nil {
		return scoring.ClientProfile{}, err
	}
	return out, nil
}

// Info returns the service description.
func (c *Client) Info(ctx context.Context) (scoring.Info, error) {
	var out scoring.Info
	if err := c.get(ctx, "/model/info", &out); err != nil {
		return scoring.Info{}, err
	}
	return out, nil
}

func (c *Client) postVector(ctx context.Context, path string, id int64) (features.Vector, error) {
	var out features.Vector
	if err := c.post(ctx, path, id, &out); err != nil {
		return features.Vector{}, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(result).
		SetError(&errorResp{}).
		Get(c.base + path)
	return checkResponse(resp, err)
}

func (c *Client) post(ctx context.Context, path string, id int64, result any) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(clientReq{ClientID: id}).
		SetResult(result).
		SetError(&errorResp{}).
		Post(c.base + path)
	if err := checkResponse(resp, err); err != nil {
		return fmt.Errorf("client %d: %w", id, err)
	}
	return nil
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if !resp.IsError() {
		return nil
	}

	detail := resp.String()
	if e, ok := resp.Error().(*errorResp); ok && e.Detail != "" {
		detail = e.Detail
	}

	switch resp.StatusCode() {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", detail, common.ErrNotFound)
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("%s: %w", detail, common.ErrOutcomeUnavailable)
	default:
		return fmt.Errorf("API error: status %d: %s", resp.StatusCode(), detail)
	}
}
