package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var ErrOrderNotFound = errors.New("order not found")

type Client struct {
	clobURL  string
	gammaURL string
	dataURL  string
	http     *http.Client
	limiter  *rate.Limiter
	creds    Credentials
	log      *zap.Logger
}

func New(clobURL, gammaURL, dataURL string, timeout time.Duration, rps float64, creds Credentials, log *zap.Logger) *Client {
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		clobURL:  strings.TrimRight(clobURL, "/"),
		gammaURL: strings.TrimRight(gammaURL, "/"),
		dataURL:  strings.TrimRight(dataURL, "/"),
		http: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		creds:   creds,
		log:     log,
	}
}

// ResolveMarket looks up a market by slug on the gamma API and extracts
// the two outcome tokens. The first clob token is the "Up" outcome.
func (c *Client) ResolveMarket(ctx context.Context, slug string) (Market, error) {
	endpoint := c.gammaURL + "/markets?slug=" + url.QueryEscape(slug)
	var rows []gammaMarket
	if err := c.getJSON(ctx, endpoint, &rows); err != nil {
		return Market{}, fmt.Errorf("resolve market %s: %w", slug, err)
	}
	if len(rows) == 0 {
		return Market{}, fmt.Errorf("resolve market %s: no match", slug)
	}
	row := rows[0]

	var tokenIDs []string
	if err := json.Unmarshal([]byte(row.ClobTokenIDs), &tokenIDs); err != nil {
		return Market{}, fmt.Errorf("resolve market %s: token ids: %w", slug, err)
	}
	if len(tokenIDs) != 2 {
		return Market{}, fmt.Errorf("resolve market %s: expected 2 tokens, got %d", slug, len(tokenIDs))
	}
	tick, err := row.TickSize.Float64()
	if err != nil || tick <= 0 {
		tick = 0.01
	}
	return Market{
		ConditionID: row.ConditionID,
		Slug:        row.Slug,
		Question:    row.Question,
		UpTokenID:   tokenIDs[0],
		DownTokenID: tokenIDs[1],
		TickSize:    tick,
		NegRisk:     row.NegRisk,
		Active:      row.Active,
		Closed:      row.Closed,
	}, nil
}

func (c *Client) GetBook(ctx context.Context, tokenID string) (Book, error) {
	endpoint := c.clobURL + "/book?token_id=" + url.QueryEscape(tokenID)
	var book Book
	if err := c.getJSON(ctx, endpoint, &book); err != nil {
		return Book{}, fmt.Errorf("get book: %w", err)
	}
	return book, nil
}

// GetBooks fetches order books for several tokens in one batch call.
func (c *Client) GetBooks(ctx context.Context, tokenIDs []string) ([]Book, error) {
	if len(tokenIDs) == 0 {
		return nil, nil
	}
	body := make([]bookRequest, len(tokenIDs))
	for i, id := range tokenIDs {
		body[i] = bookRequest{TokenID: id}
	}
	var books []Book
	if err := c.postJSON(ctx, c.clobURL+"/books", "/books", body, &books, false); err != nil {
		return nil, fmt.Errorf("get books: %w", err)
	}
	return books, nil
}

func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResponse, error) {
	if req.Type == "" {
		req.Type = "GTC"
	}
	var resp OrderResponse
	if err := c.postJSON(ctx, c.clobURL+"/order", "/order", req, &resp, true); err != nil {
		return OrderResponse{}, fmt.Errorf("place order: %w", err)
	}
	if !resp.Success {
		return resp, fmt.Errorf("place order rejected: %s", resp.Error)
	}
	return resp, nil
}

// CancelOrder is idempotent: cancelling an order the exchange no longer
// knows returns ErrOrderNotFound, which callers may treat as done.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	body := map[string]string{"orderID": orderID}
	var resp cancelResponse
	if err := c.deleteJSON(ctx, c.clobURL+"/order", "/order", body, &resp); err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	for _, id := range resp.Canceled {
		if id == orderID {
			return nil
		}
	}
	if reason, ok := resp.NotCanceled[orderID]; ok {
		if strings.Contains(strings.ToLower(reason), "not found") {
			return ErrOrderNotFound
		}
		return fmt.Errorf("cancel order %s: %s", orderID, reason)
	}
	return nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (OrderStatus, error) {
	path := "/data/order/" + orderID
	var status OrderStatus
	if err := c.getAuthJSON(ctx, c.clobURL+path, path, &status); err != nil {
		return OrderStatus{}, fmt.Errorf("get order: %w", err)
	}
	if status.ID == "" {
		return OrderStatus{}, ErrOrderNotFound
	}
	return status, nil
}

// GetPositions returns the account's current positions from the data API.
func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	endpoint := c.dataURL + "/positions?sizeThreshold=0.01&limit=500&user=" + url.QueryEscape(c.creds.Address)
	var positions []Position
	if err := c.getJSON(ctx, endpoint, &positions); err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	return positions, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) getAuthJSON(ctx context.Context, endpoint, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	headers, err := c.creds.authHeaders(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	req.Header = headers
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, endpoint, path string, body, out any, auth bool) error {
	return c.sendJSON(ctx, http.MethodPost, endpoint, path, body, out, auth)
}

func (c *Client) deleteJSON(ctx context.Context, endpoint, path string, body, out any) error {
	return c.sendJSON(ctx, http.MethodDelete, endpoint, path, body, out, true)
}

func (c *Client) sendJSON(ctx context.Context, method, endpoint, path string, body, out any, auth bool) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if auth {
		headers, err := c.creds.authHeaders(method, path, payload)
		if err != nil {
			return err
		}
		req.Header = headers
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return err
	}
	return nil
}
