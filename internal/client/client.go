// Package client talks to the inbox HTTP API on behalf of one session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"inboxsync/internal/domain"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNoSession    = errors.New("no active session")
)

// TokenSource supplies the bearer token attached to each request.
type TokenSource interface {
	Token() string
}

// Error is a non-2xx response from the server.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

type Client struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
}

func New(baseURL string, tokens TokenSource) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) ListSources(ctx context.Context) ([]domain.Source, error) {
	var out struct {
		Sources []domain.Source `json:"sources"`
	}
	if err := c.do(ctx, http.MethodGet, "/sources", nil, &out); err != nil {
		return nil, err
	}
	return out.Sources, nil
}

func (c *Client) CreateSource(ctx context.Context, name string, typ domain.SourceType, token string) (domain.Source, error) {
	body := map[string]string{"name": name, "type": string(typ), "token": token}

	var out struct {
		Source domain.Source `json:"source"`
	}
	if err := c.do(ctx, http.MethodPost, "/sources", body, &out); err != nil {
		return domain.Source{}, err
	}
	return out.Source, nil
}

func (c *Client) ListMessages(ctx context.Context, sourceID string) ([]domain.Message, error) {
	var out struct {
		Messages []domain.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/messages/"+url.PathEscape(sourceID), nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) PostMessage(ctx context.Context, content, sourceID, platform string) (domain.Message, error) {
	body := map[string]string{"content": content, "sourceId": sourceID, "platform": platform}

	var out struct {
		Message domain.Message `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/messages", body, &out); err != nil {
		return domain.Message{}, err
	}
	return out.Message, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	token := c.tokens.Token()
	if token == "" {
		return ErrNoSession
	}

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = data
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return &Error{Status: resp.StatusCode, Message: e.Error}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
