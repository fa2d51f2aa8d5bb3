package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bazelment/quill/history"
)

// HTTPClient implements Client against the agent service's REST API.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPDoer replaces the underlying http.Client, mainly for tests.
func WithHTTPDoer(c *http.Client) HTTPOption {
	return func(h *HTTPClient) { h.http = c }
}

// NewHTTPClient creates a REST client for the given server.
func NewHTTPClient(baseURL, token string, opts ...HTTPOption) *HTTPClient {
	h := &HTTPClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// do executes one request and hands back the response body. 404 and 422
// map to NotFoundError; other non-2xx statuses to StatusError.
func (h *HTTPClient) do(ctx context.Context, method, path, resource, id string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, &NotFoundError{Resource: resource, ID: id, Status: resp.StatusCode}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{Status: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

func (h *HTTPClient) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	body, err := h.do(ctx, http.MethodGet, "/v1/conversations/"+url.PathEscape(conversationID), "conversation", conversationID, nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		ID                  string   `json:"id"`
		InContextMessageIDs []string `json:"in_context_message_ids"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	return &Conversation{ID: payload.ID, InContextMessageIDs: payload.InContextMessageIDs}, nil
}

func (h *HTTPClient) GetAgentContext(ctx context.Context, agentID string) (*AgentContext, error) {
	body, err := h.do(ctx, http.MethodGet, "/v1/agents/"+url.PathEscape(agentID)+"/context", "agent", agentID, nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		InContextMessageIDs []string `json:"in_context_message_ids"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode agent context: %w", err)
	}
	return &AgentContext{AgentID: agentID, InContextMessageIDs: payload.InContextMessageIDs}, nil
}

func (h *HTTPClient) RetrieveMessage(ctx context.Context, agentID, messageID string) ([]history.Message, error) {
	path := "/v1/agents/" + url.PathEscape(agentID) + "/messages/" + url.PathEscape(messageID)
	body, err := h.do(ctx, http.MethodGet, path, "message", messageID, nil)
	if err != nil {
		return nil, err
	}
	msgs, err := decodeStoredMessages(body)
	if err != nil {
		return nil, fmt.Errorf("decode message variants: %w", err)
	}
	return msgs, nil
}

func (h *HTTPClient) ListMessagesBefore(ctx context.Context, agentID, conversationID, before string, limit int) ([]history.Message, error) {
	q := url.Values{}
	q.Set("order", "desc")
	q.Set("limit", strconv.Itoa(limit))
	if conversationID != "" {
		q.Set("conversation_id", conversationID)
	}
	if before != "" {
		q.Set("before", before)
	}
	path := "/v1/agents/" + url.PathEscape(agentID) + "/messages?" + q.Encode()
	body, err := h.do(ctx, http.MethodGet, path, "agent", agentID, nil)
	if err != nil {
		return nil, err
	}
	msgs, err := decodeStoredMessages(body)
	if err != nil {
		return nil, fmt.Errorf("decode message page: %w", err)
	}
	return msgs, nil
}

func (h *HTTPClient) SendMessage(ctx context.Context, agentID, conversationID, text string) (*SendResult, error) {
	payload := map[string]any{
		"messages": []map[string]string{{"role": "user", "content": text}},
	}
	if conversationID != "" {
		payload["conversation_id"] = conversationID
	}
	body, err := h.do(ctx, http.MethodPost, "/v1/agents/"+url.PathEscape(agentID)+"/messages", "agent", agentID, payload)
	if err != nil {
		return nil, err
	}
	var resp struct {
		RunID string `json:"run_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode send response: %w", err)
	}
	return &SendResult{RunID: resp.RunID}, nil
}
