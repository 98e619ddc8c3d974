package client

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

	"Amoura/internal/chat"
	"Amoura/internal/model"
)

// readAckTimeout is the hard cap on a read-acknowledgment call. Past
// it the ack is abandoned, not retried: the read state self-heals on
// the next full chat list fetch.
const readAckTimeout = 3 * time.Second

// API is the REST surface of the relay as seen from the device.
type API struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPI creates a REST client. httpClient may be nil.
func NewAPI(baseURL, token string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &API{baseURL: baseURL, token: token, http: httpClient}
}

// Send posts a message. A *chat.Error carries the taxonomy code; the
// INSUFFICIENT_BALANCE case includes the shortfall for the purchase
// prompt.
func (a *API) Send(ctx context.Context, receiverID, text, imageURL string) (*model.Message, error) {
	body := map[string]string{
		"receiverId": receiverID,
		"text":       text,
		"imageUrl":   imageURL,
	}

	var out struct {
		Message model.Message `json:"message"`
	}
	if err := a.do(ctx, http.MethodPost, "/am/api/chats/send", body, &out); err != nil {
		return nil, err
	}
	return &out.Message, nil
}

// ChatList fetches the authoritative thread list.
func (a *API) ChatList(ctx context.Context) ([]model.ChatListEntry, error) {
	var out struct {
		Chats []model.ChatListEntry `json:"chats"`
	}
	if err := a.do(ctx, http.MethodGet, "/am/api/chats", nil, &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

// TotalUnread fetches the app-wide badge value.
func (a *API) TotalUnread(ctx context.Context) (int64, error) {
	var out struct {
		Total int64 `json:"total"`
	}
	if err := a.do(ctx, http.MethodGet, "/am/api/chats/unread-total", nil, &out); err != nil {
		return 0, err
	}
	return out.Total, nil
}

// Conversation fetches one page of the window with a counterpart.
func (a *API) Conversation(ctx context.Context, otherUserID string, page int64) (*model.MessagePage, error) {
	path := "/am/api/chats/" + url.PathEscape(otherUserID) + "/messages?page=" + strconv.FormatInt(page, 10)

	var out model.MessagePage
	if err := a.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkRead acknowledges a conversation. The short timeout is
// deliberate; see readAckTimeout.
func (a *API) MarkRead(ctx context.Context, otherUserID string) error {
	ctx, cancel := context.WithTimeout(ctx, readAckTimeout)
	defer cancel()
	return a.do(ctx, http.MethodPost, "/am/api/chats/"+url.PathEscape(otherUserID)+"/read", nil, nil)
}

// DeleteConversation tombstones the thread for the caller.
func (a *API) DeleteConversation(ctx context.Context, conversationKey string) error {
	return a.do(ctx, http.MethodDelete, "/am/api/chats/by-key/"+url.PathEscape(conversationKey), nil, nil)
}

// Block suppresses delivery with a counterpart.
func (a *API) Block(ctx context.Context, otherUserID, reason string) error {
	body := map[string]string{"reason": reason}
	return a.do(ctx, http.MethodPost, "/am/api/users/"+url.PathEscape(otherUserID)+"/block", body, nil)
}

// Unblock lifts a block the caller placed.
func (a *API) Unblock(ctx context.Context, otherUserID string) error {
	return a.do(ctx, http.MethodDelete, "/am/api/users/"+url.PathEscape(otherUserID)+"/block", nil, nil)
}

// Relationship returns the per-direction block state.
func (a *API) Relationship(ctx context.Context, otherUserID string) (model.Relationship, error) {
	var out model.Relationship
	err := a.do(ctx, http.MethodGet, "/am/api/users/"+url.PathEscape(otherUserID)+"/relationship", nil, &out)
	return out, err
}

func (a *API) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return &chat.Error{Code: chat.CodeTransport, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var wrapper struct {
		Error *chat.Error `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err == nil && wrapper.Error != nil && wrapper.Error.Code != "" {
		return wrapper.Error
	}
	return &chat.Error{
		Code:    chat.CodeTransport,
		Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
	}
}
