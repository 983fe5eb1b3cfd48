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

	"github.com/cloudzz-dev/cldztalk/internal/client/models"
)

// Client is the thin wrapper over the external REST service. It only knows
// response shapes; all persistence and fan-out lives server-side. Every call
// takes a context and returns the decoded entities or an error — no retries,
// no caching, the stores own failure policy.
type Client struct {
	baseURL string
	http    *http.Client
	token   func() string
}

// New builds a client against baseURL. token supplies the current bearer
// token per request (empty means unauthenticated).
func New(baseURL string, token func() string) *Client {
	if token == nil {
		token = func() string { return "" }
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		token:   token,
	}
}

// dataEnvelope is the server's `{ "data": {...}, "pagination": {...} }` frame.
type dataEnvelope struct {
	Data       json.RawMessage    `json:"data"`
	Pagination *models.Pagination `json:"pagination"`
	Message    string             `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*dataEnvelope, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var env dataEnvelope
	if len(raw) > 0 {
		// Some endpoints answer with a bare status body; tolerate it.
		_ = json.Unmarshal(raw, &env)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Message
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("%s %s: %s", method, path, msg)
	}
	return &env, nil
}

// GetChats fetches the full conversation roster.
func (c *Client) GetChats(ctx context.Context) ([]models.Chat, error) {
	env, err := c.do(ctx, http.MethodGet, "/chats", nil)
	if err != nil {
		return nil, err
	}
	var data struct {
		Chats []models.Chat `json:"chats"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("decode chats: %w", err)
	}
	return data.Chats, nil
}

func (c *Client) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	env, err := c.do(ctx, http.MethodGet, "/chats/"+url.PathEscape(chatID), nil)
	if err != nil {
		return nil, err
	}
	var data struct {
		Chat *models.Chat `json:"chat"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("decode chat: %w", err)
	}
	if data.Chat == nil || data.Chat.ID == "" {
		return nil, fmt.Errorf("chat %s: empty response", chatID)
	}
	return data.Chat, nil
}

// GetMessages fetches one page of history for chatID, oldest first.
func (c *Client) GetMessages(ctx context.Context, chatID string, page, limit int) ([]models.Message, models.Pagination, error) {
	path := fmt.Sprintf("/chats/%s/messages?page=%s&limit=%s",
		url.PathEscape(chatID), strconv.Itoa(page), strconv.Itoa(limit))
	env, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	var data struct {
		Messages []models.Message `json:"messages"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, models.Pagination{}, fmt.Errorf("decode messages: %w", err)
	}
	var pag models.Pagination
	if env.Pagination != nil {
		pag = *env.Pagination
	}
	return data.Messages, pag, nil
}

// MarkMessageRead records a single read receipt server-side.
func (c *Client) MarkMessageRead(ctx context.Context, messageID string) error {
	_, err := c.do(ctx, http.MethodPut, "/messages/"+url.PathEscape(messageID)+"/read", nil)
	return err
}

type CreateChatRequest struct {
	Name    string   `json:"name,omitempty"`
	IsGroup bool     `json:"isGroup"`
	Members []string `json:"members"`
}

func (c *Client) CreateChat(ctx context.Context, req CreateChatRequest) (*models.Chat, error) {
	if len(req.Members) == 0 {
		return nil, fmt.Errorf("create chat: at least one member is required")
	}
	env, err := c.do(ctx, http.MethodPost, "/chats", req)
	if err != nil {
		return nil, err
	}
	var data struct {
		Chat *models.Chat `json:"chat"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("decode created chat: %w", err)
	}
	if data.Chat == nil || data.Chat.ID == "" {
		return nil, fmt.Errorf("create chat: invalid response")
	}
	return data.Chat, nil
}

func (c *Client) GetContacts(ctx context.Context) ([]models.Contact, error) {
	env, err := c.do(ctx, http.MethodGet, "/contacts", nil)
	if err != nil {
		return nil, err
	}
	var data struct {
		Contacts []models.Contact `json:"contacts"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("decode contacts: %w", err)
	}
	return data.Contacts, nil
}

// AddContact registers a contact and returns the direct chat the server
// created for it, when it created one.
func (c *Client) AddContact(ctx context.Context, userID string) (*models.Chat, error) {
	env, err := c.do(ctx, http.MethodPost, "/contacts/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, err
	}
	var data struct {
		Chat *models.Chat `json:"chat"`
	}
	if len(env.Data) > 0 {
		_ = json.Unmarshal(env.Data, &data)
	}
	return data.Chat, nil
}
