package draw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/VishalGohania/excelidraw/internal/models"
)

// RoomClient calls the server's HTTP read endpoints.
type RoomClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRoomClient returns a client for baseURL. A nil httpClient gets a
// 10 second timeout.
func NewRoomClient(baseURL string, httpClient *http.Client) *RoomClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &RoomClient{baseURL: strings.TrimSuffix(baseURL, "/"), httpClient: httpClient}
}

// RoomBySlug returns ErrRoomNotFound for an unknown slug.
func (c *RoomClient) RoomBySlug(ctx context.Context, slug string) (models.Room, error) {
	var out struct {
		Room models.Room `json:"room"`
	}
	if err := c.do(ctx, http.MethodGet, "/room/"+url.PathEscape(slug), "", nil, &out); err != nil {
		return models.Room{}, err
	}
	return out.Room, nil
}

// Chats returns the room history newest first, as the server stores it.
func (c *RoomClient) Chats(ctx context.Context, roomID uint) ([]models.ChatMessage, error) {
	var out struct {
		Messages []models.ChatMessage `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/chats/"+strconv.FormatUint(uint64(roomID), 10), "", nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// CreateRoom creates a room owned by the account behind token.
func (c *RoomClient) CreateRoom(ctx context.Context, token, name string) (models.Room, error) {
	var out struct {
		Room models.Room `json:"room"`
	}
	body := map[string]string{"roomName": name}
	if err := c.do(ctx, http.MethodPost, "/room", token, body, &out); err != nil {
		return models.Room{}, err
	}
	return out.Room, nil
}

func (c *RoomClient) do(ctx context.Context, method, path, token string, in, out any) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, ErrRoomNotFound)
	case resp.StatusCode != http.StatusOK:
		var e struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, e.Message)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}
