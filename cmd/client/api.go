package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"rendezvous/auth"
	"rendezvous/domain"
	"rendezvous/domain/event"
	"strconv"
	"strings"
	"time"
)

type conversation struct {
	ID           domain.ConversationID `json:"id"`
	Participants [2]domain.UserID      `json:"participants"`
	CreatedAt    time.Time             `json:"createdAt"`
}

type messagesPage struct {
	Messages   []event.MessageNew `json:"messages"`
	NextCursor *string            `json:"nextCursor"`
}

// httpAPI calls the REST side of the server, next to the WebSocket endpoint.
type httpAPI struct {
	base   string
	userID domain.UserID
	token  string
	http   *http.Client
}

func newHTTPAPI(wsURL string, userID domain.UserID, token string) *httpAPI {
	base := strings.TrimSuffix(wsURL, "/ws")
	base = strings.Replace(base, "ws://", "http://", 1)
	base = strings.Replace(base, "wss://", "https://", 1)
	return &httpAPI{base: base, userID: userID, token: token, http: &http.Client{Timeout: 10 * time.Second}}
}

func (a *httpAPI) CreateConversation(ctx context.Context, other domain.UserID) (conversation, error) {
	body, err := json.Marshal(map[string]domain.UserID{"otherUserId": other})
	if err != nil {
		return conversation{}, err
	}
	var out conversation
	err = a.do(ctx, http.MethodPost, "/conversations", bytes.NewReader(body), &out)
	return out, err
}

func (a *httpAPI) Messages(ctx context.Context, id domain.ConversationID, cursor *string) (messagesPage, error) {
	path := "/conversations/" + strconv.FormatInt(int64(id), 10) + "/messages"
	if cursor != nil {
		path += "?cursor=" + url.QueryEscape(*cursor)
	}
	var out messagesPage
	err := a.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (a *httpAPI) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.UserIDHeader, a.userID.String())
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
