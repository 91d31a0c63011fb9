package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kirillkom/chapterflow/internal/core/domain"
	"github.com/kirillkom/chapterflow/internal/infrastructure/progress"
)

type apiClient struct {
	base   string
	userID string
	http   *http.Client
}

func newAPIClient(base, userID string, timeout time.Duration) *apiClient {
	return &apiClient{
		base:   base,
		userID: userID,
		http:   &http.Client{Timeout: timeout},
	}
}

type uploadResult struct {
	ID     string                `json:"id"`
	Status domain.DocumentStatus `json:"status"`
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *apiClient) Upload(ctx context.Context, path, title, clientID string) (*uploadResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if title != "" {
		if err := mw.WriteField("title", title); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/documents", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if clientID != "" {
		req.Header.Set("X-Client-Id", clientID)
	}

	var out uploadResult
	if err := c.do(req, http.StatusAccepted, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Document(ctx context.Context, id string) (*domain.Document, error) {
	var out domain.Document
	if err := c.get(ctx, "/v1/documents/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Documents(ctx context.Context) ([]domain.Document, error) {
	var out struct {
		Documents []domain.Document `json:"documents"`
	}
	if err := c.get(ctx, "/v1/documents", &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

func (c *apiClient) Chapters(ctx context.Context, documentID string) ([]domain.ChapterSummary, error) {
	var out struct {
		Chapters []domain.ChapterSummary `json:"chapters"`
	}
	if err := c.get(ctx, "/v1/documents/"+url.PathEscape(documentID)+"/chapters", &out); err != nil {
		return nil, err
	}
	return out.Chapters, nil
}

func (c *apiClient) Chapter(ctx context.Context, id string) (*domain.ChapterContent, error) {
	var out domain.ChapterContent
	if err := c.get(ctx, "/v1/chapters/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, http.StatusOK, out)
}

func (c *apiClient) do(req *http.Request, want int, out any) error {
	if c.userID != "" {
		req.Header.Set("X-User-Id", c.userID)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload)
		return &apiError{Status: resp.StatusCode, Message: payload.Error}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// progressStream is a registered websocket session on the API.
type progressStream struct {
	conn *websocket.Conn
}

// openProgress connects the session and waits for the heartbeat reply, which
// the server only sends once the session is registered.
func (c *apiClient) openProgress(ctx context.Context, clientID string) (*progressStream, error) {
	wsURL, err := websocketURL(c.base, clientID)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connect progress channel: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, reply, err := conn.ReadMessage()
	if err != nil || string(reply) != "pong" {
		conn.Close()
		return nil, fmt.Errorf("progress channel handshake failed: %v", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	return &progressStream{conn: conn}, nil
}

// Next returns the next progress frame, skipping heartbeat replies.
func (s *progressStream) Next() (progress.Message, error) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return progress.Message{}, err
		}
		if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
			continue
		}
		return progress.Decode(data)
	}
}

func (s *progressStream) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}

func websocketURL(base, clientID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/websocket"
	u.RawQuery = url.Values{"clientId": {clientID}}.Encode()
	return u.String(), nil
}
