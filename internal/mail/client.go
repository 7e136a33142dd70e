// Package mail はResend APIを使ったトランザクションメールの送信を提供する。
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// defaultEndpoint はResendのメール送信APIのエンドポイント。
const defaultEndpoint = "https://api.resend.com/emails"

// ErrNotConfigured はAPIキーまたは送信元アドレスが設定されていないことを示す。
var ErrNotConfigured = errors.New("email service is not configured")

// Message は送信するメールを表す。
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Client はResend APIのクライアント。
type Client struct {
	httpClient *http.Client
	apiKey     string
	from       string
	endpoint   string // テスト用にエンドポイントを差し替え可能
	logger     *slog.Logger
}

// NewClient はClientを生成する。
func NewClient(httpClient *http.Client, apiKey, from string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		apiKey:     apiKey,
		from:       from,
		endpoint:   defaultEndpoint,
		logger:     logger,
	}
}

// Configured はAPIキーと送信元アドレスが設定されているかを返す。
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.from != ""
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Send はメールを1通送信する。
func (c *Client) Send(ctx context.Context, msg Message) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	payload, err := json.Marshal(sendRequest{
		From:    c.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("リクエストJSONの生成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("メールAPIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("メールAPIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("メールAPIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("body", string(body)),
		)
		return fmt.Errorf("メールAPIがステータス %d を返しました", resp.StatusCode)
	}
	return nil
}
