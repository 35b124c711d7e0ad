// Package checkr はバックグラウンドチェックプロバイダ（Checkr）との連携を提供する。
// 候補者の検索・作成、招待の検索・作成を行うAPIクライアントと、
// 冪等な招待ワークフローを実行するディスパッチャを含む。
package checkr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// WorkLocation は招待に紐づく勤務地。
type WorkLocation struct {
	State string `json:"state"`
	City  string `json:"city"`
}

// Config はClientの設定パラメータ。
type Config struct {
	// Endpoint はCheckr APIのベースURL。
	Endpoint string
	// APIKey はBasic認証のユーザー名として使用する（パスワードは空）。
	APIKey string
	// Package は招待で使用するスクリーニングパッケージ名。
	Package string
	// PerPage は検索のページサイズ。
	PerPage int
	// WorkLocations は候補者・招待の勤務地リスト。
	WorkLocations []WorkLocation
}

// Client はCheckr APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	cfg        Config
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, cfg Config) *Client {
	if cfg.PerPage <= 0 {
		cfg.PerPage = 100
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		cfg:        cfg,
	}
}

// listResponse はCheckrの一覧系APIの共通レスポンス形式。
type listResponse struct {
	Count int `json:"count"`
	Data  []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// FindCandidate はメールアドレスで既存候補者を検索する。
// 複数一致する場合は最初の1件の識別子を返す。
func (c *Client) FindCandidate(ctx context.Context, email string) (string, bool, error) {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(c.cfg.PerPage))
	q.Set("email", email)

	body, err := c.get(ctx, "/candidates?"+q.Encode())
	if err != nil {
		return "", false, fmt.Errorf("候補者の検索に失敗しました: %w", err)
	}

	var result listResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", false, fmt.Errorf("候補者レスポンスのパースに失敗しました: %w", err)
	}

	if result.Count == 0 || len(result.Data) == 0 {
		return "", false, nil
	}
	return result.Data[0].ID, true, nil
}

// CreateCandidate はメールアドレスと勤務地で新規候補者を作成し、識別子を返す。
func (c *Client) CreateCandidate(ctx context.Context, email string) (string, error) {
	body, err := c.post(ctx, "/candidates", map[string]any{
		"email":          email,
		"work_locations": c.cfg.WorkLocations,
	})
	if err != nil {
		return "", fmt.Errorf("候補者の作成に失敗しました: %w", err)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("候補者作成レスポンスのパースに失敗しました: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("候補者作成レスポンスにidが含まれていません")
	}
	return result.ID, nil
}

// HasInvitation は候補者に既存の招待があるかどうかを返す。
func (c *Client) HasInvitation(ctx context.Context, candidateID string) (bool, error) {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(c.cfg.PerPage))
	q.Set("candidate_id", candidateID)

	body, err := c.get(ctx, "/invitations?"+q.Encode())
	if err != nil {
		return false, fmt.Errorf("招待の検索に失敗しました: %w", err)
	}

	var result listResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return false, fmt.Errorf("招待レスポンスのパースに失敗しました: %w", err)
	}

	return result.Count > 0, nil
}

// CreateInvitation は候補者に設定済みパッケージと勤務地で新規招待を作成する。
func (c *Client) CreateInvitation(ctx context.Context, candidateID string) error {
	_, err := c.post(ctx, "/invitations", map[string]any{
		"candidate_id":   candidateID,
		"package":        c.cfg.Package,
		"work_locations": c.cfg.WorkLocations,
	})
	if err != nil {
		return fmt.Errorf("招待の作成に失敗しました: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+path, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, payload map[string]any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// do はHTTPリクエストを実行し、2xx以外のステータスをエラーとして扱う。
func (c *Client) do(req *http.Request) ([]byte, error) {
	req.SetBasicAuth(c.cfg.APIKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Checkr APIの呼び出しに失敗しました",
			slog.String("method", req.Method),
			slog.String("url", req.URL.Path),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("Checkr APIがエラーステータスを返しました",
			slog.String("method", req.Method),
			slog.String("url", req.URL.Path),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("Checkr APIがステータス %d を返しました", resp.StatusCode)
	}

	return body, nil
}
