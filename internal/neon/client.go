// Package neon はNeonCRM APIのクライアントを提供する。
// カスタムフィールドスキーマの取得、会員アカウントのページネーション検索、
// チェックボックスフィールドの更新を含む。
package neon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/decaturmakers/gatekeeper/internal/model"
)

// Option はカスタムフィールドの選択肢1件を表す。
type Option struct {
	Name string
	ID   int
}

// Field はNeonCRMのカスタムフィールド1件を表す。
// チェックボックス型フィールドの場合、Optionsには通常1件のみ選択肢が含まれる。
type Field struct {
	Name    string
	ID      int
	Options map[string]Option
}

// Config はClientの設定パラメータ。
type Config struct {
	// Endpoint はNeonCRM APIのベースURL。
	Endpoint string
	// OrgID はBasic認証のユーザー名として使用する組織ID。
	OrgID string
	// APIKey はBasic認証のパスワードとして使用するAPIキー。
	APIKey string
	// PageSize は検索のページサイズ。
	PageSize int
	// FieldCacheTTL はカスタムフィールドスキーマのキャッシュ保持期間。
	// 0以下の場合はキャッシュしない。
	FieldCacheTTL time.Duration
}

// Client はNeonCRM APIのクライアント。
// カスタムフィールドスキーマは短いTTLでキャッシュする
// （チェックボックス更新のたびに再取得するコストを避けるため）。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	cfg        Config

	fieldMu        sync.Mutex
	cachedFields   map[string]Field
	fieldFetchedAt time.Time
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, cfg Config) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		cfg:        cfg,
	}
}

// CustomFields はAccountカテゴリのカスタムフィールド一覧をフィールド名で索引して返す。
// TTL内の再呼び出しはキャッシュ済みスキーマを返す。
func (c *Client) CustomFields(ctx context.Context) (map[string]Field, error) {
	c.fieldMu.Lock()
	defer c.fieldMu.Unlock()

	if c.cachedFields != nil && c.cfg.FieldCacheTTL > 0 &&
		time.Since(c.fieldFetchedAt) < c.cfg.FieldCacheTTL {
		return c.cachedFields, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"/customFields?category=Account", nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.SetBasicAuth(c.cfg.OrgID, c.cfg.APIKey)

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("カスタムフィールドの取得に失敗しました: %w", err)
	}

	var raw []struct {
		Name         string          `json:"name"`
		ID           json.RawMessage `json:"id"`
		OptionValues []struct {
			Name string          `json:"name"`
			ID   json.RawMessage `json:"id"`
		} `json:"optionValues"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("カスタムフィールドレスポンスのパースに失敗しました: %w", err)
	}

	fields := make(map[string]Field, len(raw))
	for _, f := range raw {
		id, err := parseFlexibleInt(f.ID)
		if err != nil {
			return nil, fmt.Errorf("フィールドIDのパースに失敗しました (%s): %w", f.Name, err)
		}
		options := make(map[string]Option, len(f.OptionValues))
		for _, o := range f.OptionValues {
			oid, err := parseFlexibleInt(o.ID)
			if err != nil {
				return nil, fmt.Errorf("オプションIDのパースに失敗しました (%s/%s): %w", f.Name, o.Name, err)
			}
			options[o.Name] = Option{Name: o.Name, ID: oid}
		}
		fields[f.Name] = Field{Name: f.Name, ID: id, Options: options}
	}

	c.cachedFields = fields
	c.fieldFetchedAt = time.Now()

	return fields, nil
}

// searchRequest はアカウント検索APIのリクエストボディ。
type searchRequest struct {
	OutputFields []any             `json:"outputFields"`
	Pagination   searchPagination  `json:"pagination"`
	SearchFields []searchCondition `json:"searchFields"`
}

type searchPagination struct {
	CurrentPage int `json:"currentPage"`
	PageSize    int `json:"pageSize"`
}

type searchCondition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// baseOutputFields は検索で常に要求する標準フィールド。
var baseOutputFields = []string{
	"Full Name (F)",
	"Email 1",
	"Membership Expiration Date",
	"Account ID",
	"DOB Day",
	"DOB Month",
	"DOB Year",
}

// SearchActiveMembersPage は会員資格の失効日がcutoff以降の個人アカウントを1ページ分検索する。
// 最終ページのインデックスと生レコードのリストを返す。
// カスタムフィールドはfieldIDsで指定したものが結果に（フィールド名をキーとして）含まれる。
func (c *Client) SearchActiveMembersPage(ctx context.Context, cutoff time.Time, fieldIDs []int, page int) (int, []model.Record, error) {
	outputFields := make([]any, 0, len(baseOutputFields)+len(fieldIDs))
	for _, f := range baseOutputFields {
		outputFields = append(outputFields, f)
	}
	for _, id := range fieldIDs {
		outputFields = append(outputFields, id)
	}

	reqBody := searchRequest{
		OutputFields: outputFields,
		Pagination: searchPagination{
			CurrentPage: page,
			PageSize:    c.cfg.PageSize,
		},
		SearchFields: []searchCondition{
			{Field: "Account Type", Operator: "EQUAL", Value: "Individual"},
			{Field: "Membership Expiration Date", Operator: "GREATER_AND_EQUAL", Value: cutoff.Format("2006-01-02")},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("検索リクエストのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+"/accounts/search", bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.SetBasicAuth(c.cfg.OrgID, c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("アカウント検索に失敗しました (page=%d): %w", page, err)
	}

	var result struct {
		SearchResults []map[string]any `json:"searchResults"`
		Pagination    struct {
			TotalPages int `json:"totalPages"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, nil, fmt.Errorf("検索レスポンスのパースに失敗しました: %w", err)
	}

	records := make([]model.Record, 0, len(result.SearchResults))
	for _, raw := range result.SearchResults {
		records = append(records, toRecord(raw))
	}

	lastPage := result.Pagination.TotalPages - 1

	return lastPage, records, nil
}

// SetCheckbox はアカウントのチェックボックス型カスタムフィールドを更新する。
// checked=trueの場合はフィールドの唯一の選択肢を設定し、falseの場合は空にする。
func (c *Client) SetCheckbox(ctx context.Context, accountID, fieldName string, checked bool) error {
	fields, err := c.CustomFields(ctx)
	if err != nil {
		return err
	}
	field, ok := fields[fieldName]
	if !ok {
		return fmt.Errorf("カスタムフィールドが見つかりません: %s", fieldName)
	}

	var optionValues []map[string]any
	value := ""
	if checked {
		// チェックボックスの場合、選択肢は1件のみのはず
		var opt Option
		found := false
		for _, o := range field.Options {
			opt = o
			found = true
			break
		}
		if !found {
			return fmt.Errorf("カスタムフィールドに選択肢がありません: %s", fieldName)
		}
		optionValues = []map[string]any{
			{"id": opt.ID, "name": opt.Name},
		}
		value = opt.Name
	} else {
		optionValues = []map[string]any{}
	}

	payload, err := json.Marshal(map[string]any{
		"individualAccount": map[string]any{
			"accountCustomFields": []map[string]any{
				{
					"id":           field.ID,
					"value":        value,
					"name":         fieldName,
					"optionValues": optionValues,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("更新リクエストのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.cfg.Endpoint+"/accounts/"+accountID, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.SetBasicAuth(c.cfg.OrgID, c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	if _, err := c.do(req); err != nil {
		return fmt.Errorf("アカウントの更新に失敗しました (account_id=%s): %w", accountID, err)
	}

	return nil
}

// do はHTTPリクエストを実行し、2xx以外のステータスをエラーとして扱う。
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("NeonCRM APIの呼び出しに失敗しました",
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
		c.logger.Error("NeonCRM APIがエラーステータスを返しました",
			slog.String("method", req.Method),
			slog.String("url", req.URL.Path),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("NeonCRM APIがステータス %d を返しました", resp.StatusCode)
	}

	return body, nil
}

// toRecord は検索結果1件をRecordに変換する。
// nullや数値もすべて文字列に正規化する（空になるのはnullと空文字列のみ）。
func toRecord(raw map[string]any) model.Record {
	rec := make(model.Record, len(raw))
	for k, v := range raw {
		rec[k] = coerceString(v)
	}
	return rec
}

// coerceString はJSON値を文字列に正規化する。
func coerceString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		// 整数値は小数点なしで表現する
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "true"
		}
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

// parseFlexibleInt は数値または数値文字列のJSON値をintとしてパースする。
// NeonCRMはフィールドIDを文字列で返す場合がある。
func parseFlexibleInt(raw json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("数値としても文字列としてもパースできません: %s", string(raw))
	}
	return strconv.Atoi(s)
}
