// Package sheets はGoogle Sheets APIのクライアント実装。
// 監査ログワーカーが必要とするワークシート操作のみを提供する。
package sheets

import (
	"context"
	"fmt"

	sheetsapi "google.golang.org/api/sheets/v4"
)

// Client はひとつのスプレッドシートを対象とするGoogle Sheetsクライアント。
type Client struct {
	svc           *sheetsapi.Service
	spreadsheetID string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(svc *sheetsapi.Service, spreadsheetID string) *Client {
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
	}
}

// WorksheetID はタイトルに一致するワークシートのシートIDを返す。
// 見つからない場合は found=false を返す。
func (c *Client) WorksheetID(ctx context.Context, title string) (int64, bool, error) {
	resp, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties").
		Context(ctx).
		Do()
	if err != nil {
		return 0, false, fmt.Errorf("スプレッドシートの取得に失敗しました: %w", err)
	}

	for _, sheet := range resp.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == title {
			return sheet.Properties.SheetId, true, nil
		}
	}
	return 0, false, nil
}

// DuplicateWorksheet はテンプレートを複製して新しいワークシートを作成し、そのシートIDを返す。
func (c *Client) DuplicateWorksheet(ctx context.Context, templateTitle, newTitle string) (int64, error) {
	templateID, found, err := c.WorksheetID(ctx, templateTitle)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("テンプレートシート %q が見つかりません", templateTitle)
	}

	req := &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsapi.Request{
			{
				DuplicateSheet: &sheetsapi.DuplicateSheetRequest{
					SourceSheetId: templateID,
					NewSheetName:  newTitle,
					// 先頭に挿入してテンプレートより前に表示する
					InsertSheetIndex: 0,
				},
			},
		},
	}

	resp, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("シート %q の複製に失敗しました: %w", templateTitle, err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].DuplicateSheet == nil || resp.Replies[0].DuplicateSheet.Properties == nil {
		return 0, fmt.Errorf("シート複製のレスポンスが不正です")
	}
	return resp.Replies[0].DuplicateSheet.Properties.SheetId, nil
}

// AppendRow はワークシートの末尾に1行追記する。
func (c *Client) AppendRow(ctx context.Context, title string, values []any) error {
	vr := &sheetsapi.ValueRange{
		Values: [][]any{values},
	}

	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, quoteRange(title, "A1"), vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("シート %q への行追記に失敗しました: %w", title, err)
	}
	return nil
}

// UpdateCell はワークシートの単一セルの値を更新する。
func (c *Client) UpdateCell(ctx context.Context, title, cellRef string, value any) error {
	vr := &sheetsapi.ValueRange{
		Values: [][]any{{value}},
	}

	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, quoteRange(title, cellRef), vr).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("シート %q のセル %s の更新に失敗しました: %w", title, cellRef, err)
	}
	return nil
}

// quoteRange はシート名をシングルクォートで囲んだA1形式のレンジ文字列を組み立てる。
// シート名に空白を含む場合（例: "Jan 2026 Log"）にクォートが必要になる。
func quoteRange(title, cellRef string) string {
	return fmt.Sprintf("'%s'!%s", title, cellRef)
}
