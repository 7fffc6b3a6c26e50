// Package sheets appends submissions as rows in a connected Google
// spreadsheet.
package sheets

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/znz-systems/formdrop/internal/jsonvalue"
	"github.com/znz-systems/formdrop/internal/models"
	"github.com/znz-systems/formdrop/internal/reqlog"
	"github.com/znz-systems/formdrop/internal/store"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const defaultAPIBase = "https://sheets.googleapis.com"

// ErrNotConnected means the endpoint has no stored Google authorisation.
var ErrNotConnected = errors.New("google sheets is not connected for this endpoint")

// Writer appends rows using each endpoint's stored OAuth tokens, refreshing
// them through Google's token endpoint when they have expired.
type Writer struct {
	conns   store.SheetsConnectionStore
	oauth   *oauth2.Config
	base    *http.Client
	apiBase string
}

// NewWriter creates a Writer. base carries the requests to both the token
// endpoint and the Sheets API.
func NewWriter(conns store.SheetsConnectionStore, clientID, clientSecret string, base *http.Client) *Writer {
	if base == nil {
		base = http.DefaultClient
	}
	return &Writer{
		conns: conns,
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"https://www.googleapis.com/auth/spreadsheets"},
		},
		base:    base,
		apiBase: defaultAPIBase,
	}
}

// AppendRow writes one row built from the endpoint's column mappings.
func (w *Writer) AppendRow(ctx context.Context, ep *models.Endpoint, data jsonvalue.Value) error {
	cfg := ep.GoogleSheets
	if !cfg.Configured() {
		return errors.New("google sheets is not fully configured")
	}

	conn, err := w.conns.GetSheetsConnection(ctx, ep.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotConnected
		}
		return fmt.Errorf("loading sheets connection: %w", err)
	}

	row, err := BuildRow(cfg.ColumnMappings, data)
	if err != nil {
		return err
	}

	stored := &oauth2.Token{
		AccessToken:  conn.AccessToken,
		RefreshToken: conn.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       conn.Expiry,
	}
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, w.base)
	token, err := w.oauth.TokenSource(tokenCtx, stored).Token()
	if err != nil {
		return fmt.Errorf("refresh google token: %w", err)
	}
	if token.AccessToken != stored.AccessToken {
		if err := w.conns.UpdateSheetsTokens(ctx, ep.ID, token.AccessToken, token.RefreshToken, token.Expiry); err != nil {
			reqlog.Logger(ctx).Warn("failed to store refreshed google token", "endpoint_id", ep.ID, "error", err)
		}
	}
	client := oauth2.NewClient(tokenCtx, oauth2.StaticTokenSource(token))

	body, err := json.Marshal(map[string]any{"values": [][]string{row}})
	if err != nil {
		return fmt.Errorf("encode sheets row: %w", err)
	}

	target := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s:append?valueInputOption=USER_ENTERED&insertDataOption=INSERT_ROWS",
		w.apiBase, url.PathEscape(cfg.SpreadsheetID), url.PathEscape(sheetRange(cfg.SheetName)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sheets request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("append sheets row: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("sheets api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// BuildRow places each mapped field's value in its column. Unmapped
// columns between mapped ones are left blank.
func BuildRow(mappings []models.ColumnMapping, data jsonvalue.Value) ([]string, error) {
	width := 0
	indexes := make([]int, len(mappings))
	for i, m := range mappings {
		idx, err := ColumnIndex(m.Column)
		if err != nil {
			return nil, err
		}
		indexes[i] = idx
		if idx+1 > width {
			width = idx + 1
		}
	}

	row := make([]string, width)
	for i, m := range mappings {
		if v, ok := jsonvalue.Lookup(data, m.Field); ok {
			row[indexes[i]] = jsonvalue.Stringify(v)
		}
	}
	return row, nil
}

// ColumnIndex converts a column letter (A, Z, AA) to a zero-based index.
func ColumnIndex(col string) (int, error) {
	col = strings.ToUpper(strings.TrimSpace(col))
	if col == "" || len(col) > 3 {
		return 0, fmt.Errorf("invalid sheet column %q", col)
	}
	n := 0
	for _, r := range col {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("invalid sheet column %q", col)
		}
		n = n*26 + int(r-'A'+1)
	}
	return n - 1, nil
}

func sheetRange(sheet string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'!A1"
}
