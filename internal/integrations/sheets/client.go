package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// ValuesAPI is the minimal Sheets values interface required by Client.
type ValuesAPI interface {
	Get(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error)
}

// Client reads one named sheet of a spreadsheet as a grid of strings.
type Client struct {
	api           ValuesAPI
	spreadsheetID string
	sheetName     string
}

// New creates a Client over the given values API.
func New(api ValuesAPI, spreadsheetID, sheetName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("sheets: api must not be nil")
	}
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("sheets: spreadsheet id must not be empty")
	}
	if strings.TrimSpace(sheetName) == "" {
		return nil, errors.New("sheets: sheet name must not be empty")
	}
	return &Client{api: api, spreadsheetID: spreadsheetID, sheetName: sheetName}, nil
}

// NewService builds a read-only Sheets API adapter from service account JSON.
func NewService(ctx context.Context, credentialsJSON []byte) (ValuesAPI, error) {
	if len(credentialsJSON) == 0 {
		return nil, errors.New("sheets: credentials must not be empty")
	}
	svc, err := gsheets.NewService(ctx,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(gsheets.SpreadsheetsReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("sheets: create service: %w", err)
	}
	return &serviceValues{svc: svc}, nil
}

// Rows reads the whole sheet. Every call hits the API; nothing is cached.
func (c *Client) Rows(ctx context.Context) ([][]string, error) {
	raw, err := c.api.Get(ctx, c.spreadsheetID, quoteSheet(c.sheetName))
	if err != nil {
		return nil, fmt.Errorf("sheets: read %q: %w", c.sheetName, err)
	}
	rows := make([][]string, 0, len(raw))
	for _, r := range raw {
		row := make([]string, len(r))
		for i, cell := range r {
			row[i] = cellString(cell)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// quoteSheet turns a sheet title into an A1 range covering the whole sheet.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func cellString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

type serviceValues struct {
	svc *gsheets.Service
}

func (s *serviceValues) Get(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(spreadsheetID, readRange).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}
