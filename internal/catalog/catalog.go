// Package catalog resolves product code suffixes against the stock sheet.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"order-bot/internal/domain"
)

// Column headers of the stock sheet.
const (
	ColCode         = "Код"
	ColExtraCode    = "Товар"
	ColName         = "Наименование"
	ColStock        = "Остаток"
	ColExpiry       = "Срок годности"
	ColPriceNoVAT   = "Цена без НДС"
	ColPriceWithVAT = "Цена с НДС"
)

// Source returns the raw sheet, header row first.
type Source interface {
	Rows(ctx context.Context) ([][]string, error)
}

// Observer receives lookup latency. *metrics.Registry satisfies it.
type Observer interface {
	ObserveCatalogLookup(d time.Duration)
}

// Catalog looks products up by code suffix.
type Catalog struct {
	source   Source
	observer Observer
}

// New creates a Catalog. observer may be nil.
func New(source Source, observer Observer) (*Catalog, error) {
	if source == nil {
		return nil, errors.New("catalog: source must not be nil")
	}
	return &Catalog{source: source, observer: observer}, nil
}

// FindBySuffix returns every product whose code ends with suffix, in sheet
// order. The sheet is read in full on every call.
func (c *Catalog) FindBySuffix(ctx context.Context, suffix string) ([]domain.Product, error) {
	if suffix == "" {
		return nil, errors.New("catalog: suffix must not be empty")
	}
	start := time.Now()
	products, err := c.Products(ctx)
	if c.observer != nil {
		c.observer.ObserveCatalogLookup(time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	var matches []domain.Product
	for _, p := range products {
		if strings.HasSuffix(p.Code, suffix) {
			matches = append(matches, p)
		}
	}
	return matches, nil
}

// Products reads and parses the full sheet.
func (c *Catalog) Products(ctx context.Context) ([]domain.Product, error) {
	rows, err := c.source.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: read source: %w", err)
	}
	return parseRows(rows)
}

func parseRows(rows [][]string) ([]domain.Product, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	idx := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		idx[strings.TrimSpace(h)] = i
	}
	if _, ok := idx[ColCode]; !ok {
		return nil, fmt.Errorf("catalog: header %q not found", ColCode)
	}
	get := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	products := make([]domain.Product, 0, len(rows)-1)
	for _, row := range rows[1:] {
		code := get(row, ColCode)
		if code == "" {
			continue
		}
		products = append(products, domain.Product{
			Code:         code,
			ExtraCode:    get(row, ColExtraCode),
			Name:         get(row, ColName),
			Stock:        get(row, ColStock),
			Expiry:       get(row, ColExpiry),
			PriceNoVAT:   domain.NormalizePrice(get(row, ColPriceNoVAT)),
			PriceWithVAT: domain.NormalizePrice(get(row, ColPriceWithVAT)),
		})
	}
	return products, nil
}
