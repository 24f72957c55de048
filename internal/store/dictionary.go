package store

import (
	"context"
	"database/sql"

	"shop-assistant/internal/common/errors"
	"shop-assistant/internal/common/logger"
	"shop-assistant/internal/nlu/extractor"
)

// DictionaryStore loads the name dictionary the entity extractor matches
// against: product names plus aliases, and partner names.
type DictionaryStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewDictionaryStore(db *sql.DB, log logger.Logger) *DictionaryStore {
	return &DictionaryStore{db: db, logger: log}
}

// LoadNames fetches the current product and partner name sets.
func (s *DictionaryStore) LoadNames(ctx context.Context) (products, partners []extractor.NameEntry, err error) {
	products, err = s.loadProducts(ctx)
	if err != nil {
		return nil, nil, errors.NewDictionaryRefreshError(err)
	}

	partners, err = s.loadPartners(ctx)
	if err != nil {
		return nil, nil, errors.NewDictionaryRefreshError(err)
	}

	s.logger.Debug("dictionary loaded", map[string]interface{}{
		"products": len(products),
		"partners": len(partners),
	})
	return products, partners, nil
}

func (s *DictionaryStore) loadProducts(ctx context.Context) ([]extractor.NameEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, id FROM products
		UNION
		SELECT a.alias, a.product_id FROM product_aliases a`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []extractor.NameEntry
	for rows.Next() {
		var e extractor.NameEntry
		if err := rows.Scan(&e.Name, &e.ID); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *DictionaryStore) loadPartners(ctx context.Context) ([]extractor.NameEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, id, COALESCE(level, '') FROM partners`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []extractor.NameEntry
	for rows.Next() {
		var e extractor.NameEntry
		if err := rows.Scan(&e.Name, &e.ID, &e.Level); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
