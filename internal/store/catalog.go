package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"shop-assistant/internal/common/errors"
	"shop-assistant/internal/common/logger"
	"shop-assistant/internal/models"
)

// CatalogStore resolves spoken product names to catalog metadata. The ladder
// is exact name, then alias, then Elasticsearch fuzzy match, then a SQL
// containment scan. A miss is (nil, nil), not an error.
type CatalogStore struct {
	db       *sql.DB
	esClient *elasticsearch.Client
	esIndex  string
	logger   logger.Logger
}

// NewCatalogStore builds the catalog resolver. esClient may be nil, which
// skips the fuzzy step.
func NewCatalogStore(db *sql.DB, esClient *elasticsearch.Client, esIndex string, log logger.Logger) *CatalogStore {
	return &CatalogStore{db: db, esClient: esClient, esIndex: esIndex, logger: log}
}

func (s *CatalogStore) Resolve(ctx context.Context, name string) (*models.ProductInfo, error) {
	if name == "" {
		return nil, nil
	}

	info, err := s.byExactName(ctx, name)
	if err != nil {
		return nil, errors.NewCatalogLookupFailedError(name, err)
	}
	if info != nil {
		return info, nil
	}

	info, err = s.byAlias(ctx, name)
	if err != nil {
		return nil, errors.NewCatalogLookupFailedError(name, err)
	}
	if info != nil {
		return info, nil
	}

	if s.esClient != nil {
		info = s.byFuzzyMatch(ctx, name)
		if info != nil {
			return info, nil
		}
	}

	info, err = s.byContainment(ctx, name)
	if err != nil {
		return nil, errors.NewCatalogLookupFailedError(name, err)
	}
	return info, nil
}

func (s *CatalogStore) byExactName(ctx context.Context, name string) (*models.ProductInfo, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, name, base_cost, category
		FROM products
		WHERE name = $1`, name))
}

func (s *CatalogStore) byAlias(ctx context.Context, name string) (*models.ProductInfo, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT p.id, p.name, p.base_cost, p.category
		FROM products p
		JOIN product_aliases a ON a.product_id = p.id
		WHERE a.alias = $1
		LIMIT 1`, name))
}

// byContainment matches when the spoken name contains a catalog name or vice
// versa, preferring the longest catalog name.
func (s *CatalogStore) byContainment(ctx context.Context, name string) (*models.ProductInfo, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, name, base_cost, category
		FROM products
		WHERE $1 LIKE '%' || name || '%' OR name LIKE '%' || $1 || '%'
		ORDER BY length(name) DESC
		LIMIT 1`, name))
}

func (s *CatalogStore) scanOne(row *sql.Row) (*models.ProductInfo, error) {
	var info models.ProductInfo
	err := row.Scan(&info.ID, &info.Name, &info.BaseCost, &info.Category)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// byFuzzyMatch asks Elasticsearch for the closest catalog name and re-resolves
// it exactly. ES failures are absorbed; the SQL fallback still runs.
func (s *CatalogStore) byFuzzyMatch(ctx context.Context, name string) *models.ProductInfo {
	queryBody := map[string]interface{}{
		"query": map[string]interface{}{
			"match": map[string]interface{}{
				"name": map[string]interface{}{
					"query":     name,
					"fuzziness": "AUTO",
				},
			},
		},
		"size": 1,
	}

	body, _ := json.Marshal(queryBody)
	req := esapi.SearchRequest{
		Index: []string{s.esIndex},
		Body:  strings.NewReader(string(body)),
	}

	res, err := req.Do(ctx, s.esClient)
	if err != nil {
		s.logger.Warn("fuzzy catalog search failed", map[string]interface{}{
			"name":  name,
			"error": err.Error(),
		})
		return nil
	}
	defer res.Body.Close()

	if res.IsError() {
		s.logger.Warn("fuzzy catalog search failed", map[string]interface{}{
			"name":   name,
			"status": res.StatusCode,
		})
		return nil
	}

	var r struct {
		Hits struct {
			Hits []struct {
				Source struct {
					Name string `json:"name"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil
	}
	if len(r.Hits.Hits) == 0 {
		return nil
	}

	canonical := r.Hits.Hits[0].Source.Name
	if canonical == "" || canonical == name {
		return nil
	}

	info, err := s.byExactName(ctx, canonical)
	if err != nil {
		s.logger.Warn("fuzzy candidate resolve failed", map[string]interface{}{
			"name":      name,
			"candidate": canonical,
			"error":     err.Error(),
		})
		return nil
	}
	if info != nil {
		s.logger.Debug("fuzzy catalog match", map[string]interface{}{
			"spoken":    name,
			"canonical": canonical,
		})
	}
	return info
}
