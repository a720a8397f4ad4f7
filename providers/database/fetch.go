// Package database sucht Titel und Beschreibungen direkt per SQL.
// Ersatz für den Index, wenn kein SOLR-Core bereitsteht.
package database

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"labshare/models"
	"labshare/providers"
)

// Fetcher durchsucht die Asset-Tabellen mit LIKE.
type Fetcher struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewFetcher erstellt einen neuen Datenbank-Fetcher.
func NewFetcher(db *gorm.DB, logger *zap.Logger) *Fetcher {
	return &Fetcher{DB: db, Logger: logger}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "database"
}

type row struct {
	ID          uint
	Title       string
	Description string
}

// Search bewertet einen Titel-Treffer mit 2 und einen Beschreibungs-Treffer mit 1.
func (f *Fetcher) Search(ctx context.Context, query string, types []string, limit int) ([]providers.Hit, error) {
	term := strings.ToLower(strings.TrimSpace(query))
	if term == "" {
		return nil, nil
	}
	pattern := "%" + term + "%"
	if len(types) == 0 {
		types = []string{models.AssetTypePresentation, models.AssetTypeStrain}
	}

	var hits []providers.Hit
	for _, typ := range types {
		var rows []row
		q := f.DB.WithContext(ctx)
		switch typ {
		case models.AssetTypePresentation:
			q = q.Model(&models.Presentation{}).Select("id, title, description").
				Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
		case models.AssetTypeStrain:
			q = q.Model(&models.Strain{}).Select("id, title, '' AS description").
				Where("LOWER(title) LIKE ?", pattern)
		default:
			f.Logger.Debug("Unsupported search type", zap.String("type", typ))
			continue
		}
		if err := q.Limit(limit).Scan(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			score := 0.0
			if strings.Contains(strings.ToLower(r.Title), term) {
				score += 2
			}
			if strings.Contains(strings.ToLower(r.Description), term) {
				score++
			}
			hits = append(hits, providers.Hit{Type: typ, ID: r.ID, Score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Type != hits[j].Type {
			return hits[i].Type < hits[j].Type
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
