package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"labshare/authorization"
	"labshare/models"
	"labshare/providers"
)

// SearchResult ist ein sichtbarer Treffer in der Reihenfolge des Index.
type SearchResult struct {
	Type  string  `json:"type"`
	Score float64 `json:"score"`
	Item  Asset   `json:"item"`
}

// SearchService fragt den Suchindex ab und filtert die Treffer nach Sichtbarkeit.
type SearchService struct {
	DB       *gorm.DB
	Provider providers.Provider
	Logger   *zap.Logger
	Limit    int
}

// NewSearchService erstellt einen neuen SearchService.
func NewSearchService(db *gorm.DB, provider providers.Provider, logger *zap.Logger, limit int) *SearchService {
	return &SearchService{DB: db, Provider: provider, Logger: logger, Limit: limit}
}

// searchTypes bildet den search_type-Parameter auf Asset-Typen ab.
func searchTypes(searchType string) ([]string, error) {
	switch strings.ToLower(strings.TrimSpace(searchType)) {
	case "", "all":
		return []string{models.AssetTypePresentation, models.AssetTypeStrain}, nil
	case "presentations":
		return []string{models.AssetTypePresentation}, nil
	case "strains":
		return []string{models.AssetTypeStrain}, nil
	default:
		verr := &ValidationError{}
		verr.Add("search_type", fmt.Sprintf("unknown search type %q", searchType))
		return nil, verr
	}
}

// Search liefert die für den Akteur sichtbaren Treffer. Eine leere Anfrage liefert nichts.
func (s *SearchService) Search(ctx context.Context, actor *authorization.Actor, query, searchType string) ([]SearchResult, error) {
	types, err := searchTypes(searchType)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	hits, err := s.Provider.Search(ctx, query, types, s.Limit)
	if err != nil {
		return nil, fmt.Errorf("search provider %s: %w", s.Provider.Name(), err)
	}

	ids := make(map[string][]uint)
	for _, h := range hits {
		ids[h.Type] = append(ids[h.Type], h.ID)
	}
	found := make(map[AssetRef]Asset, len(hits))
	// Jede Abfrage startet von derselben Basis
	db := preloadAsset(s.DB.WithContext(ctx)).Session(&gorm.Session{})
	if len(ids[models.AssetTypePresentation]) > 0 {
		var rows []*models.Presentation
		if err := db.Where("id IN ?", ids[models.AssetTypePresentation]).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			found[refOf(r)] = r
		}
	}
	if len(ids[models.AssetTypeStrain]) > 0 {
		var rows []*models.Strain
		if err := db.Where("id IN ?", ids[models.AssetTypeStrain]).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			found[refOf(r)] = r
		}
	}

	results := make([]SearchResult, 0, len(hits))
	seen := make(map[AssetRef]bool, len(hits))
	for _, h := range hits {
		ref := AssetRef{Type: h.Type, ID: h.ID}
		asset, ok := found[ref]
		if !ok || seen[ref] {
			s.Logger.Debug("Treffer ohne Datensatz übersprungen", zap.String("type", h.Type), zap.Uint("id", h.ID))
			continue
		}
		seen[ref] = true
		if !authorization.CanPerform(authorization.ActionView, actor, asset) {
			continue
		}
		results = append(results, SearchResult{Type: h.Type, Score: h.Score, Item: asset})
	}
	s.Logger.Info("Suche abgeschlossen", zap.String("provider", s.Provider.Name()),
		zap.Int("hits", len(hits)), zap.Int("visible", len(results)))
	return results, nil
}
