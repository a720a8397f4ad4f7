package solr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"labshare/config"
	"labshare/providers"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Fetcher implementiert das Provider-Interface für einen SOLR-Core.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
	Client *http.Client
}

// NewFetcher erstellt einen neuen SOLR Fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger, Client: httpClient}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "solr"
}

// Search führt die Suche auf dem SOLR-Core aus.
func (f *Fetcher) Search(ctx context.Context, query string, types []string, limit int) ([]providers.Hit, error) {
	log := f.Logger.With(zap.String("query", query))

	params := url.Values{}
	params.Set("q", query)
	params.Set("fl", "id,type,score")
	params.Set("wt", "json")
	params.Set("rows", strconv.Itoa(limit))
	if len(types) > 0 {
		params.Set("fq", "type:("+strings.Join(types, " OR ")+")")
	}
	searchURL := fmt.Sprintf("%s/select?%s", strings.TrimRight(f.Config.SolrURL, "/"), params.Encode())
	log.Debug("Rufe SOLR auf", zap.String("url", searchURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("solr request failed with status: %d", resp.StatusCode)
	}

	var sr SelectResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, err
	}

	hits := make([]providers.Hit, 0, len(sr.Response.Docs))
	for _, doc := range sr.Response.Docs {
		typ, id, err := parseDocID(doc.ID)
		if err != nil {
			log.Warn("Überspringe Dokument mit ungültiger ID", zap.String("doc_id", doc.ID), zap.Error(err))
			continue
		}
		hits = append(hits, providers.Hit{Type: typ, ID: id, Score: doc.Score})
	}
	log.Info("SOLR-Suche abgeschlossen", zap.Int("hits", len(hits)), zap.Int("num_found", sr.Response.NumFound))
	return hits, nil
}
