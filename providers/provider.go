package providers

import "context"

// Hit ist ein Treffer des Suchindex: Typ und ID eines Datensatzes mit Relevanz.
type Hit struct {
	Type  string  `json:"type"`
	ID    uint    `json:"id"`
	Score float64 `json:"score"`
}

// Provider ist das Interface, das jeder Such-Provider (z.B. SOLR, Datenbank) implementieren muss.
type Provider interface {
	// Search liefert Treffer für query, absteigend nach Relevanz, beschränkt auf types (leer = alle).
	Search(ctx context.Context, query string, types []string, limit int) ([]Hit, error)

	// Name gibt den eindeutigen Namen des Providers zurück (z.B. "solr").
	Name() string
}
