package solr

import (
	"fmt"
	"strconv"
	"strings"
)

// SelectResponse ist die Top-Level-Struktur der SOLR select-Antwort (wt=json).
type SelectResponse struct {
	Response struct {
		NumFound int   `json:"numFound"`
		Docs     []Doc `json:"docs"`
	} `json:"response"`
}

// Doc ist ein einzelnes Dokument im Index. Die ID hat die Form "Typ:ID".
type Doc struct {
	ID    string  `json:"id"`
	Type  string  `json:"type"`
	Score float64 `json:"score"`
}

// parseDocID zerlegt "Presentation:12" in Typ und numerische ID.
func parseDocID(id string) (string, uint, error) {
	typ, raw, ok := strings.Cut(id, ":")
	if !ok || typ == "" {
		return "", 0, fmt.Errorf("malformed document id %q", id)
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed document id %q: %w", id, err)
	}
	return typ, uint(n), nil
}
