package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrAuthorizationDenied: der Akteur darf die Aktion nicht ausführen.
	ErrAuthorizationDenied = errors.New("authorization denied")
	// ErrNotFound: die Ressource existiert nicht.
	ErrNotFound = errors.New("not found")
	// ErrDependencyExists: andere Datensätze hängen von der Ressource ab.
	ErrDependencyExists = errors.New("resource has dependents")
	// ErrInvalidContent: weder Datei noch URL für eine neue Version angegeben.
	ErrInvalidContent = errors.New("no content supplied")
	// ErrInvalidStateTransition: unzulässiger Übergang eines Freigabe-Antrags.
	ErrInvalidStateTransition = errors.New("invalid publish state transition")
	// ErrNotMember: nur Projektmitglieder dürfen neue Assets anlegen.
	ErrNotMember = errors.New("only project members may create assets")
)

// ValidationError sammelt Feldfehler, bevor etwas geschrieben wird.
type ValidationError struct {
	Fields map[string][]string `json:"fields"`
}

// Add hängt eine Meldung für ein Feld an.
func (v *ValidationError) Add(field, msg string) {
	if v.Fields == nil {
		v.Fields = make(map[string][]string)
	}
	v.Fields[field] = append(v.Fields[field], msg)
}

// HasErrors ist true, sobald mindestens ein Feldfehler vorliegt.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.Fields) > 0
}

func (v *ValidationError) Error() string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", k, strings.Join(v.Fields[k], ", ")))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// orNil gibt den Fehler nur zurück, wenn Feldfehler vorliegen.
func (v *ValidationError) orNil() error {
	if v.HasErrors() {
		return v
	}
	return nil
}
