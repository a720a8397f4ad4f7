// Package authorization entscheidet, ob ein Akteur eine Aktion auf einer geteilten
// Ressource ausführen darf. Alle Funktionen arbeiten nur auf bereits geladenen
// Datensätzen und greifen nie auf die Datenbank zu.
package authorization

import "labshare/models"

// Action ist eine angefragte Operation auf einer Ressource.
type Action string

const (
	ActionView     Action = "view"
	ActionDownload Action = "download"
	ActionEdit     Action = "edit"
	ActionManage   Action = "manage"
	ActionDelete   Action = "delete"
)

// Actor ist die Person hinter einem Request. Ein nil-*Actor ist anonym.
type Actor struct {
	PersonID   uint
	ProjectIDs []uint
}

// ActorFor baut einen Actor aus einer Person mit vorgeladenen Projekten.
func ActorFor(p *models.Person) *Actor {
	if p == nil {
		return nil
	}
	return &Actor{PersonID: p.ID, ProjectIDs: p.ProjectIDs()}
}

func (a *Actor) inProject(id uint) bool {
	for _, pid := range a.ProjectIDs {
		if pid == id {
			return true
		}
	}
	return false
}

// Resource ist alles mit Eigentümer und Freigabe-Policy.
type Resource interface {
	Owner() uint
	SharingPolicy() *models.Policy
}

// Undeletable implementieren Ressourcen, von denen andere Datensätze abhängen können.
type Undeletable interface {
	HasDependents() bool
}

// RequiredLevel gibt die Mindest-Zugriffsstufe einer Aktion zurück.
func RequiredLevel(action Action) (models.AccessType, bool) {
	switch action {
	case ActionView:
		return models.AccessVisible, true
	case ActionDownload:
		return models.AccessAccessible, true
	case ActionEdit:
		return models.AccessEditing, true
	case ActionManage, ActionDelete:
		return models.AccessManaging, true
	default:
		return models.AccessNone, false
	}
}

// IsOwner prüft, ob der Akteur die Ressource angelegt hat.
func IsOwner(actor *Actor, res Resource) bool {
	return actor != nil && res != nil && actor.PersonID != 0 && res.Owner() == actor.PersonID
}

// CanPerform ist der einzige Einstiegspunkt für Berechtigungsprüfungen.
func CanPerform(action Action, actor *Actor, res Resource) bool {
	if res == nil {
		return false
	}
	required, ok := RequiredLevel(action)
	if !ok {
		return false
	}
	if action == ActionDelete {
		if u, ok := res.(Undeletable); ok && u.HasDependents() {
			return false
		}
		if IsOwner(actor, res) {
			return true
		}
		level, found := explicitLevel(actor, res.SharingPolicy())
		return found && level >= models.AccessManaging
	}
	return AccessLevel(actor, res) >= required
}

// AccessLevel gibt die effektive Zugriffsstufe des Akteurs zurück.
func AccessLevel(actor *Actor, res Resource) models.AccessType {
	if res == nil {
		return models.AccessNone
	}
	if IsOwner(actor, res) {
		return models.AccessManaging
	}
	policy := res.SharingPolicy()
	if level, found := explicitLevel(actor, policy); found {
		return level
	}
	return scopeLevel(actor, policy)
}

// explicitLevel sucht den passenden Berechtigungseintrag. Ein Personeneintrag
// schlägt Projekteinträge, unter Projekten gewinnt die höchste Stufe.
func explicitLevel(actor *Actor, policy *models.Policy) (models.AccessType, bool) {
	if actor == nil || policy == nil {
		return models.AccessNone, false
	}
	var (
		projectLevel models.AccessType
		projectFound bool
	)
	for _, perm := range policy.Permissions {
		switch perm.ContributorType {
		case models.ContributorPerson:
			if perm.ContributorID == actor.PersonID {
				return perm.AccessType, true
			}
		case models.ContributorProject:
			if actor.inProject(perm.ContributorID) && (!projectFound || perm.AccessType > projectLevel) {
				projectLevel = perm.AccessType
				projectFound = true
			}
		}
	}
	return projectLevel, projectFound
}

// scopeLevel wendet den Standard-Scope an. Anonyme Besucher erhalten höchstens
// Download-Zugriff, auch wenn alle bearbeiten dürfen.
func scopeLevel(actor *Actor, policy *models.Policy) models.AccessType {
	if policy == nil {
		return models.AccessNone
	}
	switch policy.SharingScope {
	case models.ScopeAllRegisteredUsers:
		if actor == nil {
			return models.AccessNone
		}
		return policy.AccessType
	case models.ScopeEveryone:
		if actor == nil && policy.AccessType > models.AccessAccessible {
			return models.AccessAccessible
		}
		return policy.AccessType
	default:
		return models.AccessNone
	}
}

// Filter behält die erlaubten Einträge in ursprünglicher Reihenfolge.
func Filter[T Resource](action Action, actor *Actor, items []T) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if CanPerform(action, actor, it) {
			out = append(out, it)
		}
	}
	return out
}
