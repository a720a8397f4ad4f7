package models

import "time"

// SharingScope beschreibt, wem eine Ressource standardmäßig freigegeben ist.
// Die Werte sind nach Reichweite geordnet.
type SharingScope int

const (
	ScopePrivate               SharingScope = 0
	ScopeCustomPermissionsOnly SharingScope = 1
	ScopeAllRegisteredUsers    SharingScope = 2
	ScopeEveryone              SharingScope = 3
)

// Valid prüft, ob der Wert ein bekannter Scope ist.
func (s SharingScope) Valid() bool {
	return s >= ScopePrivate && s <= ScopeEveryone
}

// AccessType ist eine total geordnete Zugriffsstufe.
type AccessType int

const (
	AccessNone       AccessType = 0
	AccessVisible    AccessType = 1 // nur Metadaten
	AccessAccessible AccessType = 2 // Metadaten und Download
	AccessEditing    AccessType = 3
	AccessManaging   AccessType = 4
)

// Valid prüft, ob der Wert eine bekannte Zugriffsstufe ist.
func (a AccessType) Valid() bool {
	return a >= AccessNone && a <= AccessManaging
}

// Subjekt-Typen für explizite Berechtigungen.
const (
	ContributorPerson  = "Person"
	ContributorProject = "Project"
)

// Policy ist die Freigabe-Konfiguration einer Ressource.
type Policy struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SharingScope SharingScope `json:"sharing_scope" gorm:"not null;default:0"`
	AccessType   AccessType   `json:"access_type" gorm:"not null;default:0"`

	Permissions []Permission `json:"permissions,omitempty"`
}

// TableName gibt explizit den Tabellennamen an.
func (Policy) TableName() string {
	return "policies"
}

// Visibility liefert die effektive Reichweite der Standardfreigabe.
// Ein Scope ohne Zugriffsstufe ist faktisch privat.
func (p *Policy) Visibility() SharingScope {
	if p == nil {
		return ScopePrivate
	}
	return VisibilityOf(p.SharingScope, p.AccessType)
}

// VisibilityOf berechnet die Reichweite für ein Scope/Zugriff-Paar.
func VisibilityOf(scope SharingScope, access AccessType) SharingScope {
	if access <= AccessNone {
		return ScopePrivate
	}
	return scope
}

// Permission ist eine explizite Berechtigung für eine Person oder ein Projekt.
type Permission struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	PolicyID        uint       `json:"policy_id" gorm:"not null;uniqueIndex:idx_permission_subject,priority:1"`
	ContributorType string     `json:"contributor_type" gorm:"size:32;not null;uniqueIndex:idx_permission_subject,priority:2"`
	ContributorID   uint       `json:"contributor_id" gorm:"not null;uniqueIndex:idx_permission_subject,priority:3"`
	AccessType      AccessType `json:"access_type" gorm:"not null"`
}

// TableName gibt explizit den Tabellennamen an.
func (Permission) TableName() string {
	return "permissions"
}
