package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"labshare/authorization"
	"labshare/models"
)

// Asset ist eine teilbare Ressource mit Projekten (Presentation, Strain).
type Asset interface {
	authorization.Resource
	AssetType() string
	AssetID() uint
	AssetTitle() string
	ProjectList() []models.Project
}

// AssetRef adressiert einen Datensatz polymorph über Typ und ID.
type AssetRef struct {
	Type string `json:"type" binding:"required"`
	ID   uint   `json:"id" binding:"required"`
}

func refOf(a Asset) AssetRef {
	return AssetRef{Type: a.AssetType(), ID: a.AssetID()}
}

// withoutDependents verbirgt HasDependents, um den Ablehnungsgrund beim Löschen zu bestimmen.
type withoutDependents struct {
	authorization.Resource
}

// authorize prüft die Aktion und zählt Ablehnungen.
func authorize(action authorization.Action, actor *authorization.Actor, res authorization.Resource) error {
	if authorization.CanPerform(action, actor, res) {
		return nil
	}
	authorizationDenialsTotal.WithLabelValues(string(action)).Inc()
	return ErrAuthorizationDenied
}

// authorizeDelete unterscheidet fehlende Rechte von vorhandenen Abhängigkeiten.
func authorizeDelete(actor *authorization.Actor, res authorization.Resource) error {
	if authorization.CanPerform(authorization.ActionDelete, actor, res) {
		return nil
	}
	if _, ok := res.(authorization.Undeletable); ok &&
		authorization.CanPerform(authorization.ActionDelete, actor, withoutDependents{res}) {
		return ErrDependencyExists
	}
	authorizationDenialsTotal.WithLabelValues(string(authorization.ActionDelete)).Inc()
	return ErrAuthorizationDenied
}

// notFound bildet gorm.ErrRecordNotFound auf ErrNotFound ab.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func preloadAsset(db *gorm.DB) *gorm.DB {
	return db.Preload("Policy.Permissions").Preload("Projects.Gatekeepers")
}

// loadAsset lädt ein Asset mit Policy und Projekten (inkl. Gatekeepern).
func loadAsset(db *gorm.DB, assetType string, id uint) (Asset, error) {
	switch assetType {
	case models.AssetTypePresentation:
		var p models.Presentation
		if err := preloadAsset(db).First(&p, id).Error; err != nil {
			return nil, notFound(err)
		}
		return &p, nil
	case models.AssetTypeStrain:
		var s models.Strain
		if err := preloadAsset(db).Preload("Specimens").First(&s, id).Error; err != nil {
			return nil, notFound(err)
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("unknown asset type %q: %w", assetType, ErrNotFound)
	}
}

// loadProjects lädt Projekte per ID; unbekannte IDs sind ein Validierungsfehler.
func loadProjects(db *gorm.DB, ids []uint, verr *ValidationError) ([]models.Project, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	var projects []models.Project
	if err := db.Where("id IN ?", ids).Order("id").Find(&projects).Error; err != nil {
		return nil, err
	}
	found := make(map[uint]bool, len(projects))
	for _, p := range projects {
		found[p.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			verr.Add("project_ids", fmt.Sprintf("unknown project %d", id))
		}
	}
	return projects, nil
}

// replaceProjects setzt die Projektzuordnung und lädt die Projekte mit Gatekeepern neu.
func replaceProjects(tx *gorm.DB, owner any, projects []models.Project) ([]models.Project, error) {
	assoc := tx.Model(owner).Association("Projects")
	var err error
	if len(projects) == 0 {
		err = assoc.Clear()
	} else {
		err = assoc.Replace(projects)
	}
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, nil
	}
	ids := make([]uint, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
	}
	var reloaded []models.Project
	if err := tx.Preload("Gatekeepers").Where("id IN ?", ids).Order("id").Find(&reloaded).Error; err != nil {
		return nil, err
	}
	return reloaded, nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
