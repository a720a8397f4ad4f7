// Package testutil stellt eine In-Memory-Datenbank und Factories für Tests bereit.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"labshare/models"
)

var dbSeq atomic.Int64

// NewDB öffnet eine frische, migrierte SQLite-Datenbank nur für diesen Test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:labshare_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxIdleConns(4)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// CreatePerson legt eine Person in den angegebenen Projekten an.
func CreatePerson(t *testing.T, db *gorm.DB, name string, projects ...*models.Project) *models.Person {
	t.Helper()
	p := &models.Person{Name: name, Email: name + "@example.org"}
	for _, pr := range projects {
		p.Projects = append(p.Projects, models.Project{ID: pr.ID, Title: pr.Title})
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

// CreateProject legt ein Projekt mit den angegebenen Gatekeepern an.
func CreateProject(t *testing.T, db *gorm.DB, title string, gatekeepers ...*models.Person) *models.Project {
	t.Helper()
	pr := &models.Project{Title: title}
	require.NoError(t, db.Create(pr).Error)
	for _, g := range gatekeepers {
		require.NoError(t, db.Model(pr).Association("Gatekeepers").Append(g))
	}
	return pr
}

// CreatePolicy legt eine Policy mit optionalen Berechtigungen an.
func CreatePolicy(t *testing.T, db *gorm.DB, scope models.SharingScope, access models.AccessType, perms ...models.Permission) *models.Policy {
	t.Helper()
	pol := &models.Policy{SharingScope: scope, AccessType: access, Permissions: perms}
	require.NoError(t, db.Create(pol).Error)
	return pol
}

// CreateAssay legt ein Assay des Contributors an.
func CreateAssay(t *testing.T, db *gorm.DB, title string, contributor *models.Person, scope models.SharingScope, access models.AccessType) *models.Assay {
	t.Helper()
	a := &models.Assay{Title: title, ContributorID: contributor.ID, PolicyID: CreatePolicy(t, db, scope, access).ID}
	require.NoError(t, db.Create(a).Error)
	return a
}

// Count gibt die Anzahl der Zeilen des Modells zurück.
func Count(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}
