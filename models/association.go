package models

import "time"

// Prädikate für Relationship-Einträge.
const (
	PredicateAttribution          = "attribution"
	PredicateRelatedToPublication = "related_to_publication"
)

// AssetsCreator ordnet einem Asset eine beteiligte Person (Ersteller) zu.
type AssetsCreator struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	AssetType string `json:"asset_type" gorm:"size:64;not null;uniqueIndex:idx_assets_creator,priority:1"`
	AssetID   uint   `json:"asset_id" gorm:"not null;uniqueIndex:idx_assets_creator,priority:2"`
	CreatorID uint   `json:"creator_id" gorm:"not null;uniqueIndex:idx_assets_creator,priority:3"`
}

// TableName gibt explizit den Tabellennamen an.
func (AssetsCreator) TableName() string {
	return "assets_creators"
}

// Relationship ist eine gerichtete Kante: Subjekt steht in Beziehung zu Objekt
// (z.B. Presentation -> attribution -> Strain).
type Relationship struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	SubjectType string `json:"subject_type" gorm:"size:64;not null;uniqueIndex:idx_relationship_edge,priority:1"`
	SubjectID   uint   `json:"subject_id" gorm:"not null;uniqueIndex:idx_relationship_edge,priority:2"`
	Predicate   string `json:"predicate" gorm:"size:64;not null;uniqueIndex:idx_relationship_edge,priority:3"`
	ObjectType  string `json:"object_type" gorm:"size:64;not null;uniqueIndex:idx_relationship_edge,priority:4"`
	ObjectID    uint   `json:"object_id" gorm:"not null;uniqueIndex:idx_relationship_edge,priority:5"`
}

// TableName gibt explizit den Tabellennamen an.
func (Relationship) TableName() string {
	return "relationships"
}
