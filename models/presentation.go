package models

import "time"

// AssetTypePresentation ist der polymorphe Typname für Präsentationen.
const AssetTypePresentation = "Presentation"

// Presentation ist ein versioniertes, dateibasiertes Asset (z.B. Vortragsfolien).
type Presentation struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title       string `json:"title" gorm:"not null"`
	Description string `json:"description,omitempty" gorm:"type:text"`

	ContributorID uint    `json:"contributor_id" gorm:"not null;index"`
	PolicyID      uint    `json:"policy_id" gorm:"not null"`
	Policy        *Policy `json:"policy,omitempty"`

	Version    int        `json:"version" gorm:"not null;default:1"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`

	// Inhalt der aktuellen Version, wird nur über neue Versionen geändert
	ContentBlobID    uint         `json:"content_blob_id"`
	ContentBlob      *ContentBlob `json:"content_blob,omitempty"`
	ContentType      string       `json:"content_type,omitempty"`
	OriginalFilename string       `json:"original_filename,omitempty"`

	Projects []Project             `json:"projects,omitempty" gorm:"many2many:presentation_projects;"`
	Versions []PresentationVersion `json:"-"`
}

// TableName gibt explizit den Tabellennamen an.
func (Presentation) TableName() string {
	return "presentations"
}

func (p *Presentation) Owner() uint            { return p.ContributorID }
func (p *Presentation) SharingPolicy() *Policy { return p.Policy }
func (p *Presentation) AssetType() string      { return AssetTypePresentation }
func (p *Presentation) AssetID() uint          { return p.ID }
func (p *Presentation) AssetTitle() string     { return p.Title }
func (p *Presentation) ProjectList() []Project { return p.Projects }

// PresentationVersion ist ein unveränderlicher Stand einer Präsentation.
type PresentationVersion struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	PresentationID uint `json:"presentation_id" gorm:"not null;uniqueIndex:idx_presentation_version,priority:1"`
	Version        int  `json:"version" gorm:"not null;uniqueIndex:idx_presentation_version,priority:2"`

	Title         string `json:"title"`
	Description   string `json:"description,omitempty" gorm:"type:text"`
	ContributorID uint   `json:"contributor_id"`

	ContentBlobID    uint         `json:"content_blob_id" gorm:"not null"`
	ContentBlob      *ContentBlob `json:"content_blob,omitempty"`
	ContentType      string       `json:"content_type,omitempty"`
	OriginalFilename string       `json:"original_filename,omitempty"`

	RevisionComments string `json:"revision_comments,omitempty" gorm:"type:text"`
}

// TableName gibt explizit den Tabellennamen an.
func (PresentationVersion) TableName() string {
	return "presentation_versions"
}

// ContentBlob verweist auf den gespeicherten Inhalt einer Version.
// Entweder liegt der Inhalt im Blob-Store (StorageKey) oder extern (URL).
type ContentBlob struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	UUID        string `json:"uuid" gorm:"column:uuid;size:36;uniqueIndex;not null"`
	StorageKey  string `json:"-"`
	URL         string `json:"url,omitempty"`
	MD5         string `json:"md5,omitempty" gorm:"column:md5;size:32"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
}

// TableName gibt explizit den Tabellennamen an.
func (ContentBlob) TableName() string {
	return "content_blobs"
}

// IsRemote ist true für Inhalte, die nur als externer Link vorliegen.
func (b *ContentBlob) IsRemote() bool {
	return b.StorageKey == "" && b.URL != ""
}
