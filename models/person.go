package models

import "time"

// Person repräsentiert einen registrierten Benutzer, der Inhalte beiträgt.
type Person struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name  string `json:"name" gorm:"not null"`
	Email string `json:"email,omitempty" gorm:"uniqueIndex"`

	Projects []Project `json:"projects,omitempty" gorm:"many2many:project_members;"`
}

// TableName gibt explizit den Tabellennamen an.
func (Person) TableName() string {
	return "people"
}

// IsMember ist true, sobald die Person mindestens einem Projekt angehört.
func (p *Person) IsMember() bool {
	return p != nil && len(p.Projects) > 0
}

// ProjectIDs liefert die IDs aller Projekte der Person.
func (p *Person) ProjectIDs() []uint {
	if p == nil {
		return nil
	}
	ids := make([]uint, 0, len(p.Projects))
	for _, pr := range p.Projects {
		ids = append(ids, pr.ID)
	}
	return ids
}
