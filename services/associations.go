package services

import (
	"gorm.io/gorm"

	"labshare/authorization"
	"labshare/models"
)

// diffKeys berechnet, welche Schlüssel hinzugefügt und welche entfernt werden müssen.
// Doppelte Einträge in desired werden ignoriert; die Reihenfolge von desired bleibt erhalten.
func diffKeys[K comparable](current, desired []K) (add, remove []K) {
	want := make(map[K]bool, len(desired))
	for _, k := range desired {
		want[k] = true
	}
	have := make(map[K]bool, len(current))
	for _, k := range current {
		have[k] = true
		if !want[k] {
			remove = append(remove, k)
		}
	}
	for _, k := range desired {
		if !have[k] {
			add = append(add, k)
			have[k] = true
		}
	}
	return add, remove
}

// ReconcileCreators gleicht die Ersteller eines Assets mit der gewünschten Liste ab.
func ReconcileCreators(tx *gorm.DB, asset AssetRef, creatorIDs []uint) error {
	var current []uint
	if err := tx.Model(&models.AssetsCreator{}).
		Where("asset_type = ? AND asset_id = ?", asset.Type, asset.ID).
		Pluck("creator_id", &current).Error; err != nil {
		return err
	}
	add, remove := diffKeys(current, uniqueIDs(creatorIDs))
	if len(remove) > 0 {
		if err := tx.Where("asset_type = ? AND asset_id = ? AND creator_id IN ?", asset.Type, asset.ID, remove).
			Delete(&models.AssetsCreator{}).Error; err != nil {
			return err
		}
	}
	for _, id := range add {
		if err := tx.Create(&models.AssetsCreator{AssetType: asset.Type, AssetID: asset.ID, CreatorID: id}).Error; err != nil {
			return err
		}
	}
	return nil
}

// ReconcileRelationships gleicht die Kanten eines Prädikats vom Subjekt aus ab.
// Kanten anderer Prädikate bleiben unberührt.
func ReconcileRelationships(tx *gorm.DB, subject AssetRef, predicate string, objects []AssetRef) error {
	var rows []models.Relationship
	if err := tx.Where("subject_type = ? AND subject_id = ? AND predicate = ?", subject.Type, subject.ID, predicate).
		Find(&rows).Error; err != nil {
		return err
	}
	current := make([]AssetRef, 0, len(rows))
	for _, r := range rows {
		current = append(current, AssetRef{Type: r.ObjectType, ID: r.ObjectID})
	}
	add, remove := diffKeys(current, objects)
	for _, o := range remove {
		if err := tx.Where("subject_type = ? AND subject_id = ? AND predicate = ? AND object_type = ? AND object_id = ?",
			subject.Type, subject.ID, predicate, o.Type, o.ID).
			Delete(&models.Relationship{}).Error; err != nil {
			return err
		}
	}
	for _, o := range add {
		if err := tx.Create(&models.Relationship{
			SubjectType: subject.Type,
			SubjectID:   subject.ID,
			Predicate:   predicate,
			ObjectType:  o.Type,
			ObjectID:    o.ID,
		}).Error; err != nil {
			return err
		}
	}
	return nil
}

// publicationRefs bildet Publikations-IDs auf Relationship-Objekte ab.
func publicationRefs(ids []uint) []AssetRef {
	refs := make([]AssetRef, 0, len(ids))
	for _, id := range uniqueIDs(ids) {
		refs = append(refs, AssetRef{Type: "Publication", ID: id})
	}
	return refs
}

// editableAssays liefert die IDs der Assays, die der Akteur bearbeiten darf.
func editableAssays(tx *gorm.DB, actor *authorization.Actor, ids []uint) (map[uint]bool, error) {
	ids = uniqueIDs(ids)
	out := make(map[uint]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var assays []*models.Assay
	if err := tx.Preload("Policy.Permissions").Where("id IN ?", ids).Find(&assays).Error; err != nil {
		return nil, err
	}
	for _, a := range authorization.Filter(authorization.ActionEdit, actor, assays) {
		out[a.ID] = true
	}
	return out, nil
}

// assayLinks abstrahiert die Verknüpfungstabelle zwischen Assay und Asset.
type assayLinks struct {
	current func(tx *gorm.DB) ([]uint, error)
	add     func(tx *gorm.DB, assayID uint) error
	remove  func(tx *gorm.DB, assayIDs []uint) error
}

// reconcileAssays verknüpft nur bearbeitbare Assays und entfernt nur Verknüpfungen
// zu bearbeitbaren Assays. Fremde Verknüpfungen bleiben bestehen.
func reconcileAssays(tx *gorm.DB, actor *authorization.Actor, links assayLinks, desired []uint) error {
	current, err := links.current(tx)
	if err != nil {
		return err
	}
	desired = uniqueIDs(desired)
	editable, err := editableAssays(tx, actor, append(append([]uint{}, current...), desired...))
	if err != nil {
		return err
	}
	var wanted []uint
	for _, id := range desired {
		if editable[id] {
			wanted = append(wanted, id)
		}
	}
	add, remove := diffKeys(current, wanted)
	var drop []uint
	for _, id := range remove {
		if editable[id] {
			drop = append(drop, id)
		}
	}
	if len(drop) > 0 {
		if err := links.remove(tx, drop); err != nil {
			return err
		}
	}
	for _, id := range add {
		if err := links.add(tx, id); err != nil {
			return err
		}
	}
	return nil
}

func assetAssayLinks(ref AssetRef) assayLinks {
	return assayLinks{
		current: func(tx *gorm.DB) ([]uint, error) {
			var ids []uint
			err := tx.Model(&models.AssayAsset{}).Where("asset_type = ? AND asset_id = ?", ref.Type, ref.ID).
				Pluck("assay_id", &ids).Error
			return ids, err
		},
		add: func(tx *gorm.DB, assayID uint) error {
			return tx.Create(&models.AssayAsset{AssayID: assayID, AssetType: ref.Type, AssetID: ref.ID}).Error
		},
		remove: func(tx *gorm.DB, assayIDs []uint) error {
			return tx.Where("asset_type = ? AND asset_id = ? AND assay_id IN ?", ref.Type, ref.ID, assayIDs).
				Delete(&models.AssayAsset{}).Error
		},
	}
}

func strainAssayLinks(strainID uint) assayLinks {
	return assayLinks{
		current: func(tx *gorm.DB) ([]uint, error) {
			var ids []uint
			err := tx.Model(&models.AssayOrganism{}).Where("strain_id = ?", strainID).Pluck("assay_id", &ids).Error
			return ids, err
		},
		add: func(tx *gorm.DB, assayID uint) error {
			return tx.Create(&models.AssayOrganism{AssayID: assayID, StrainID: strainID}).Error
		},
		remove: func(tx *gorm.DB, assayIDs []uint) error {
			return tx.Where("strain_id = ? AND assay_id IN ?", strainID, assayIDs).Delete(&models.AssayOrganism{}).Error
		},
	}
}

// deleteAssetAssociations entfernt alle polymorphen Verknüpfungen eines Assets.
func deleteAssetAssociations(tx *gorm.DB, ref AssetRef) error {
	steps := []func() error{
		func() error {
			return tx.Where("asset_type = ? AND asset_id = ?", ref.Type, ref.ID).Delete(&models.AssayAsset{}).Error
		},
		func() error {
			return tx.Where("asset_type = ? AND asset_id = ?", ref.Type, ref.ID).Delete(&models.AssetsCreator{}).Error
		},
		func() error {
			return tx.Where("(subject_type = ? AND subject_id = ?) OR (object_type = ? AND object_id = ?)",
				ref.Type, ref.ID, ref.Type, ref.ID).Delete(&models.Relationship{}).Error
		},
		func() error {
			return tx.Where("resource_type = ? AND resource_id = ?", ref.Type, ref.ID).Delete(&models.ResourcePublishLog{}).Error
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// deletePolicy entfernt Policy und Berechtigungen.
func deletePolicy(tx *gorm.DB, policyID uint) error {
	if err := tx.Where("policy_id = ?", policyID).Delete(&models.Permission{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.Policy{}, policyID).Error
}
