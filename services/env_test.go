package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"labshare/authorization"
	"labshare/models"
	"labshare/notifier"
	"labshare/storage"
	"labshare/testutil"
)

type env struct {
	db      *gorm.DB
	blobs   *storage.MemoryStore
	notes   *notifier.Recorder
	publish *PublishService
	assets  *AssetService
	strains *StrainService
}

func newEnv(t *testing.T, strict bool) *env {
	t.Helper()
	db := testutil.NewDB(t)
	log := zap.NewNop()
	notes := &notifier.Recorder{}
	publish := NewPublishService(db, notes, log, strict)
	sharing := NewSharingService(publish, log)
	blobs := storage.NewMemoryStore()
	return &env{
		db:      db,
		blobs:   blobs,
		notes:   notes,
		publish: publish,
		assets:  NewAssetService(db, blobs, sharing, publish, log),
		strains: NewStrainService(db, sharing, publish, log),
	}
}

var ctx = context.Background()

func pdf(data string) ContentInput {
	return ContentInput{Data: []byte(data), Filename: "talk.pdf", ContentType: "application/pdf"}
}

func share(scope models.SharingScope, access models.AccessType, perms ...PermissionParam) *SharingParams {
	return &SharingParams{SharingScope: scope, AccessType: access, Permissions: perms}
}

func personGrant(p *models.Person, access models.AccessType) PermissionParam {
	return PermissionParam{ContributorType: models.ContributorPerson, ContributorID: p.ID, AccessType: access}
}

func (e *env) createPresentation(t *testing.T, owner *models.Person, in PresentationCreate) *models.Presentation {
	t.Helper()
	if in.Title == "" {
		in.Title = "Talk"
	}
	res, err := e.assets.Create(ctx, authorization.ActorFor(owner), in, pdf("version one"))
	require.NoError(t, err)
	return res.Presentation
}

func (e *env) reloadPresentation(t *testing.T, id uint) *models.Presentation {
	t.Helper()
	var p models.Presentation
	require.NoError(t, e.db.Preload("Policy.Permissions").First(&p, id).Error)
	return &p
}
