package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labshare/authorization"
	"labshare/models"
	"labshare/testutil"
)

func TestNextState(t *testing.T) {
	cases := []struct {
		from, to models.PublishState
		changed  bool
		err      error
	}{
		{models.PublishStateNone, models.PublishStateWaitingForApproval, true, nil},
		{models.PublishStateWaitingForApproval, models.PublishStateApproved, true, nil},
		{models.PublishStateWaitingForApproval, models.PublishStateRejected, true, nil},
		{models.PublishStateApproved, models.PublishStateApproved, false, nil},
		{models.PublishStateRejected, models.PublishStateRejected, false, nil},
		{models.PublishStateApproved, models.PublishStateRejected, false, ErrInvalidStateTransition},
		{models.PublishStateRejected, models.PublishStateApproved, false, ErrInvalidStateTransition},
		{models.PublishStateNone, models.PublishStateApproved, false, ErrInvalidStateTransition},
		{models.PublishStateApproved, models.PublishStateWaitingForApproval, false, ErrInvalidStateTransition},
		{models.PublishStateWaitingForApproval, models.PublishStateWaitingForApproval, false, ErrInvalidStateTransition},
	}
	for _, c := range cases {
		changed, err := NextState(c.from, c.to)
		assert.Equal(t, c.changed, changed, "%s -> %s", c.from, c.to)
		assert.ErrorIs(t, err, c.err, "%s -> %s", c.from, c.to)
		if c.err == nil {
			assert.NoError(t, err)
		}
	}
}

type gatekept struct {
	*env
	gatekeeper *models.Person
	project    *models.Project
	alice      *models.Person
}

func newGatekept(t *testing.T, strict bool) *gatekept {
	e := newEnv(t, strict)
	gk := testutil.CreatePerson(t, e.db, "gatekeeper")
	project := testutil.CreateProject(t, e.db, "Gatekept lab", gk)
	alice := testutil.CreatePerson(t, e.db, "alice", project)
	return &gatekept{env: e, gatekeeper: gk, project: project, alice: alice}
}

func TestCreateInGatekeptProjectNotifiesOnce(t *testing.T) {
	g := newGatekept(t, false)
	res, err := g.assets.Create(ctx, authorization.ActorFor(g.alice), PresentationCreate{
		Title:      "Public talk",
		ProjectIDs: []uint{g.project.ID},
		Sharing:    share(models.ScopeEveryone, models.AccessAccessible),
	}, pdf("slides"))
	require.NoError(t, err)
	require.NotNil(t, res.PublishLog)
	assert.Equal(t, models.PublishStateWaitingForApproval, res.PublishLog.PublishState)
	assert.Equal(t, g.alice.ID, res.PublishLog.UserID)
	assert.Equal(t, int64(1), testutil.Count(t, g.db, &models.ResourcePublishLog{}))

	reqs := g.notes.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, res.PublishLog.ID, reqs[0].LogID)
	assert.Equal(t, "Public talk", reqs[0].ResourceTitle)
	assert.Equal(t, g.alice.ID, reqs[0].Requester.ID)
	require.Len(t, reqs[0].Gatekeepers, 1)
	assert.Equal(t, g.gatekeeper.ID, reqs[0].Gatekeepers[0].ID)

	// sharing applies immediately outside strict mode
	p := g.reloadPresentation(t, res.Presentation.ID)
	assert.Equal(t, models.ScopeEveryone, p.Policy.SharingScope)
}

func TestNoSecondLogWhileWaiting(t *testing.T) {
	g := newGatekept(t, false)
	actor := authorization.ActorFor(g.alice)
	p := g.createPresentation(t, g.alice, PresentationCreate{
		ProjectIDs: []uint{g.project.ID},
		Sharing:    share(models.ScopeAllRegisteredUsers, models.AccessVisible),
	})
	_, err := g.assets.UpdateMetadata(ctx, actor, p.ID, PresentationUpdate{
		Sharing: share(models.ScopeEveryone, models.AccessVisible),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), testutil.Count(t, g.db, &models.ResourcePublishLog{}))
	assert.Len(t, g.notes.Requests(), 1)
	assert.Equal(t, models.ScopeEveryone, g.reloadPresentation(t, p.ID).Policy.SharingScope)
}

func TestNoLogWithoutBroadening(t *testing.T) {
	g := newGatekept(t, false)
	actor := authorization.ActorFor(g.alice)

	// custom permissions only is below the gatekeeping threshold
	p := g.createPresentation(t, g.alice, PresentationCreate{
		ProjectIDs: []uint{g.project.ID},
		Sharing:    share(models.ScopeCustomPermissionsOnly, models.AccessEditing),
	})
	// a broad scope without access is still private
	_, err := g.assets.UpdateMetadata(ctx, actor, p.ID, PresentationUpdate{
		Sharing: share(models.ScopeEveryone, models.AccessNone),
	})
	require.NoError(t, err)
	assert.Zero(t, testutil.Count(t, g.db, &models.ResourcePublishLog{}))

	res, err := g.assets.UpdateMetadata(ctx, actor, p.ID, PresentationUpdate{
		Sharing: share(models.ScopeAllRegisteredUsers, models.AccessVisible),
	})
	require.NoError(t, err)
	require.NotNil(t, res.PublishLog)
	_, err = g.publish.Approve(ctx, authorization.ActorFor(g.gatekeeper), res.PublishLog.ID)
	require.NoError(t, err)

	// narrowing never needs approval
	_, err = g.assets.UpdateMetadata(ctx, actor, p.ID, PresentationUpdate{Sharing: share(models.ScopePrivate, models.AccessNone)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), testutil.Count(t, g.db, &models.ResourcePublishLog{}))
	assert.Len(t, g.notes.Requests(), 1)
}

func TestNoLogOutsideGatekeptProjects(t *testing.T) {
	e := newEnv(t, false)
	open := testutil.CreateProject(t, e.db, "Open lab")
	bob := testutil.CreatePerson(t, e.db, "bob", open)
	res, err := e.assets.Create(ctx, authorization.ActorFor(bob), PresentationCreate{
		Title:      "Open talk",
		ProjectIDs: []uint{open.ID},
		Sharing:    share(models.ScopeEveryone, models.AccessAccessible),
	}, pdf("slides"))
	require.NoError(t, err)
	assert.Nil(t, res.PublishLog)
	assert.Empty(t, e.notes.Requests())
}

func TestApproveAndReject(t *testing.T) {
	g := newGatekept(t, false)
	gk := authorization.ActorFor(g.gatekeeper)
	res, err := g.assets.Create(ctx, authorization.ActorFor(g.alice), PresentationCreate{
		Title:      "Talk",
		ProjectIDs: []uint{g.project.ID},
		Sharing:    share(models.ScopeEveryone, models.AccessVisible),
	}, pdf("slides"))
	require.NoError(t, err)
	logID := res.PublishLog.ID

	_, err = g.publish.Approve(ctx, authorization.ActorFor(g.alice), logID)
	assert.ErrorIs(t, err, ErrAuthorizationDenied)
	_, err = g.publish.Approve(ctx, nil, logID)
	assert.ErrorIs(t, err, ErrAuthorizationDenied)

	log, err := g.publish.Approve(ctx, gk, logID)
	require.NoError(t, err)
	assert.Equal(t, models.PublishStateApproved, log.PublishState)

	log, err = g.publish.Approve(ctx, gk, logID)
	require.NoError(t, err, "re-approving is a no-op")
	assert.Equal(t, models.PublishStateApproved, log.PublishState)

	_, err = g.publish.Reject(ctx, gk, logID, "too late")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	_, err = g.publish.Approve(ctx, gk, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRejectStoresComment(t *testing.T) {
	g := newGatekept(t, false)
	res, err := g.assets.Create(ctx, authorization.ActorFor(g.alice), PresentationCreate{
		Title:      "Draft",
		ProjectIDs: []uint{g.project.ID},
		Sharing:    share(models.ScopeAllRegisteredUsers, models.AccessVisible),
	}, pdf("slides"))
	require.NoError(t, err)

	log, err := g.publish.Reject(ctx, authorization.ActorFor(g.gatekeeper), res.PublishLog.ID, "not reviewed yet")
	require.NoError(t, err)
	assert.Equal(t, models.PublishStateRejected, log.PublishState)

	var stored models.ResourcePublishLog
	require.NoError(t, g.db.First(&stored, log.ID).Error)
	assert.Equal(t, "not reviewed yet", stored.Comment)
	assert.Equal(t, models.PublishStateRejected, stored.PublishState)
}

func TestStrictModeHoldsVisibilityUntilApproval(t *testing.T) {
	g := newGatekept(t, true)
	outsider := &authorization.Actor{PersonID: 999}
	res, err := g.assets.Create(ctx, authorization.ActorFor(g.alice), PresentationCreate{
		Title:      "Embargoed",
		ProjectIDs: []uint{g.project.ID},
		Sharing:    share(models.ScopeEveryone, models.AccessAccessible),
	}, pdf("slides"))
	require.NoError(t, err)
	require.NotNil(t, res.PublishLog)
	assert.NotEmpty(t, res.PublishLog.RequestedSharing)

	p := g.reloadPresentation(t, res.Presentation.ID)
	assert.Equal(t, models.ScopePrivate, p.Policy.Visibility())
	_, err = g.assets.Get(ctx, outsider, p.ID)
	assert.ErrorIs(t, err, ErrAuthorizationDenied)

	_, err = g.publish.Approve(ctx, authorization.ActorFor(g.gatekeeper), res.PublishLog.ID)
	require.NoError(t, err)

	p = g.reloadPresentation(t, res.Presentation.ID)
	assert.Equal(t, models.ScopeEveryone, p.Policy.SharingScope)
	assert.Equal(t, models.AccessAccessible, p.Policy.AccessType)
	_, err = g.assets.Get(ctx, nil, p.ID)
	assert.NoError(t, err)
}

func TestStrictRejectKeepsPolicy(t *testing.T) {
	g := newGatekept(t, true)
	res, err := g.assets.Create(ctx, authorization.ActorFor(g.alice), PresentationCreate{
		Title:      "Embargoed",
		ProjectIDs: []uint{g.project.ID},
		Sharing:    share(models.ScopeAllRegisteredUsers, models.AccessVisible),
	}, pdf("slides"))
	require.NoError(t, err)

	_, err = g.publish.Reject(ctx, authorization.ActorFor(g.gatekeeper), res.PublishLog.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.ScopePrivate, g.reloadPresentation(t, res.Presentation.ID).Policy.Visibility())
}

func TestNotificationFailureIsNotAnError(t *testing.T) {
	g := newGatekept(t, false)
	g.notes.Err = errors.New("mail relay down")
	res, err := g.assets.Create(ctx, authorization.ActorFor(g.alice), PresentationCreate{
		Title:      "Talk",
		ProjectIDs: []uint{g.project.ID},
		Sharing:    share(models.ScopeEveryone, models.AccessVisible),
	}, pdf("slides"))
	require.NoError(t, err)
	assert.NotNil(t, res.PublishLog)
	assert.Len(t, g.notes.Requests(), 1)
}

func TestListAndPendingCount(t *testing.T) {
	g := newGatekept(t, false)
	for _, title := range []string{"One", "Two"} {
		_, err := g.assets.Create(ctx, authorization.ActorFor(g.alice), PresentationCreate{
			Title:      title,
			ProjectIDs: []uint{g.project.ID},
			Sharing:    share(models.ScopeEveryone, models.AccessVisible),
		}, pdf(title))
		require.NoError(t, err)
	}

	n, err := g.publish.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, g.publish.RefreshWaitingGauge(ctx))

	logs, err := g.publish.List(ctx, authorization.ActorFor(g.gatekeeper), nil)
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	logs, err = g.publish.List(ctx, authorization.ActorFor(g.alice), nil)
	require.NoError(t, err)
	assert.Empty(t, logs)

	approved := models.PublishStateApproved
	logs, err = g.publish.List(ctx, authorization.ActorFor(g.gatekeeper), &approved)
	require.NoError(t, err)
	assert.Empty(t, logs)

	_, err = g.publish.List(ctx, nil, nil)
	assert.ErrorIs(t, err, ErrAuthorizationDenied)
}

func TestStrictWaitingLogFollowsWiderRequest(t *testing.T) {
	g := newGatekept(t, true)
	owner := authorization.ActorFor(g.alice)
	res, err := g.assets.Create(ctx, owner, PresentationCreate{
		Title:      "Embargoed",
		ProjectIDs: []uint{g.project.ID},
		Sharing:    share(models.ScopeEveryone, models.AccessAccessible),
	}, pdf("slides"))
	require.NoError(t, err)
	require.NotNil(t, res.PublishLog)

	upd, err := g.assets.UpdateMetadata(ctx, owner, res.Presentation.ID, PresentationUpdate{
		Sharing: share(models.ScopeAllRegisteredUsers, models.AccessVisible),
	})
	require.NoError(t, err)
	require.NotNil(t, upd.PublishLog)
	assert.Equal(t, res.PublishLog.ID, upd.PublishLog.ID)
	assert.EqualValues(t, 1, testutil.Count(t, g.db, &models.ResourcePublishLog{}))
	assert.Len(t, g.notes.Requests(), 1)
	assert.Equal(t, models.ScopePrivate, g.reloadPresentation(t, res.Presentation.ID).Policy.Visibility())

	_, err = g.publish.Approve(ctx, authorization.ActorFor(g.gatekeeper), res.PublishLog.ID)
	require.NoError(t, err)
	p := g.reloadPresentation(t, res.Presentation.ID)
	assert.Equal(t, models.ScopeAllRegisteredUsers, p.Policy.SharingScope)
	assert.Equal(t, models.AccessVisible, p.Policy.AccessType)
	_, err = g.assets.Get(ctx, nil, p.ID)
	assert.ErrorIs(t, err, ErrAuthorizationDenied)
}

func TestStrictWaitingLogWithdrawnWhenNarrowed(t *testing.T) {
	g := newGatekept(t, true)
	owner := authorization.ActorFor(g.alice)
	res, err := g.assets.Create(ctx, owner, PresentationCreate{
		Title:      "Embargoed",
		ProjectIDs: []uint{g.project.ID},
		Sharing:    share(models.ScopeEveryone, models.AccessAccessible),
	}, pdf("slides"))
	require.NoError(t, err)
	require.NotNil(t, res.PublishLog)

	upd, err := g.assets.UpdateMetadata(ctx, owner, res.Presentation.ID, PresentationUpdate{
		Sharing: share(models.ScopePrivate, models.AccessNone),
	})
	require.NoError(t, err)
	require.NotNil(t, upd.PublishLog)
	assert.Equal(t, models.PublishStateRejected, upd.PublishLog.PublishState)

	var stored models.ResourcePublishLog
	require.NoError(t, g.db.First(&stored, res.PublishLog.ID).Error)
	assert.Equal(t, models.PublishStateRejected, stored.PublishState)
	assert.Equal(t, WithdrawnComment, stored.Comment)
	assert.Empty(t, stored.RequestedSharing)

	_, err = g.publish.Approve(ctx, authorization.ActorFor(g.gatekeeper), res.PublishLog.ID)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	p := g.reloadPresentation(t, res.Presentation.ID)
	assert.Equal(t, models.ScopePrivate, p.Policy.Visibility())
	_, err = g.assets.Get(ctx, nil, p.ID)
	assert.ErrorIs(t, err, ErrAuthorizationDenied)

	pending, err := g.publish.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestStrictNarrowingAppliesImmediately(t *testing.T) {
	g := newGatekept(t, true)
	owner := authorization.ActorFor(g.alice)
	res, err := g.assets.Create(ctx, owner, PresentationCreate{
		Title:      "Embargoed",
		ProjectIDs: []uint{g.project.ID},
		Sharing:    share(models.ScopeEveryone, models.AccessAccessible),
	}, pdf("slides"))
	require.NoError(t, err)

	_, err = g.assets.UpdateMetadata(ctx, owner, res.Presentation.ID, PresentationUpdate{
		Sharing: share(models.ScopeCustomPermissionsOnly, models.AccessVisible, personGrant(g.gatekeeper, models.AccessVisible)),
	})
	require.NoError(t, err)

	p := g.reloadPresentation(t, res.Presentation.ID)
	assert.Equal(t, models.ScopeCustomPermissionsOnly, p.Policy.SharingScope)
	_, err = g.assets.Get(ctx, authorization.ActorFor(g.gatekeeper), p.ID)
	assert.NoError(t, err)
}
