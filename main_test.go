package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"labshare/config"
	"labshare/models"
	"labshare/notifier"
	"labshare/providers/database"
	"labshare/services"
	"labshare/storage"
	"labshare/testutil"
)

type harness struct {
	router *gin.Engine
	db     *gorm.DB
	notes  *notifier.Recorder
}

func newHarness(t *testing.T, apiKey string) *harness {
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	log := zap.NewNop()
	cfg := &config.Config{APISecretKey: apiKey, SearchLimit: 100}
	notes := &notifier.Recorder{}
	svc := newServices(cfg, db, storage.NewMemoryStore(), notes, database.NewFetcher(db, log), log)
	return &harness{router: setupRouter(cfg, db, svc, log), db: db, notes: notes}
}

type request struct {
	method, path string
	user         uint
	body         io.Reader
	contentType  string
	apiKey       string
}

func (h *harness) do(r request) *httptest.ResponseRecorder {
	req := httptest.NewRequest(r.method, r.path, r.body)
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.user != 0 {
		req.Header.Set("X-USER-ID", fmt.Sprint(r.user))
	}
	if r.apiKey != "" {
		req.Header.Set("X-API-KEY", r.apiKey)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func jsonBody(t *testing.T, v any) io.Reader {
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func multipartBody(t *testing.T, fields map[string]string, filename, content string) (io.Reader, string) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		part, err := w.CreateFormFile("content", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type createResponse struct {
	Presentation models.Presentation        `json:"presentation"`
	PublishLog   *models.ResourcePublishLog `json:"publish_log"`
}

func TestHealthAndAPIKey(t *testing.T) {
	h := newHarness(t, "s3cret")

	assert.Equal(t, http.StatusOK, h.do(request{method: http.MethodGet, path: "/health"}).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(request{method: http.MethodGet, path: "/presentations"}).Code)
	assert.Equal(t, http.StatusOK, h.do(request{method: http.MethodGet, path: "/presentations", apiKey: "s3cret"}).Code)
}

func TestActorHeader(t *testing.T) {
	h := newHarness(t, "")
	req := httptest.NewRequest(http.MethodGet, "/presentations", nil)
	req.Header.Set("X-USER-ID", "abc")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusUnauthorized, h.do(request{method: http.MethodGet, path: "/presentations", user: 999}).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(request{method: http.MethodGet, path: "/presentations/abc"}).Code)
}

func TestPresentationLifecycle(t *testing.T) {
	h := newHarness(t, "")
	project := testutil.CreateProject(t, h.db, "Lab")
	alice := testutil.CreatePerson(t, h.db, "alice", project)
	bob := testutil.CreatePerson(t, h.db, "bob", project)

	body, ct := multipartBody(t, map[string]string{
		"metadata": fmt.Sprintf(`{"title":"Kickoff","project_ids":[%d]}`, project.ID),
	}, "kickoff.pdf", "first draft")
	w := h.do(request{method: http.MethodPost, path: "/presentations", user: alice.ID, body: body, contentType: ct})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[createResponse](t, w)
	id := created.Presentation.ID
	assert.Equal(t, 1, created.Presentation.Version)
	base := fmt.Sprintf("/presentations/%d", id)

	assert.Equal(t, http.StatusForbidden, h.do(request{method: http.MethodGet, path: base, user: bob.ID}).Code)
	assert.Equal(t, http.StatusOK, h.do(request{method: http.MethodGet, path: base, user: alice.ID}).Code)

	w = h.do(request{method: http.MethodPut, path: base, user: alice.ID, contentType: "application/json",
		body: strings.NewReader(`{"title":"Kickoff 2","version":5,"contributor_id":99}`)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[struct {
		Presentation  models.Presentation `json:"presentation"`
		IgnoredFields []string            `json:"ignored_fields"`
	}](t, w)
	assert.Equal(t, "Kickoff 2", updated.Presentation.Title)
	assert.Equal(t, 1, updated.Presentation.Version)
	assert.Equal(t, alice.ID, updated.Presentation.ContributorID)
	assert.Equal(t, []string{"contributor_id", "version"}, updated.IgnoredFields)

	body, ct = multipartBody(t, map[string]string{"revision_comments": "final"}, "kickoff-v2.pdf", "second draft")
	w = h.do(request{method: http.MethodPost, path: base + "/new-version", user: alice.ID, body: body, contentType: ct})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 2, decode[models.Presentation](t, w).Version)

	w = h.do(request{method: http.MethodPost, path: base + "/new-version", user: alice.ID, contentType: "application/json", body: strings.NewReader(`{}`)})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = h.do(request{method: http.MethodGet, path: base + "/download?version=1", user: alice.ID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "first draft", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), `attachment; filename="kickoff.pdf"`)

	w = h.do(request{method: http.MethodGet, path: base + "/download", user: alice.ID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "second draft", w.Body.String())

	w = h.do(request{method: http.MethodGet, path: base + "/preview", user: alice.ID})
	require.Equal(t, http.StatusOK, w.Code)
	preview := decode[services.Preview](t, w)
	assert.Equal(t, "Kickoff 2", preview.Title)
	assert.Equal(t, 2, preview.Version)
	assert.Equal(t, []string{"Lab"}, preview.Projects)

	assert.Equal(t, http.StatusBadRequest, h.do(request{method: http.MethodGet, path: base + "/download?version=x", user: alice.ID}).Code)
	assert.Equal(t, http.StatusNotFound, h.do(request{method: http.MethodGet, path: base + "/download?version=9", user: alice.ID}).Code)

	w = h.do(request{method: http.MethodGet, path: base + "/versions", user: alice.ID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.PresentationVersion](t, w), 2)

	assert.Equal(t, http.StatusForbidden, h.do(request{method: http.MethodDelete, path: base, user: bob.ID}).Code)
	assert.Equal(t, http.StatusOK, h.do(request{method: http.MethodDelete, path: base, user: alice.ID}).Code)
	assert.Equal(t, http.StatusNotFound, h.do(request{method: http.MethodGet, path: base, user: alice.ID}).Code)
}

func TestCreateValidationOverHTTP(t *testing.T) {
	h := newHarness(t, "")
	project := testutil.CreateProject(t, h.db, "Lab")
	alice := testutil.CreatePerson(t, h.db, "alice", project)
	loner := testutil.CreatePerson(t, h.db, "loner")

	w := h.do(request{method: http.MethodPost, path: "/presentations", user: alice.ID, contentType: "application/json",
		body: jsonBody(t, map[string]any{"title": "", "content_url": "https://files.example.org/a.pdf"})})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decode[map[string]any](t, w)["fields"], "title")

	w = h.do(request{method: http.MethodPost, path: "/presentations", user: loner.ID, contentType: "application/json",
		body: jsonBody(t, map[string]any{"title": "x", "content_url": "https://files.example.org/a.pdf"})})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRemoteContentRedirects(t *testing.T) {
	h := newHarness(t, "")
	project := testutil.CreateProject(t, h.db, "Lab")
	alice := testutil.CreatePerson(t, h.db, "alice", project)

	w := h.do(request{method: http.MethodPost, path: "/presentations", user: alice.ID, contentType: "application/json",
		body: jsonBody(t, map[string]any{
			"title":       "Linked",
			"content_url": "https://files.example.org/linked.pdf",
			"sharing":     map[string]any{"sharing_scope": models.ScopeEveryone, "access_type": models.AccessAccessible},
		})})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode[createResponse](t, w).Presentation.ID

	w = h.do(request{method: http.MethodGet, path: fmt.Sprintf("/presentations/%d/download", id)})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://files.example.org/linked.pdf", w.Header().Get("Location"))
}

func TestStrainRoutes(t *testing.T) {
	h := newHarness(t, "")
	project := testutil.CreateProject(t, h.db, "Lab")
	alice := testutil.CreatePerson(t, h.db, "alice", project)

	w := h.do(request{method: http.MethodPost, path: "/strains", user: alice.ID, contentType: "application/json",
		body: jsonBody(t, map[string]any{
			"title":       "K-12",
			"project_ids": []uint{project.ID},
			"genotypes":   []map[string]any{{"gene": "lacZ"}},
		})})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	st := decode[struct {
		Strain models.Strain `json:"strain"`
	}](t, w).Strain
	require.Len(t, st.Genotypes, 1)

	w = h.do(request{method: http.MethodGet, path: fmt.Sprintf("/strains?project_id=%d", project.ID), user: alice.ID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Strain](t, w), 1)
	assert.Equal(t, http.StatusBadRequest, h.do(request{method: http.MethodGet, path: "/strains?assay_id=x"}).Code)

	require.NoError(t, h.db.Create(&models.Specimen{Title: "Stock", StrainID: st.ID}).Error)
	path := fmt.Sprintf("/strains/%d", st.ID)
	assert.Equal(t, http.StatusConflict, h.do(request{method: http.MethodDelete, path: path, user: alice.ID}).Code)
	assert.Equal(t, http.StatusOK, h.do(request{method: http.MethodGet, path: path, user: alice.ID}).Code)

	w = h.do(request{method: http.MethodPut, path: path, user: alice.ID, contentType: "application/json",
		body: jsonBody(t, map[string]any{"genotypes": []map[string]any{{"id": st.Genotypes[0].ID, "_destroy": true}}})})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Zero(t, testutil.Count(t, h.db, &models.Genotype{}))
}

func TestPublishFlowOverHTTP(t *testing.T) {
	h := newHarness(t, "")
	gk := testutil.CreatePerson(t, h.db, "gatekeeper")
	project := testutil.CreateProject(t, h.db, "Gatekept lab", gk)
	alice := testutil.CreatePerson(t, h.db, "alice", project)

	w := h.do(request{method: http.MethodPost, path: "/presentations", user: alice.ID, contentType: "application/json",
		body: jsonBody(t, map[string]any{
			"title":       "Results",
			"project_ids": []uint{project.ID},
			"content_url": "https://files.example.org/results.pdf",
			"sharing":     map[string]any{"sharing_scope": models.ScopeEveryone, "access_type": models.AccessVisible},
		})})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[createResponse](t, w)
	require.NotNil(t, created.PublishLog)
	assert.Len(t, h.notes.Requests(), 1)

	w = h.do(request{method: http.MethodGet, path: "/publish-logs?state=waiting_for_approval", user: gk.ID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.ResourcePublishLog](t, w), 1)
	assert.Equal(t, http.StatusBadRequest, h.do(request{method: http.MethodGet, path: "/publish-logs?state=maybe", user: gk.ID}).Code)

	approve := fmt.Sprintf("/publish-logs/%d/approve", created.PublishLog.ID)
	reject := fmt.Sprintf("/publish-logs/%d/reject", created.PublishLog.ID)
	assert.Equal(t, http.StatusForbidden, h.do(request{method: http.MethodPost, path: approve, user: alice.ID}).Code)

	w = h.do(request{method: http.MethodPost, path: approve, user: gk.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.PublishStateApproved, decode[models.ResourcePublishLog](t, w).PublishState)
	assert.Equal(t, http.StatusOK, h.do(request{method: http.MethodPost, path: approve, user: gk.ID}).Code)

	w = h.do(request{method: http.MethodPost, path: reject, user: gk.ID, contentType: "application/json",
		body: strings.NewReader(`{"comment":"changed my mind"}`)})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSearchEndpoint(t *testing.T) {
	h := newHarness(t, "")
	project := testutil.CreateProject(t, h.db, "Lab")
	alice := testutil.CreatePerson(t, h.db, "alice", project)
	for title, scope := range map[string]models.SharingScope{"Kinase screen": models.ScopeEveryone, "Kinase draft": models.ScopePrivate} {
		w := h.do(request{method: http.MethodPost, path: "/presentations", user: alice.ID, contentType: "application/json",
			body: jsonBody(t, map[string]any{
				"title":       title,
				"content_url": "https://files.example.org/k.pdf",
				"sharing":     map[string]any{"sharing_scope": scope, "access_type": models.AccessVisible},
			})})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := h.do(request{method: http.MethodGet, path: "/search?search_query=kinase"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["count"])

	w = h.do(request{method: http.MethodGet, path: "/search?search_query=kinase&search_type=presentations", user: alice.ID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode[map[string]any](t, w)["count"])

	w = h.do(request{method: http.MethodGet, path: "/search?search_query="})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode[map[string]any](t, w)["count"])

	assert.Equal(t, http.StatusUnprocessableEntity, h.do(request{method: http.MethodGet, path: "/search?search_query=x&search_type=sops"}).Code)
}

func TestPreviewNeedsOnlyViewRight(t *testing.T) {
	h := newHarness(t, "")
	project := testutil.CreateProject(t, h.db, "Lab")
	alice := testutil.CreatePerson(t, h.db, "alice", project)

	body, ct := multipartBody(t, map[string]string{
		"metadata": `{"title":"Poster","sharing":{"sharing_scope":3,"access_type":1}}`,
	}, "poster.pdf", "bytes")
	w := h.do(request{method: http.MethodPost, path: "/presentations", user: alice.ID, body: body, contentType: ct})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	base := fmt.Sprintf("/presentations/%d", decode[createResponse](t, w).Presentation.ID)

	w = h.do(request{method: http.MethodGet, path: base + "/preview"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Poster", decode[services.Preview](t, w).Title)
	assert.NotContains(t, w.Body.String(), "bytes")

	assert.Equal(t, http.StatusForbidden, h.do(request{method: http.MethodGet, path: base + "/download"}).Code)
}
