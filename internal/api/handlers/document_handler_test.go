package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/chartlock/internal/adapters/database"
	"github.com/clinicore/chartlock/internal/api/handlers"
	"github.com/clinicore/chartlock/internal/api/routes"
	"github.com/clinicore/chartlock/internal/application/services"
)

func newTestServer() http.Handler {
	repo := database.NewMemoryDocumentAdapter()
	snapshots := services.NewSnapshotService(database.NewMemorySnapshotAdapter())
	documents := services.NewDocumentService(
		repo, snapshots, services.NewViewTrackerService(repo),
		nil, nil, 30*time.Minute, nil,
	)
	amendments := services.NewAmendmentService(repo, snapshots, nil, nil, nil)

	router := routes.NewRouter(handlers.NewDocumentHandler(documents, amendments), nil, nil)
	return router.Setup(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

const createBody = `{
	"patient_id": "patient-001",
	"organization_id": "org-001",
	"title": "Cardiology consult",
	"content": {
		"variant": "structured",
		"note": {
			"subjective": "chest pain on exertion",
			"objective": "BP 128/82, HR 74",
			"assessment": "stable angina",
			"plan": "start aspirin"
		}
	}
}`

func doRequest(t *testing.T, server http.Handler, method, path, actor, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if actor != "" {
		req.Header.Set("X-Actor-ID", actor)
	}
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func createDocument(t *testing.T, server http.Handler) map[string]interface{} {
	t.Helper()
	rec := doRequest(t, server, http.MethodPost, "/api/documents", "dr-adams", createBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	return doc
}

func TestDocumentRoutes_Lifecycle(t *testing.T) {
	server := newTestServer()

	doc := createDocument(t, server)
	id := doc["id"].(string)
	assert.Equal(t, "draft", doc["status"])
	assert.Equal(t, float64(1), doc["version"])

	t.Run("get returns the document", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/api/documents/"+id, "nurse-okafor", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("stale expected version is a conflict", func(t *testing.T) {
		body := `{"content":{"variant":"structured","note":{"subjective":"s","objective":"o","assessment":"a","plan":"p"}},"expected_version":9}`
		rec := doRequest(t, server, http.MethodPut, "/api/documents/"+id, "dr-adams", body)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("a foreign lock answers 423", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPost, "/api/documents/"+id+"/lock", "dr-adams", "")
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doRequest(t, server, http.MethodPost, "/api/documents/"+id+"/lock", "dr-baker", "")
		assert.Equal(t, http.StatusLocked, rec.Code)

		rec = doRequest(t, server, http.MethodDelete, "/api/documents/"+id+"/lock", "dr-adams", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("finalize then reject further edits", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPost, "/api/documents/"+id+"/finalize", "dr-adams",
			`{"attestation":"reviewed and accurate"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var finalized map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &finalized))
		assert.Equal(t, "finalized", finalized["status"])
		assert.Equal(t, float64(2), finalized["version"])

		body := `{"content":{"variant":"structured","note":{"subjective":"s","objective":"o","assessment":"a","plan":"p"}}}`
		rec = doRequest(t, server, http.MethodPut, "/api/documents/"+id, "dr-adams", body)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("amendment derives a new document", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPost, "/api/documents/"+id+"/amendments", "dr-baker",
			`{"reason":"wrong dose recorded","section":"plan","text":"aspirin 81mg, not 810mg"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var amendment map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &amendment))
		assert.Equal(t, "amended", amendment["status"])
		assert.Equal(t, float64(1), amendment["amendment_number"])
		assert.NotEqual(t, id, amendment["id"])
	})

	t.Run("history lists the recorded snapshots", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/api/documents/"+id+"/history", "dr-adams", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var page map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		assert.Equal(t, float64(1), page["total"])
	})
}

func TestDocumentRoutes_Errors(t *testing.T) {
	server := newTestServer()

	t.Run("missing document answers 404", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/api/documents/no-such-doc", "dr-adams", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed content answers 400", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPost, "/api/documents", "dr-adams",
			`{"patient_id":"p","organization_id":"o","title":"t","content":{"variant":"imaging","note":{}}}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("incomplete note answers 422 on finalize", func(t *testing.T) {
		body := `{
			"patient_id": "patient-001",
			"organization_id": "org-001",
			"title": "Partial note",
			"content": {"variant":"structured","note":{"subjective":"headache"}}
		}`
		rec := doRequest(t, server, http.MethodPost, "/api/documents", "dr-adams", body)
		require.Equal(t, http.StatusCreated, rec.Code)
		var doc map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))

		rec = doRequest(t, server, http.MethodPost, "/api/documents/"+doc["id"].(string)+"/finalize", "dr-adams",
			`{"attestation":"reviewed"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("delete of a draft answers 204", func(t *testing.T) {
		doc := createDocument(t, server)
		rec := doRequest(t, server, http.MethodDelete, "/api/documents/"+doc["id"].(string)+"?reason=duplicate", "dr-adams", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = doRequest(t, server, http.MethodGet, "/api/documents/"+doc["id"].(string), "dr-adams", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("patient listing pages documents", func(t *testing.T) {
		createDocument(t, server)
		rec := doRequest(t, server, http.MethodGet, "/api/patients/patient-001/documents?limit=1", "dr-adams", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var page map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		assert.Len(t, page["documents"], 1)
	})
}
