package draft

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mcdev12/draftclock/go/internal/auth"
	"github.com/mcdev12/draftclock/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *lifecycleFixture) serve(method, path, userID, body string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	NewService(f.app).RegisterRoutes(mux)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set(auth.HeaderUserID, userID)
	}
	rec := httptest.NewRecorder()
	auth.Identify(mux).ServeHTTP(rec, req)
	return rec
}

func TestService_Lifecycle(t *testing.T) {
	f := newLifecycleFixture(t)
	base := "/api/drafts/" + f.id().String()
	commish := f.commish.ID.String()

	rec := f.serve(http.MethodPost, base+"/start", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.serve(http.MethodPost, base+"/pause", commish, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.serve(http.MethodPost, base+"/start", commish, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp DraftResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.DraftStatusInProgress, resp.Draft.Status)

	rec = f.serve(http.MethodPost, base+"/pause", commish, `{"reason":"technical issue"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Draft.IsPaused)

	rec = f.serve(http.MethodPost, base+"/resume", commish, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.serve(http.MethodGet, base, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Draft.IsPaused)
	assert.Equal(t, 1, *resp.Draft.CurrentPick)
}

func TestService_NotFoundAndBadInput(t *testing.T) {
	f := newLifecycleFixture(t)

	rec := f.serve(http.MethodGet, "/api/drafts/"+f.commish.ID.String(), "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.serve(http.MethodGet, "/api/drafts/nope", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.serve(http.MethodPost, "/api/drafts/"+f.id().String()+"/pause", f.commish.ID.String(), `{"why":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
