package microsurvey

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func triggerRouter(t *testing.T, store *fakeActorStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	orch := testOrchestrator(t, store, &recordingBus{}, 100)
	router := gin.New()
	NewHandler(orch).RegisterInternalRoutes(router.Group("/internal/v1"))
	return router
}

func postTrigger(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/internal/v1/survey/trigger", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestTriggerEndpoint_ActionOnly(t *testing.T) {
	store := newFakeActorStore()
	store.candidates = []int64{7, 8}
	router := triggerRouter(t, store)

	w := postTrigger(router, `{"action":"start_microsurvey"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"started":2`)
	require.NotNil(t, store.state(7))
	require.NotNil(t, store.state(8))
}

func TestTriggerEndpoint_ExplicitUsers(t *testing.T) {
	store := newFakeActorStore()
	router := triggerRouter(t, store)

	w := postTrigger(router, `{"user_ids":[42]}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"started":1`)
	require.NotNil(t, store.state(42))
}

func TestTriggerEndpoint_NoTargets(t *testing.T) {
	store := newFakeActorStore()
	router := triggerRouter(t, store)

	w := postTrigger(router, `{}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, store.states)
}
