package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/beacons-backend-go/internal/bus"
	"github.com/jengzang/beacons-backend-go/internal/config"
	"github.com/jengzang/beacons-backend-go/internal/database"
	"github.com/jengzang/beacons-backend-go/internal/middleware"
	"github.com/jengzang/beacons-backend-go/internal/models"
	"github.com/jengzang/beacons-backend-go/internal/panel"
	"github.com/jengzang/beacons-backend-go/internal/repository"
	"github.com/jengzang/beacons-backend-go/internal/service"
	"github.com/jengzang/beacons-backend-go/internal/session"
	"github.com/jengzang/beacons-backend-go/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newService(t *testing.T) (*service.DashboardService, *repository.ExpandoRepository) {
	t.Helper()
	conn, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "beacons.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	repo := repository.NewExpandoRepository(conn)

	cache, err := session.NewCache(config.CacheConfig{MaxSizeMB: 16, CounterSize: 1000, TTLMinutes: 10})
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	svc := service.NewDashboardService(service.Options{Repo: repo, Bus: bus.NewMemoryBus(), Cache: cache})
	t.Cleanup(svc.Close)
	return svc, repo
}

// withSession fakes the auth middleware
func withSession(sid string, company int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.SessionKey, sid)
		c.Set(middleware.CompanyKey, company)
		c.Next()
	}
}

func post(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestFail_StatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{panel.ErrBusy, http.StatusConflict},
		{fmt.Errorf("x: %w", panel.ErrNotReady), http.StatusConflict},
		{fmt.Errorf("x: %w", models.ErrEmptyEvent), http.StatusUnprocessableEntity},
		{models.NewStoreError("read", models.ErrNotFound), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		fail(c, "failed", tc.err)
		assert.Equal(t, tc.want, w.Code, tc.err.Error())
	}
}

func TestPanelHandler_Validation(t *testing.T) {
	svc, _ := newService(t)
	h := NewPanelHandler(svc)

	r := gin.New()
	r.Use(withSession("s1", 1))
	r.POST("/event", h.SelectEvent)
	r.POST("/point", h.ClickPoint)
	r.POST("/beacon", h.SelectBeacon)
	r.POST("/row", h.SelectRow)

	assert.Equal(t, http.StatusBadRequest, post(r, "/event", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(r, "/point", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, post(r, "/beacon", `{"beacon":""}`).Code)
	assert.Equal(t, http.StatusConflict, post(r, "/beacon", `{"beacon":"GFI"}`).Code)
	assert.Equal(t, http.StatusConflict, post(r, "/row", `{"bucket":""}`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, post(r, "/event", `{"event":"Nope"}`).Code)
}

func TestPanelHandler_SelectEvent(t *testing.T) {
	svc, repo := newService(t)
	h := NewPanelHandler(svc)
	ctx := t.Context()

	_, err := repo.EnsureEventTable(ctx, 1, "Bar Night")
	require.NoError(t, err)
	at := time.Date(2014, 11, 4, 20, 0, 0, 0, time.UTC)
	for i, region := range []string{"Bar", "Venue"} {
		_, err := repo.AppendPing(ctx, 1, models.Ping{
			Event:   "Bar Night",
			ID:      fmt.Sprint(i),
			Date:    at.Add(time.Duration(i*10) * models.BucketWidth),
			Regions: []string{region},
		})
		require.NoError(t, err)
	}

	r := gin.New()
	r.Use(withSession("s1", 1))
	r.POST("/event", h.SelectEvent)

	w := post(r, "/event", `{"event":"Bar Night"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data panel.RegionView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data.Chart)
	assert.Equal(t, []string{"Bar Night"}, resp.Data.Events)
	assert.Len(t, resp.Data.Chart.Series, 2)
	assert.Len(t, resp.Data.Chart.Series[0].Points, 10)
}

func TestEventHandler_ListEvents(t *testing.T) {
	svc, repo := newService(t)
	_, err := repo.EnsureEventTable(t.Context(), 1, "France Symposium")
	require.NoError(t, err)
	_, err = repo.EnsureEventTable(t.Context(), 2, "Other Tenant")
	require.NoError(t, err)

	r := gin.New()
	r.Use(withSession("s1", 1))
	r.GET("/events", NewEventHandler(svc).ListEvents)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp.Data.(map[string]any)
	assert.Equal(t, []any{"France Symposium"}, data["events"])
}
