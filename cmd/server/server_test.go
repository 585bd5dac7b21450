package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/compassplan/compass/internal/attribution"
	"github.com/compassplan/compass/internal/cache"
	"github.com/compassplan/compass/internal/database"
	"github.com/compassplan/compass/internal/monitoring"
	"github.com/compassplan/compass/internal/security"
	"github.com/compassplan/compass/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEnv(t *testing.T) (*database.Repository, *database.TenantService, *database.PlanningService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := database.NewRepository(db)
	return repo, database.NewTenantService(repo, "test-secret"), database.NewPlanningService(repo)
}

func TestTenantAuth(t *testing.T) {
	repo, tenantService, _ := newTestEnv(t)

	tenant, err := repo.GetOrCreateTenant("", "Acme")
	require.NoError(t, err)

	token, err := tenantService.GenerateSessionToken(tenant.ID)
	require.NoError(t, err)

	router := gin.New()
	router.GET("/protected", tenantAuth(tenantService, repo), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tenant_id": c.GetString("tenant_id")})
	})

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/protected", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tenant.ID, body["tenant_id"])
	})
}

func seedGraph(t *testing.T, repo *database.Repository, tenantID string) {
	t.Helper()

	j1 := database.NewJob(tenantID, "Rewrite docs", "")
	j2 := database.NewJob(tenantID, "Launch referrals", "")
	require.NoError(t, repo.CreateJob(j1))
	require.NoError(t, repo.CreateJob(j2))

	output := database.NewOutput(tenantID, "Signups", 1000, "users")
	require.NoError(t, repo.CreateOutput(output))

	outcome := database.NewOutcome(tenantID, "Revenue", 1e6, 2e5, 1e5, 50)
	require.NoError(t, repo.CreateOutcome(outcome))

	require.NoError(t, repo.CreateJobOutputMapping(
		database.NewJobOutputMapping(tenantID, j1.ID, output.ID, 30, 1000)))
	require.NoError(t, repo.CreateJobOutputMapping(
		database.NewJobOutputMapping(tenantID, j2.ID, output.ID, 70, 1000)))
	require.NoError(t, repo.CreateOutputOutcomeMapping(
		database.NewOutputOutcomeMapping(tenantID, output.ID, outcome.ID, 100)))
}

type chartResponse struct {
	View string `json:"view"`
	Bars []struct {
		ID          string  `json:"id"`
		Name        string  `json:"name"`
		TotalImpact float64 `json:"total_impact"`
		Segments    []struct {
			Label      string  `json:"label"`
			Percentage float64 `json:"percentage"`
			Left       float64 `json:"left"`
			Color      string  `json:"color"`
		} `json:"segments"`
	} `json:"bars"`
}

func TestChartHandlerJobOutcome(t *testing.T) {
	repo, _, planningService := newTestEnv(t)

	tenant, err := repo.GetOrCreateTenant("", "Acme")
	require.NoError(t, err)
	seedGraph(t, repo, tenant.ID)

	router := gin.New()
	router.GET("/chart", func(c *gin.Context) {
		c.Set("tenant_id", tenant.ID)
	}, chartHandler(planningService, monitoring.NewLogger(), "job-outcome", attribution.JobOutcomeBreakdowns))

	req := httptest.NewRequest("GET", "/chart", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp chartResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "job-outcome", resp.View)
	require.Len(t, resp.Bars, 2)

	// Default sort is high to low, so the 70% job comes first.
	assert.Equal(t, "Launch referrals", resp.Bars[0].Name)
	assert.InDelta(t, 70, resp.Bars[0].TotalImpact, 1e-9)
	assert.Equal(t, "Rewrite docs", resp.Bars[1].Name)
	assert.InDelta(t, 30, resp.Bars[1].TotalImpact, 1e-9)

	require.Len(t, resp.Bars[0].Segments, 1)
	assert.Equal(t, "Revenue", resp.Bars[0].Segments[0].Label)
	assert.InDelta(t, 70, resp.Bars[0].Segments[0].Percentage, 1e-9)
	assert.Equal(t, 0.0, resp.Bars[0].Segments[0].Left)
	assert.NotEmpty(t, resp.Bars[0].Segments[0].Color)
}

func TestChartHandlerSortAscending(t *testing.T) {
	repo, _, planningService := newTestEnv(t)

	tenant, err := repo.GetOrCreateTenant("", "Acme")
	require.NoError(t, err)
	seedGraph(t, repo, tenant.ID)

	router := gin.New()
	router.GET("/chart", func(c *gin.Context) {
		c.Set("tenant_id", tenant.ID)
	}, chartHandler(planningService, monitoring.NewLogger(), "job-outcome", attribution.JobOutcomeBreakdowns))

	req := httptest.NewRequest("GET", "/chart?sort=low", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp chartResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Bars, 2)
	assert.Equal(t, "Rewrite docs", resp.Bars[0].Name)
}

func TestChartHandlerEmptyTenant(t *testing.T) {
	repo, _, planningService := newTestEnv(t)

	tenant, err := repo.GetOrCreateTenant("", "Empty")
	require.NoError(t, err)

	router := gin.New()
	router.GET("/chart", func(c *gin.Context) {
		c.Set("tenant_id", tenant.ID)
	}, chartHandler(planningService, monitoring.NewLogger(), "job-output", attribution.JobOutputBreakdowns))

	req := httptest.NewRequest("GET", "/chart", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp chartResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Bars)
}

func newPlanningRouter(t *testing.T) (*gin.Engine, *database.Repository, string) {
	t.Helper()
	repo, _, planningService := newTestEnv(t)

	tenant, err := repo.GetOrCreateTenant("", "Acme")
	require.NoError(t, err)

	router := gin.New()
	api := router.Group("/api", func(c *gin.Context) { c.Set("tenant_id", tenant.ID) })
	registerPlanningRoutes(api, repo, planningService,
		security.NewSecurityMiddleware(security.DefaultSecurityConfig()),
		cache.NewCache(time.Minute), monitoring.NewMetrics(), monitoring.NewLogger())

	return router, repo, tenant.ID
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestWritesRecalculateJobImpacts(t *testing.T) {
	router, repo, tenantID := newPlanningRouter(t)

	w := doJSON(t, router, "POST", "/api/jobs", types.JobRequest{Name: "Rewrite docs"})
	require.Equal(t, http.StatusCreated, w.Code)
	var j1 database.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &j1))

	w = doJSON(t, router, "POST", "/api/jobs", types.JobRequest{Name: "Launch referrals"})
	require.Equal(t, http.StatusCreated, w.Code)
	var j2 database.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &j2))

	w = doJSON(t, router, "POST", "/api/outputs", types.OutputRequest{Name: "Signups", Target: 1000, Unit: "users"})
	require.Equal(t, http.StatusCreated, w.Code)
	var output database.Output
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &output))

	w = doJSON(t, router, "POST", "/api/outcomes", types.OutcomeRequest{Name: "Revenue", Points: 50})
	require.Equal(t, http.StatusCreated, w.Code)
	var outcome database.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &outcome))

	w = doJSON(t, router, "POST", "/api/job-output-mappings", types.JobOutputMappingRequest{
		JobID: j1.ID, OutputID: output.ID, ImpactValue: 30, Target: 1000,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, "POST", "/api/job-output-mappings", types.JobOutputMappingRequest{
		JobID: j2.ID, OutputID: output.ID, ImpactValue: 70, Target: 1000,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var j2Edge database.JobOutputMapping
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &j2Edge))

	w = doJSON(t, router, "POST", "/api/output-outcome-mappings", types.OutputOutcomeMappingRequest{
		OutputID: output.ID, OutcomeID: outcome.ID, Impact: 100,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// The cached scalars are fresh straight after the writes, with no
	// explicit recalculation call in between.
	jobs, err := repo.ListJobs(tenantID)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	byName := map[string]float64{}
	for _, j := range jobs {
		byName[j.Name] = j.Impact
	}
	assert.InDelta(t, 30, byName["Rewrite docs"], 1e-9)
	assert.InDelta(t, 70, byName["Launch referrals"], 1e-9)

	// Removing an edge reshuffles every remaining job's share as well.
	w = doJSON(t, router, "DELETE", "/api/job-output-mappings/"+j2Edge.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	jobs, err = repo.ListJobs(tenantID)
	require.NoError(t, err)
	byName = map[string]float64{}
	for _, j := range jobs {
		byName[j.Name] = j.Impact
	}
	assert.InDelta(t, 100, byName["Rewrite docs"], 1e-9)
	assert.InDelta(t, 0, byName["Launch referrals"], 1e-9)
}

func TestHandleErrorMapsNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/missing", func(c *gin.Context) {
		handleError(c, fmt.Errorf("job not found: %w", sql.ErrNoRows))
	})

	req := httptest.NewRequest("GET", "/missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
