package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"recipe-ingest/internal/core/ai/queue"
	"recipe-ingest/internal/core/pipeline"
	"recipe-ingest/internal/core/store"
	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeGenerator 每個描述都生成同名的簡單食譜
type fakeGenerator struct{}

func (fakeGenerator) GenerateName(ctx context.Context, req common.GenerationRequest) (string, error) {
	return req.Description, nil
}

func (fakeGenerator) GenerateFull(ctx context.Context, req common.GenerationRequest, name string) (*common.GeneratedRecipe, error) {
	return &common.GeneratedRecipe{
		Recette: common.RecipeFields{
			Nom:              name,
			Description:      "Recette générée pour les tests",
			Instructions:     "Laver, couper puis cuire les légumes à feu doux pendant vingt minutes avant de servir.",
			TempsPreparation: 20,
			TempsCuisson:     20,
			Portions:         4,
			Difficulte:       2,
			TypesRepas:       []common.MealType{common.MealPlatPrincipal},
			Saison:           []common.Season{common.SeasonEte},
		},
		Ingredients: []common.GeneratedIngredient{
			{Nom: "Courgette", Quantite: 2, Unite: common.UnitPiece, Categorie: common.CategoryLegume},
		},
		Ustensiles: []common.GeneratedUtensil{
			{Nom: "Poêle", Categorie: common.UtensilCuisson, Obligatoire: true},
		},
	}, nil
}

func (fakeGenerator) GenerateIngredientDetails(ctx context.Context, name, hint string) (*common.GeneratedIngredient, error) {
	return nil, errors.New("not supported")
}

func (fakeGenerator) GenerateUtensilDetails(ctx context.Context, name, hint string) (*common.GeneratedUtensil, error) {
	return nil, errors.New("not supported")
}

func testConfig() *config.Config {
	return &config.Config{
		App:         config.AppConfig{Version: "test"},
		Server:      config.ServerConfig{RequestTimeout: 5 * time.Second, MaxBodyBytes: 4096},
		Queue:       config.QueueConfig{Workers: 2, MaxSize: 10},
		DedupWindow: time.Minute,
		Pipeline: config.PipelineConfig{
			Workers:              1,
			MaxBatchSize:         5,
			MinInstructionLength: 50,
			StrictMode:           true,
			SystemOwner:          "system",
			Precheck:             config.PrecheckConfig{Enabled: true, MaxKeywords: 4, MinOverlap: 2},
		},
	}
}

func newRouter(t *testing.T, cfg *config.Config, s store.Store) *Router {
	t.Helper()
	r, err := SetupRouter(cfg, Dependencies{
		Store:        s,
		Orchestrator: pipeline.NewOrchestrator(s, fakeGenerator{}, cfg.Pipeline),
		Queue:        queue.NewManager(cfg.Queue),
	})
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func batchBody(name string, descriptions ...string) string {
	items := make([]string, 0, len(descriptions))
	for _, d := range descriptions {
		items = append(items, fmt.Sprintf(`{"description": %q, "contraintes": {"saison": ["ete"]}}`, d))
	}
	return fmt.Sprintf(`{"metadata": {"batch_name": %q}, "recettes": [%s]}`, name, strings.Join(items, ","))
}

func TestProbes(t *testing.T) {
	r := newRouter(t, testConfig(), store.NewMemoryStore())

	w := do(r, http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ready")

	w = do(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "test", health["version"])
	queueStatus, ok := health["queue"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(2), queueStatus["workers"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestReadinessFailsWhenStoreIsDown(t *testing.T) {
	s := store.NewMemoryStore()
	r := newRouter(t, testConfig(), s)
	require.NoError(t, s.Close())

	w := do(r, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSubmitBatchThenLookup(t *testing.T) {
	s := store.NewMemoryStore()
	r := newRouter(t, testConfig(), s)

	w := do(r, http.MethodPost, "/api/v1/batches", batchBody("api", "Poêlée de courgettes"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var report pipeline.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "api", report.BatchName)
	assert.Equal(t, 1, report.Summary.Created)

	w = do(r, http.MethodGet, "/api/v1/recipes/lookup?name=POELEE+de+Courgettes", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"found":true`)

	w = do(r, http.MethodGet, "/api/v1/recipes/lookup?name=poele&kind=ustensile", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/v1/recipes/lookup?name=inconnue", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/api/v1/recipes/lookup", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/v1/recipes/lookup?name=x&kind=vin", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitDryRun(t *testing.T) {
	s := store.NewMemoryStore()
	r := newRouter(t, testConfig(), s)

	w := do(r, http.MethodPost, "/api/v1/batches?dry_run=true", batchBody("dry", "Tian de légumes"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report pipeline.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Summary.Validated)

	n, err := s.Recipes().Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	w = do(r, http.MethodPost, "/api/v1/batches?dry_run=peut-etre", batchBody("dry2", "Tian"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitRejectsInvalidDocuments(t *testing.T) {
	r := newRouter(t, testConfig(), store.NewMemoryStore())

	w := do(r, http.MethodPost, "/api/v1/batches", `{"recettes": [`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp common.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, common.ErrCodeValidationFailure, resp.Code)

	w = do(r, http.MethodPost, "/api/v1/batches", batchBody("big", "a1", "a2", "a3", "a4", "a5", "a6"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "maximum")
}

func TestDuplicateSubmissionIsRejected(t *testing.T) {
	r := newRouter(t, testConfig(), store.NewMemoryStore())
	body := batchBody("dup", "Gratin de courgettes")

	first := do(r, http.MethodPost, "/api/v1/batches?dry_run=true", body)
	require.Equal(t, http.StatusOK, first.Code)

	second := do(r, http.MethodPost, "/api/v1/batches?dry_run=true", body)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestBodySizeLimit(t *testing.T) {
	r := newRouter(t, testConfig(), store.NewMemoryStore())
	huge := batchBody("huge", strings.Repeat("x", 5000))

	w := do(r, http.MethodPost, "/api/v1/batches", huge)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRateLimitOnSubmissions(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, Requests: 1, Window: time.Hour}
	r := newRouter(t, cfg, store.NewMemoryStore())

	w := do(r, http.MethodPost, "/api/v1/batches?dry_run=true", batchBody("r1", "Salade"))
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, "/api/v1/batches?dry_run=true", batchBody("r2", "Soupe"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestValidateEndpoint(t *testing.T) {
	r := newRouter(t, testConfig(), store.NewMemoryStore())

	w := do(r, http.MethodPost, "/api/v1/recipes/validate", `{
		"recette": {"nom": "Ok", "instructions": "court", "temps_preparation": 0, "portions": 2, "difficulte": 9},
		"ingredients": [],
		"contraintes": {"saison": ["hiver"]}
	}`)
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		IsValid bool     `json:"is_valid"`
		Errors  []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.False(t, res.IsValid)
	assert.NotEmpty(t, res.Errors)

	w = do(r, http.MethodPost, "/api/v1/recipes/validate", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestTimeoutCoversLargestBatch(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, 5*time.Second, RequestTimeout(cfg))

	cfg.Server.RequestTimeout = 0
	cfg.Generator.CallTimeout = 90 * time.Second
	cfg.Pipeline.MaxBatchSize = 50
	cfg.Pipeline.Workers = 1
	assert.Equal(t, 50*4*90*time.Second, RequestTimeout(cfg))

	cfg.Pipeline.Workers = 4
	assert.Equal(t, 13*4*90*time.Second, RequestTimeout(cfg))

	cfg.Generator.CallTimeout = 0
	assert.Equal(t, defaultTimeout, RequestTimeout(cfg))
}

func TestSetupRouterRequiresDependencies(t *testing.T) {
	_, err := SetupRouter(testConfig(), Dependencies{})
	assert.Error(t, err)
}
