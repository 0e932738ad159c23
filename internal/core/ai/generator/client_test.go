package generator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"recipe-ingest/internal/core/ai/cache"
	"recipe-ingest/internal/core/ai/provider"
	"recipe-ingest/internal/core/ai/queue"
	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider 依序回傳預設的輸出
type stubProvider struct {
	mu      sync.Mutex
	model   string
	replies []func(ctx context.Context) (string, error)
	calls   int
	prompts []string
}

func (s *stubProvider) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.prompts = append(s.prompts, req.Messages[len(req.Messages)-1].Content)
	s.mu.Unlock()

	reply := s.replies[len(s.replies)-1]
	if i < len(s.replies) {
		reply = s.replies[i]
	}
	content, err := reply(ctx)
	if err != nil {
		return nil, err
	}
	return &provider.Response{Content: content, Model: s.model}, nil
}

func (s *stubProvider) GetModel() string { return s.model }
func (s *stubProvider) Close() error     { return nil }

func (s *stubProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func text(out string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return out, nil }
}

func fail(err error) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return "", err }
}

func hang() func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
}

const validRecipe = `Voici votre recette :
{"recette": {"nom": "Salade de tomates d'été", "description": "Fraîche", "instructions": "Couper les tomates en quartiers, assaisonner d'huile d'olive et servir bien frais.",
 "temps_preparation": 10, "temps_cuisson": 0, "portions": 2, "difficulte": 1, "regimes": ["vegan"], "types_repas": ["entree"], "saison": ["ete"], "cout_estime": 4.5, "calories": 120},
 "ingredients": [{"nom": "Tomate", "quantite": 300, "unite": "g", "optionnel": false, "categorie": "legume", "allergenes": [], "saison": ["ete"], "prix_moyen": 3}],
 "ustensiles": [{"nom": "Couteau", "categorie": "decoupe", "obligatoire": true, "description": "Couteau d'office"}]}
Bon appétit !`

func request() common.GenerationRequest {
	return common.GenerationRequest{
		Description: "Salade de tomates d'été",
		Contraintes: common.ConstraintSet{Saison: []common.Season{common.SeasonEte}},
	}
}

func TestGenerateFullParsesWrappedJSON(t *testing.T) {
	primary := &stubProvider{model: "primary", replies: []func(context.Context) (string, error){text(validRecipe)}}
	c := NewClient(primary)

	gen, err := c.GenerateFull(context.Background(), request(), "")
	require.NoError(t, err)
	assert.Equal(t, "Salade de tomates d'été", gen.Recette.Nom)
	require.Len(t, gen.Ingredients, 1)
	assert.Equal(t, common.UnitGramme, gen.Ingredients[0].Unite)
	assert.Equal(t, []common.Season{common.SeasonEte}, gen.Recette.Saison)
}

func TestFallbackUsedExactlyOnceOnPrimaryFailure(t *testing.T) {
	primary := &stubProvider{model: "primary", replies: []func(context.Context) (string, error){fail(errors.New("status 502"))}}
	fallback := &stubProvider{model: "fallback", replies: []func(context.Context) (string, error){text(`{"nom": "Gaspacho"}`)}}
	c := NewClient(primary, WithFallback(fallback))

	name, err := c.GenerateName(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "Gaspacho", name)
	assert.Equal(t, 1, primary.Calls())
	assert.Equal(t, 1, fallback.Calls())
}

func TestPrimarySuccessSkipsFallback(t *testing.T) {
	primary := &stubProvider{model: "primary", replies: []func(context.Context) (string, error){text(`{"nom": "Gaspacho"}`)}}
	fallback := &stubProvider{model: "fallback", replies: []func(context.Context) (string, error){text(`{"nom": "Autre"}`)}}
	c := NewClient(primary, WithFallback(fallback))

	_, err := c.GenerateName(context.Background(), request())
	require.NoError(t, err)
	assert.Zero(t, fallback.Calls())
}

func TestParseFailureWhenBothOutputsLackJSON(t *testing.T) {
	primary := &stubProvider{model: "primary", replies: []func(context.Context) (string, error){text("Désolé, je ne peux pas.")}}
	fallback := &stubProvider{model: "fallback", replies: []func(context.Context) (string, error){text("Toujours pas de JSON")}}
	c := NewClient(primary, WithFallback(fallback))

	_, err := c.GenerateFull(context.Background(), request(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrParseFailure))
	assert.Equal(t, common.ErrCodeParseFailure, common.ErrorCode(err))
	assert.Equal(t, 1, primary.Calls())
	assert.Equal(t, 1, fallback.Calls())
}

func TestMissingRequiredKeysIsParseFailure(t *testing.T) {
	primary := &stubProvider{model: "primary", replies: []func(context.Context) (string, error){text(`{"recette": {"nom": "X"}}`)}}
	c := NewClient(primary)

	_, err := c.GenerateFull(context.Background(), request(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrParseFailure))
	assert.Contains(t, err.Error(), "ingredients")
}

func TestGenerationFailureWhenBothTransportsFail(t *testing.T) {
	primary := &stubProvider{model: "primary", replies: []func(context.Context) (string, error){fail(errors.New("connection refused"))}}
	fallback := &stubProvider{model: "fallback", replies: []func(context.Context) (string, error){text("pas de JSON")}}
	c := NewClient(primary, WithFallback(fallback))

	_, err := c.GenerateName(context.Background(), request())
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrGenerationFailure))
	assert.False(t, errors.Is(err, common.ErrParseFailure))
}

func TestTimeoutFallsBack(t *testing.T) {
	primary := &stubProvider{model: "primary", replies: []func(context.Context) (string, error){hang()}}
	fallback := &stubProvider{model: "fallback", replies: []func(context.Context) (string, error){text(`{"nom": "Ratatouille"}`)}}
	c := NewClient(primary, WithFallback(fallback), WithCallTimeout(20*time.Millisecond))

	start := time.Now()
	name, err := c.GenerateName(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "Ratatouille", name)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCacheHitAvoidsProviderCall(t *testing.T) {
	ch := cache.NewManager(&config.CacheConfig{Enabled: true, MaxSize: 10, TTL: time.Minute})
	defer ch.Close()
	primary := &stubProvider{model: "primary", replies: []func(context.Context) (string, error){text(`{"nom": "Gaspacho"}`)}}
	c := NewClient(primary, WithCache(ch))

	for i := 0; i < 3; i++ {
		name, err := c.GenerateName(context.Background(), request())
		require.NoError(t, err)
		assert.Equal(t, "Gaspacho", name)
	}
	assert.Equal(t, 1, primary.Calls())
}

func TestUnparseableOutputIsNotCached(t *testing.T) {
	ch := cache.NewManager(&config.CacheConfig{Enabled: true, MaxSize: 10, TTL: time.Minute})
	defer ch.Close()
	primary := &stubProvider{model: "primary", replies: []func(context.Context) (string, error){
		text("rien"),
		text(`{"nom": "Gaspacho"}`),
	}}
	c := NewClient(primary, WithCache(ch))

	_, err := c.GenerateName(context.Background(), request())
	require.Error(t, err)

	name, err := c.GenerateName(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "Gaspacho", name)
	assert.Equal(t, 2, primary.Calls())
}

func TestQueueCountsCalls(t *testing.T) {
	q := queue.NewManager(config.QueueConfig{Workers: 1})
	primary := &stubProvider{model: "primary", replies: []func(context.Context) (string, error){text(`{"nom": "Gaspacho"}`)}}
	c := NewClient(primary, WithQueue(q))

	_, err := c.GenerateName(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, 1, q.GetQueueStatus().ProcessedCount)
}

func TestPromptsAreDeterministicAndEmbedVocabulary(t *testing.T) {
	a := fullPrompt(request(), "Salade", 50)
	b := fullPrompt(request(), "Salade", 50)
	assert.Equal(t, a, b)
	for _, v := range []string{"printemps", "sans_gluten", "cuillere_soupe", "fruits_a_coque", "electromenager", "plat_principal"} {
		assert.True(t, strings.Contains(a, v), "prompt should list %s", v)
	}
	assert.Contains(t, a, "Nom imposé : Salade")
}

func TestDetailsDefaultToRequestedName(t *testing.T) {
	primary := &stubProvider{model: "primary", replies: []func(context.Context) (string, error){
		text(`{"nom": "", "categorie": "decoupe", "obligatoire": true}`),
	}}
	c := NewClient(primary)

	u, err := c.GenerateUtensilDetails(context.Background(), "Couteau", "")
	require.NoError(t, err)
	assert.Equal(t, "Couteau", u.Nom)
	assert.Equal(t, common.UtensilDecoupe, u.Categorie)
}
