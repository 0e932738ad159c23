package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"recipe-ingest/internal/core/store"
	"recipe-ingest/internal/core/store/storetest"
	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGenerator 依描述回傳預設的食譜
type stubGenerator struct {
	mu        sync.Mutex
	recipes   map[string]*common.GeneratedRecipe
	failures  map[string]error
	panics    map[string]bool
	nameCalls int
	fullCalls int
}

func newStub() *stubGenerator {
	return &stubGenerator{
		recipes:  make(map[string]*common.GeneratedRecipe),
		failures: make(map[string]error),
		panics:   make(map[string]bool),
	}
}

func (s *stubGenerator) add(description string, r *common.GeneratedRecipe) *stubGenerator {
	s.recipes[description] = r
	return s
}

func (s *stubGenerator) GenerateName(ctx context.Context, req common.GenerationRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nameCalls++
	if s.panics[req.Description] {
		panic("generator exploded")
	}
	if err := s.failures[req.Description]; err != nil {
		return "", err
	}
	r, ok := s.recipes[req.Description]
	if !ok {
		return "", common.NewGenerationFailure("no scripted recipe", nil)
	}
	return r.Recette.Nom, nil
}

func (s *stubGenerator) GenerateFull(ctx context.Context, req common.GenerationRequest, name string) (*common.GeneratedRecipe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fullCalls++
	r := s.recipes[req.Description]
	c := *r
	c.Ingredients = append([]common.GeneratedIngredient(nil), r.Ingredients...)
	c.Ustensiles = append([]common.GeneratedUtensil(nil), r.Ustensiles...)
	return &c, nil
}

func (s *stubGenerator) GenerateIngredientDetails(ctx context.Context, name, hint string) (*common.GeneratedIngredient, error) {
	return nil, errors.New("details unavailable")
}

func (s *stubGenerator) GenerateUtensilDetails(ctx context.Context, name, hint string) (*common.GeneratedUtensil, error) {
	return nil, errors.New("details unavailable")
}

func (s *stubGenerator) calls() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nameCalls, s.fullCalls
}

func makeRecipe(name string, ingredients ...string) *common.GeneratedRecipe {
	r := &common.GeneratedRecipe{
		Recette: common.RecipeFields{
			Nom:              name,
			Description:      "Une recette de test",
			Instructions:     "Préparer soigneusement tous les ingrédients, cuire doucement puis servir immédiatement.",
			TempsPreparation: 15,
			TempsCuisson:     10,
			Portions:         4,
			Difficulte:       2,
			TypesRepas:       []common.MealType{common.MealPlatPrincipal},
			Saison:           []common.Season{common.SeasonEte},
		},
		Ustensiles: []common.GeneratedUtensil{{Nom: "Couteau", Categorie: common.UtensilDecoupe, Obligatoire: true}},
	}
	for _, ing := range ingredients {
		r.Ingredients = append(r.Ingredients, common.GeneratedIngredient{
			Nom:       ing,
			Quantite:  100,
			Unite:     common.UnitGramme,
			Categorie: common.CategoryLegume,
			Saison:    []common.Season{common.SeasonEte},
		})
	}
	return r
}

func pipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		Workers:              1,
		MaxBatchSize:         10,
		MinInstructionLength: 50,
		StrictMode:           true,
		SystemOwner:          "system",
		Precheck:             config.PrecheckConfig{Enabled: true, MaxKeywords: 4, MinOverlap: 2},
	}
}

func input(name string, descriptions ...string) *Input {
	in := &Input{Metadata: Metadata{BatchName: name}}
	for _, d := range descriptions {
		in.Recettes = append(in.Recettes, common.GenerationRequest{
			Description: d,
			Contraintes: common.ConstraintSet{Saison: []common.Season{common.SeasonEte}},
		})
	}
	return in
}

func count(t *testing.T, s store.Store) (recipes, ingredients, utensils int) {
	t.Helper()
	ctx := context.Background()
	var err error
	recipes, err = s.Recipes().Count(ctx)
	require.NoError(t, err)
	ingredients, err = s.Ingredients().Count(ctx)
	require.NoError(t, err)
	utensils, err = s.Utensils().Count(ctx)
	require.NoError(t, err)
	return
}

func TestEndToEndSingleRecipe(t *testing.T) {
	storetest.ForEach(t, func(t *testing.T, s store.Store) {
		gen := newStub().add("Salade de tomates d'été", makeRecipe("Salade de tomates d'été", "Tomate"))
		o := NewOrchestrator(s, gen, pipelineConfig())

		report, err := o.Run(context.Background(), input("t1", "Salade de tomates d'été"), Options{})
		require.NoError(t, err)

		assert.Equal(t, 1, report.Summary.Created)
		assert.Equal(t, 0, report.Summary.Errors)
		assert.Equal(t, float64(100), report.Summary.SuccessRate)
		assert.False(t, report.HasErrors())
		require.Len(t, report.Created, 1)
		assert.NotEmpty(t, report.Created[0].ID)

		recipes, ingredients, utensils := count(t, s)
		assert.Equal(t, 1, recipes)
		assert.Equal(t, 1, ingredients)
		assert.Equal(t, 1, utensils)

		records, err := s.Audit().ListByBatch(context.Background(), "t1")
		require.NoError(t, err)
		assert.NotEmpty(t, records)
		require.NotNil(t, report.Audit)
		assert.Equal(t, 1, report.Audit.Counts.Get("recipe", "created"))
	})
}

func TestSecondRunIsIdempotent(t *testing.T) {
	for _, precheck := range []bool{true, false} {
		t.Run(fmt.Sprintf("precheck=%v", precheck), func(t *testing.T) {
			s := store.NewMemoryStore()
			gen := newStub().
				add("Salade de tomates d'été", makeRecipe("Salade de tomates d'été", "Tomate")).
				add("Gratin de courgettes", makeRecipe("Gratin de courgettes", "Courgette", "Tomate"))
			cfg := pipelineConfig()
			cfg.Precheck.Enabled = precheck
			o := NewOrchestrator(s, gen, cfg)
			in := input("idem", "Salade de tomates d'été", "Gratin de courgettes")

			first, err := o.Run(context.Background(), in, Options{})
			require.NoError(t, err)
			assert.Equal(t, 2, first.Summary.Created)
			r1, i1, u1 := count(t, s)

			second, err := o.Run(context.Background(), in, Options{})
			require.NoError(t, err)
			assert.Equal(t, 0, second.Summary.Created)
			assert.Equal(t, 2, second.Summary.Skipped)
			assert.Equal(t, 0, second.Summary.Errors)

			r2, i2, u2 := count(t, s)
			assert.Equal(t, []int{r1, i1, u1}, []int{r2, i2, u2})

			_, full := gen.calls()
			assert.Equal(t, 2, full, "no full generation on the second run")
		})
	}
}

func TestPrecheckAvoidsGeneratorCalls(t *testing.T) {
	s := store.NewMemoryStore()
	gen := newStub().add("Salade de tomates d'été", makeRecipe("Salade de tomates d'été", "Tomate"))
	o := NewOrchestrator(s, gen, pipelineConfig())

	_, err := o.Run(context.Background(), input("a", "Salade de tomates d'été"), Options{})
	require.NoError(t, err)

	report, err := o.Run(context.Background(), input("b", "Salade fraîche de tomates"), Options{})
	require.NoError(t, err)
	require.Len(t, report.Skipped, 1)
	assert.Contains(t, report.Skipped[0].Reason, "similaire")

	names, _ := gen.calls()
	assert.Equal(t, 1, names)
}

func TestPrecheckThresholdIsCappedByKeywordCount(t *testing.T) {
	s := store.NewMemoryStore()
	gen := newStub().
		add("Ratatouille", makeRecipe("Ratatouille", "Aubergine")).
		add("Tarte aux pommes", makeRecipe("Tarte aux pommes", "Pomme")).
		add("Tarte aux courgettes", makeRecipe("Tarte aux courgettes", "Courgette"))
	o := NewOrchestrator(s, gen, pipelineConfig())

	_, err := o.Run(context.Background(), input("a", "Ratatouille", "Tarte aux pommes"), Options{})
	require.NoError(t, err)

	// un seul mot-clé : le seuil de 2 est ramené à 1
	report, err := o.Run(context.Background(), input("b", "Ratatouille"), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.Skipped)

	// "tarte" seule ne suffit pas face à deux mots-clés
	report, err = o.Run(context.Background(), input("c", "Tarte aux courgettes"), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.Created)
}

func TestPrecheckMatchesAccentedDescriptions(t *testing.T) {
	storetest.ForEach(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		require.NoError(t, s.Recipes().Insert(ctx, &store.Recipe{
			ID:               common.GenerateUUID(),
			Nom:              "Tarte fine",
			NomNormalise:     "tarte fine",
			Description:      "Pêches rôties au four",
			Instructions:     "Étaler la pâte, disposer les pêches et cuire vingt minutes.",
			TempsPreparation: 15,
			Portions:         6,
			Difficulte:       2,
			IsPublic:         true,
		}))
		gen := newStub()
		o := NewOrchestrator(s, gen, pipelineConfig())

		report, err := o.Run(ctx, input("accents", "Pêches rôties"), Options{})
		require.NoError(t, err)
		assert.Equal(t, 1, report.Summary.Skipped)
		assert.Equal(t, 0, report.Summary.Created)

		names, full := gen.calls()
		assert.Zero(t, names)
		assert.Zero(t, full)
	})
}

func TestPrivateEntriesDoNotBlockPublicCreation(t *testing.T) {
	storetest.ForEach(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		privateRecipe := &store.Recipe{
			ID:               common.GenerateUUID(),
			Nom:              "Ratatouille",
			NomNormalise:     "ratatouille",
			Instructions:     "La version personnelle d'un utilisateur, mijotée longuement.",
			TempsPreparation: 20,
			Portions:         4,
			Difficulte:       2,
			OwnerID:          "user-42",
		}
		require.NoError(t, s.Recipes().Insert(ctx, privateRecipe))
		privateIngredient := &store.Ingredient{
			ID:           common.GenerateUUID(),
			Nom:          "Aubergine",
			NomNormalise: "aubergine",
			Categorie:    common.CategoryLegume,
			OwnerID:      "user-42",
		}
		require.NoError(t, s.Ingredients().Insert(ctx, privateIngredient))

		gen := newStub().add("Ratatouille", makeRecipe("Ratatouille", "Aubergine"))
		cfg := pipelineConfig()
		cfg.Precheck.Enabled = false
		o := NewOrchestrator(s, gen, cfg)

		report, err := o.Run(ctx, input("public", "Ratatouille"), Options{})
		require.NoError(t, err)
		require.Empty(t, report.Errors)
		require.Len(t, report.Created, 1)
		assert.NotEqual(t, privateRecipe.ID, report.Created[0].ID)

		recipes, ingredients, _ := count(t, s)
		assert.Equal(t, 2, recipes)
		assert.Equal(t, 2, ingredients)

		links, err := s.Recipes().ListIngredientLinks(ctx, report.Created[0].ID)
		require.NoError(t, err)
		require.Len(t, links, 1)
		assert.NotEqual(t, privateIngredient.ID, links[0].IngredientID, "public recipes never link private ingredients")
	})
}

func TestPartialFailureIsolation(t *testing.T) {
	storetest.ForEach(t, func(t *testing.T, s store.Store) {
		gen := newStub().
			add("Salade de tomates d'été", makeRecipe("Salade de tomates d'été", "Tomate")).
			add("Soupe de potiron", makeRecipe("Soupe de potiron", "Potiron")).
			add("Tarte aux pommes", makeRecipe("Tarte aux pommes", "Pomme"))
		gen.failures["Soupe de potiron"] = common.NewGenerationFailure("primary and fallback failed", errors.New("status 503"))
		o := NewOrchestrator(s, gen, pipelineConfig())

		report, err := o.Run(context.Background(), input("partial", "Salade de tomates d'été", "Soupe de potiron", "Tarte aux pommes"), Options{})
		require.NoError(t, err)

		assert.Equal(t, 2, report.Summary.Created+report.Summary.Skipped)
		assert.Equal(t, 1, report.Summary.Errors)
		assert.True(t, report.HasErrors())
		require.Len(t, report.Errors, 1)
		assert.Equal(t, "Soupe de potiron", report.Errors[0].Description)
		assert.Equal(t, common.ErrCodeGenerationFailure, report.Errors[0].Code)
		assert.Equal(t, StageNameGeneration, report.Errors[0].Stage)

		found, err := s.Recipes().FindByNormalizedName(context.Background(), common.NormalizeName("Soupe de potiron"))
		require.NoError(t, err)
		assert.Nil(t, found)
		potiron, err := s.Ingredients().FindByNormalizedName(context.Background(), "potiron")
		require.NoError(t, err)
		assert.Nil(t, potiron)
	})
}

func TestValidationFailureIsTerminal(t *testing.T) {
	s := store.NewMemoryStore()
	bad := makeRecipe("Pâtes sans gluten", "Pâtes")
	bad.Recette.Regimes = []common.Diet{common.DietSansGluten}
	bad.Ingredients[0].Categorie = common.CategoryCereale
	bad.Ingredients[0].Allergenes = []common.Allergen{common.AllergenGluten}
	gen := newStub().add("Pâtes sans gluten", bad)
	o := NewOrchestrator(s, gen, pipelineConfig())

	report, err := o.Run(context.Background(), input("v", "Pâtes sans gluten"), Options{})
	require.NoError(t, err)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, common.ErrCodeValidationFailure, report.Errors[0].Code)
	assert.Equal(t, StageValidation, report.Errors[0].Stage)
	assert.Contains(t, report.Errors[0].Error, "Pâtes")

	_, ingredients, _ := count(t, s)
	assert.Zero(t, ingredients)
}

// brokenUtensils 拒絕寫入指定名稱的器具
type brokenUtensils struct {
	store.EntityRepository[*store.Utensil]
	name string
}

func (b brokenUtensils) Insert(ctx context.Context, u *store.Utensil) error {
	if u.Nom == b.name {
		return errors.New("disk full")
	}
	return b.EntityRepository.Insert(ctx, u)
}

type brokenUtensilStore struct {
	*store.MemoryStore
}

func (b brokenUtensilStore) Utensils() store.EntityRepository[*store.Utensil] {
	return brokenUtensils{EntityRepository: b.MemoryStore.Utensils(), name: "Poêle"}
}

func TestUnresolvedUtensilFailsConsistencyCheck(t *testing.T) {
	mem := store.NewMemoryStore()
	r := makeRecipe("Crêpes légères", "Farine")
	r.Ustensiles = append(r.Ustensiles, common.GeneratedUtensil{Nom: "Poêle", Categorie: common.UtensilCuisson})
	gen := newStub().add("Crêpes légères", r)
	o := NewOrchestrator(brokenUtensilStore{mem}, gen, pipelineConfig())

	report, err := o.Run(context.Background(), input("c", "Crêpes légères"), Options{})
	require.NoError(t, err)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, common.ErrCodeReferenceError, report.Errors[0].Code)
	assert.Equal(t, StageConsistencyCheck, report.Errors[0].Stage)
	assert.Contains(t, report.Errors[0].Error, "Poêle")

	recipes, _, _ := count(t, mem)
	assert.Zero(t, recipes)
}

func TestPanicIsIsolatedToItem(t *testing.T) {
	s := store.NewMemoryStore()
	gen := newStub().
		add("Salade de tomates d'été", makeRecipe("Salade de tomates d'été", "Tomate")).
		add("Tarte aux pommes", makeRecipe("Tarte aux pommes", "Pomme"))
	gen.panics["Soupe de potiron"] = true
	o := NewOrchestrator(s, gen, pipelineConfig())

	report, err := o.Run(context.Background(), input("p", "Salade de tomates d'été", "Soupe de potiron", "Tarte aux pommes"), Options{Workers: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Summary.Created)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Error, "panic")
}

func TestDryRunWritesNothing(t *testing.T) {
	s := store.NewMemoryStore()
	gen := newStub().add("Salade de tomates d'été", makeRecipe("Salade de tomates d'été", "Tomate"))
	o := NewOrchestrator(s, gen, pipelineConfig())

	report, err := o.Run(context.Background(), input("dry", "Salade de tomates d'été"), Options{DryRun: true})
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Summary.Validated)
	assert.Zero(t, report.Summary.Created)

	recipes, ingredients, utensils := count(t, s)
	assert.Zero(t, recipes+ingredients+utensils)
	records, err := s.Audit().ListByBatch(context.Background(), "dry")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestConcurrentItemsShareNewIngredient(t *testing.T) {
	storetest.ForEach(t, func(t *testing.T, s store.Store) {
		gen := newStub()
		var descriptions []string
		for _, d := range []string{"Gaspacho andalou", "Bruschetta italienne", "Coulis maison rapide", "Tian provençal"} {
			gen.add(d, makeRecipe(d, "Tomate", "Basilic"))
			descriptions = append(descriptions, d)
		}
		cfg := pipelineConfig()
		cfg.Precheck.Enabled = false
		o := NewOrchestrator(s, gen, cfg)

		report, err := o.Run(context.Background(), input("conc", descriptions...), Options{Workers: 4})
		require.NoError(t, err)
		assert.Equal(t, 4, report.Summary.Created, "errors: %v", report.Errors)

		recipes, ingredients, utensils := count(t, s)
		assert.Equal(t, 4, recipes)
		assert.Equal(t, 2, ingredients)
		assert.Equal(t, 1, utensils)
	})
}

func TestDuplicateNamesInOneBatchCreateOnce(t *testing.T) {
	s := store.NewMemoryStore()
	gen := newStub().
		add("Salade estivale", makeRecipe("Salade composée", "Tomate")).
		add("Salade composée du marché", makeRecipe("Salade composée", "Tomate"))
	cfg := pipelineConfig()
	cfg.Precheck.Enabled = false
	o := NewOrchestrator(s, gen, cfg)

	report, err := o.Run(context.Background(), input("dup", "Salade estivale", "Salade composée du marché"), Options{Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.Created)
	assert.Equal(t, 1, report.Summary.Skipped)
}

func TestRunRejectsInvalidBatch(t *testing.T) {
	o := NewOrchestrator(store.NewMemoryStore(), newStub(), pipelineConfig())
	_, err := o.Run(context.Background(), &Input{}, Options{})
	require.Error(t, err)
	assert.True(t, common.IsValidationError(err))
}
