package recipe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recipe-ingest/internal/core/audit"
	"recipe-ingest/internal/core/store"
	"recipe-ingest/internal/pkg/common"

	"go.uber.org/zap"
)

// CreateComplete 寫入食譜與所有關聯列；同名公開食譜已存在時直接回傳
func (w *Writer) CreateComplete(ctx context.Context, gen *common.GeneratedRecipe, ingredients IngredientMap, utensils UtensilMap) (*Result, error) {
	start := time.Now()

	if res := w.validator.ValidateCompleteRecipe(gen, common.ConstraintSet{}); !res.IsValid {
		return nil, res.Err("recette invalide")
	}
	name := gen.Recette.Nom

	existing, err := w.findExisting(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		w.skip(ctx, existing, start)
		return &Result{Data: existing}, nil
	}

	rec := toRecord(gen, common.GenerateUUID(), w.owner)
	var nIngredients, nUtensils int

	if tx, ok := w.store.(store.Transactor); ok {
		err = tx.WithinTx(ctx, func(s store.Store) error {
			if err := s.Recipes().Insert(ctx, rec); err != nil {
				return err
			}
			var err error
			if nIngredients, err = insertIngredientLinks(ctx, s.Recipes(), rec.ID, gen.Ingredients, ingredients); err != nil {
				return err
			}
			nUtensils, err = insertUtensilLinks(ctx, s.Recipes(), rec.ID, gen.Ustensiles, utensils)
			return err
		})
	} else {
		repo := w.store.Recipes()
		err = withRollbackOnFailure(ctx, []step{
			{
				name: "insert recipe",
				do:   func(ctx context.Context) error { return repo.Insert(ctx, rec) },
				undo: func(ctx context.Context) error { return repo.Delete(ctx, rec.ID) },
			},
			{
				name: "insert ingredient links",
				do: func(ctx context.Context) (err error) {
					nIngredients, err = insertIngredientLinks(ctx, repo, rec.ID, gen.Ingredients, ingredients)
					return err
				},
				undo: func(ctx context.Context) error { return repo.DeleteIngredientLinks(ctx, rec.ID) },
			},
			{
				name: "insert utensil links",
				do: func(ctx context.Context) (err error) {
					nUtensils, err = insertUtensilLinks(ctx, repo, rec.ID, gen.Ustensiles, utensils)
					return err
				},
				undo: func(ctx context.Context) error { return repo.DeleteUtensilLinks(ctx, rec.ID) },
			},
		})
	}

	if err != nil {
		if errors.Is(err, store.ErrUniqueViolation) {
			// 同名食譜在檢查之後被建立
			if existing, ferr := w.findExisting(ctx, name); ferr == nil && existing != nil {
				w.skip(ctx, existing, start)
				return &Result{Data: existing}, nil
			}
		}
		return nil, classify(name, err)
	}

	w.audit.LogEntityOperation(ctx, audit.KindRecipe, audit.ActionCreated,
		map[string]interface{}{
			"nom":         rec.Nom,
			"ingredients": nIngredients,
			"ustensiles":  nUtensils,
		},
		audit.WithEntityID(rec.ID),
		audit.WithDuration(time.Since(start)),
	)
	common.LogInfo("食譜已建立",
		zap.String("recipe_id", rec.ID),
		zap.String("nom", rec.Nom),
		zap.Int("ingredients", nIngredients),
		zap.Int("utensils", nUtensils),
	)
	return &Result{Data: rec, Created: true, Ingredients: nIngredients, Utensils: nUtensils}, nil
}

// FindExisting 以正規化名稱查找公開食譜，找不到時回傳 nil
func (w *Writer) FindExisting(ctx context.Context, name string) (*store.Recipe, error) {
	return w.findExisting(ctx, name)
}

func (w *Writer) findExisting(ctx context.Context, name string) (*store.Recipe, error) {
	repo := w.store.Recipes()
	found, err := repo.FindByNormalizedName(ctx, common.NormalizeName(name))
	if err == nil && found == nil {
		found, err = repo.FindByName(ctx, name)
	}
	if err != nil {
		return nil, common.NewPersistenceFailure(fmt.Sprintf("lookup recipe %q", name), err)
	}
	if found == nil || !found.IsPublic {
		return nil, nil
	}
	return found, nil
}

func (w *Writer) skip(ctx context.Context, existing *store.Recipe, start time.Time) {
	w.audit.LogEntityOperation(ctx, audit.KindRecipe, audit.ActionSkipped,
		map[string]interface{}{"nom": existing.Nom, "reason": "existe déjà"},
		audit.WithEntityID(existing.ID),
		audit.WithDuration(time.Since(start)),
	)
}

func insertIngredientLinks(ctx context.Context, repo store.RecipeRepository, recipeID string, items []common.GeneratedIngredient, resolved IngredientMap) (int, error) {
	for _, ing := range items {
		entity, ok := resolved[common.NormalizeName(ing.Nom)]
		if !ok || entity == nil {
			return 0, common.NewReferenceError(fmt.Sprintf("ingrédient %q non résolu", ing.Nom))
		}
		err := repo.InsertIngredientLink(ctx, store.RecipeIngredient{
			RecipeID:     recipeID,
			IngredientID: entity.ID,
			Quantite:     ing.Quantite,
			Unite:        string(ing.Unite),
			Optionnel:    ing.Optionnel,
		})
		if err != nil {
			return 0, err
		}
	}
	return len(items), nil
}

func insertUtensilLinks(ctx context.Context, repo store.RecipeRepository, recipeID string, items []common.GeneratedUtensil, resolved UtensilMap) (int, error) {
	linked := make(map[string]struct{}, len(items))
	for _, u := range items {
		entity, ok := resolved[common.NormalizeName(u.Nom)]
		if !ok || entity == nil {
			return 0, common.NewReferenceError(fmt.Sprintf("ustensile %q non résolu", u.Nom))
		}
		if _, dup := linked[entity.ID]; dup {
			continue
		}
		err := repo.InsertUtensilLink(ctx, store.RecipeUtensil{
			RecipeID:    recipeID,
			UtensilID:   entity.ID,
			Obligatoire: u.Obligatoire,
		})
		if err != nil {
			return 0, err
		}
		linked[entity.ID] = struct{}{}
	}
	return len(linked), nil
}

// classify 已分類的錯誤原樣回傳，其餘視為 PersistenceFailure
func classify(name string, err error) error {
	if errors.Is(err, common.ErrReferenceError) || common.IsValidationError(err) {
		return err
	}
	return common.NewPersistenceFailure(fmt.Sprintf("persist recipe %q", name), err)
}
