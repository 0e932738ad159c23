package resolver

import (
	"context"
	"fmt"
	"strings"

	"recipe-ingest/internal/core/audit"
	"recipe-ingest/internal/core/store"
	"recipe-ingest/internal/core/validation"
	"recipe-ingest/internal/pkg/common"
)

// DetailGenerator 補齊不完整實體的生成器
type DetailGenerator interface {
	GenerateIngredientDetails(ctx context.Context, name, hint string) (*common.GeneratedIngredient, error)
	GenerateUtensilDetails(ctx context.Context, name, hint string) (*common.GeneratedUtensil, error)
}

type (
	// IngredientResolver 食材解析器
	IngredientResolver = Resolver[*store.Ingredient, common.GeneratedIngredient]
	// UtensilResolver 器具解析器
	UtensilResolver = Resolver[*store.Utensil, common.GeneratedUtensil]
)

// NewIngredientResolver 建立食材解析器；details 可為 nil
func NewIngredientResolver(repo store.EntityRepository[*store.Ingredient], v *validation.Validator, details DetailGenerator,
	locks *KeyedMutex, rec *audit.Recorder, owner string) *IngredientResolver {
	def := Definition[*store.Ingredient, common.GeneratedIngredient]{
		Kind:     audit.KindIngredient,
		Name:     func(g common.GeneratedIngredient) string { return g.Nom },
		Validate: v.ValidateIngredientEntity,
		Build:    buildIngredient,
	}
	if details != nil {
		def.Enrich = func(ctx context.Context, g common.GeneratedIngredient) (common.GeneratedIngredient, error) {
			out, err := details.GenerateIngredientDetails(ctx, g.Nom, ingredientHint(g))
			if err != nil {
				return g, err
			}
			// 名稱與份量以原始項目為準
			out.Nom = g.Nom
			out.Quantite, out.Unite, out.Optionnel = g.Quantite, g.Unite, g.Optionnel
			return *out, nil
		}
	}
	return New(repo, def, locks, rec, owner)
}

// NewUtensilResolver 建立器具解析器；details 可為 nil
func NewUtensilResolver(repo store.EntityRepository[*store.Utensil], v *validation.Validator, details DetailGenerator,
	locks *KeyedMutex, rec *audit.Recorder, owner string) *UtensilResolver {
	def := Definition[*store.Utensil, common.GeneratedUtensil]{
		Kind:     audit.KindUtensil,
		Name:     func(g common.GeneratedUtensil) string { return g.Nom },
		Validate: v.ValidateUtensil,
		Build:    buildUtensil,
	}
	if details != nil {
		def.Enrich = func(ctx context.Context, g common.GeneratedUtensil) (common.GeneratedUtensil, error) {
			out, err := details.GenerateUtensilDetails(ctx, g.Nom, g.Description)
			if err != nil {
				return g, err
			}
			out.Nom = g.Nom
			out.Obligatoire = g.Obligatoire
			return *out, nil
		}
	}
	return New(repo, def, locks, rec, owner)
}

func buildIngredient(g common.GeneratedIngredient, id Identity) *store.Ingredient {
	return &store.Ingredient{
		ID:             id.ID,
		Nom:            strings.TrimSpace(g.Nom),
		NomNormalise:   id.NormalizedName,
		Categorie:      g.Categorie,
		Allergenes:     store.Strings(g.Allergenes),
		Saison:         store.Strings(g.Saison),
		PrixMoyen:      g.PrixMoyen,
		UniteParDefaut: string(g.Unite),
		OwnerID:        id.OwnerID,
		IsPublic:       true,
		CreatedAt:      id.CreatedAt,
	}
}

func buildUtensil(g common.GeneratedUtensil, id Identity) *store.Utensil {
	return &store.Utensil{
		ID:           id.ID,
		Nom:          strings.TrimSpace(g.Nom),
		NomNormalise: id.NormalizedName,
		Categorie:    g.Categorie,
		Description:  g.Description,
		OwnerID:      id.OwnerID,
		IsPublic:     true,
		CreatedAt:    id.CreatedAt,
	}
}

func ingredientHint(g common.GeneratedIngredient) string {
	var parts []string
	if g.Categorie != "" {
		parts = append(parts, fmt.Sprintf("catégorie proposée : %s", g.Categorie))
	}
	if g.Unite != "" {
		parts = append(parts, fmt.Sprintf("unité : %s", g.Unite))
	}
	return strings.Join(parts, ", ")
}
