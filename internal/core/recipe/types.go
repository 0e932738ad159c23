package recipe

import (
	"strings"
	"time"

	"recipe-ingest/internal/core/store"
	"recipe-ingest/internal/pkg/common"
)

// Result 寫入結果；Created 為 false 表示回傳的是既有食譜
type Result struct {
	Data        *store.Recipe `json:"data"`
	Created     bool          `json:"created"`
	Ingredients int           `json:"ingredients"`
	Utensils    int           `json:"utensils"`
}

// IngredientMap 正規化名稱 → 已持久化的食材
type IngredientMap map[string]*store.Ingredient

// UtensilMap 正規化名稱 → 已持久化的器具
type UtensilMap map[string]*store.Utensil

// toRecord 生成結果轉為持久化的食譜列
func toRecord(gen *common.GeneratedRecipe, id, owner string) *store.Recipe {
	r := gen.Recette
	return &store.Recipe{
		ID:               id,
		Nom:              strings.TrimSpace(r.Nom),
		NomNormalise:     common.NormalizeName(r.Nom),
		Description:      r.Description,
		Instructions:     r.Instructions,
		TempsPreparation: r.TempsPreparation,
		TempsCuisson:     r.TempsCuisson,
		Portions:         r.Portions,
		Difficulte:       r.Difficulte,
		Regimes:          store.Strings(r.Regimes),
		TypesRepas:       store.Strings(r.TypesRepas),
		Saison:           store.Strings(r.Saison),
		CoutEstime:       r.CoutEstime,
		Calories:         r.Calories,
		OwnerID:          owner,
		IsPublic:         true,
		CreatedAt:        time.Now().UTC(),
	}
}
