package common

import (
	"fmt"
	"strings"
)

// ConstraintSet 生成限制條件，所有欄位皆為選填
type ConstraintSet struct {
	Saison     []Season   `json:"saison,omitempty"`
	Regimes    []Diet     `json:"regimes,omitempty"`
	TypesRepas []MealType `json:"types_repas,omitempty"`
	Difficulte int        `json:"difficulte,omitempty"`
	Portions   int        `json:"portions,omitempty"`
}

// IsEmpty 是否沒有任何限制
func (c ConstraintSet) IsEmpty() bool {
	return len(c.Saison) == 0 && len(c.Regimes) == 0 && len(c.TypesRepas) == 0 &&
		c.Difficulte == 0 && c.Portions == 0
}

// GenerationRequest 單一管線輸入
type GenerationRequest struct {
	Description string        `json:"description"`
	Contraintes ConstraintSet `json:"contraintes"`
}

// RecipeFields 食譜本體欄位
type RecipeFields struct {
	Nom              string     `json:"nom"`
	Description      string     `json:"description"`
	Instructions     string     `json:"instructions"`
	TempsPreparation int        `json:"temps_preparation"`
	TempsCuisson     int        `json:"temps_cuisson"`
	Portions         int        `json:"portions"`
	Difficulte       int        `json:"difficulte"`
	Regimes          []Diet     `json:"regimes"`
	TypesRepas       []MealType `json:"types_repas"`
	Saison           []Season   `json:"saison"`
	CoutEstime       float64    `json:"cout_estime"`
	Calories         int        `json:"calories"`
}

// GeneratedIngredient LLM 生成的食材
type GeneratedIngredient struct {
	Nom        string             `json:"nom"`
	Quantite   float64            `json:"quantite"`
	Unite      Unit               `json:"unite"`
	Optionnel  bool               `json:"optionnel"`
	Categorie  IngredientCategory `json:"categorie"`
	Allergenes []Allergen         `json:"allergenes"`
	Saison     []Season           `json:"saison"`
	PrixMoyen  float64            `json:"prix_moyen"`
}

// HasAllergen 是否標示指定過敏原
func (g GeneratedIngredient) HasAllergen(a Allergen) bool {
	return contains(g.Allergenes, a)
}

// GeneratedUtensil LLM 生成的器具
type GeneratedUtensil struct {
	Nom         string          `json:"nom"`
	Categorie   UtensilCategory `json:"categorie"`
	Obligatoire bool            `json:"obligatoire"`
	Description string          `json:"description"`
}

// GeneratedRecipe LLM 的完整結構化輸出
type GeneratedRecipe struct {
	Recette     RecipeFields          `json:"recette"`
	Ingredients []GeneratedIngredient `json:"ingredients"`
	Ustensiles  []GeneratedUtensil    `json:"ustensiles"`
}

// HasDiet 食譜是否標示指定飲食規範
func (r RecipeFields) HasDiet(d Diet) bool {
	return contains(r.Regimes, d)
}

// FormatConstraints 將限制條件格式化為提示詞片段
func FormatConstraints(c ConstraintSet) string {
	if c.IsEmpty() {
		return "- aucune contrainte\n"
	}
	var sb strings.Builder
	if len(c.Saison) > 0 {
		sb.WriteString(fmt.Sprintf("- saison: %s\n", StringSliceToString(Names(c.Saison))))
	}
	if len(c.Regimes) > 0 {
		sb.WriteString(fmt.Sprintf("- regimes: %s\n", StringSliceToString(Names(c.Regimes))))
	}
	if len(c.TypesRepas) > 0 {
		sb.WriteString(fmt.Sprintf("- types_repas: %s\n", StringSliceToString(Names(c.TypesRepas))))
	}
	if c.Difficulte > 0 {
		sb.WriteString(fmt.Sprintf("- difficulte: %d\n", c.Difficulte))
	}
	if c.Portions > 0 {
		sb.WriteString(fmt.Sprintf("- portions: %d\n", c.Portions))
	}
	return sb.String()
}

// IntersectSeasons 回傳兩組季節的交集
func IntersectSeasons(a, b []Season) []Season {
	var out []Season
	for _, s := range a {
		if contains(b, s) && !contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
