// Package validation 對生成的食譜、食材與器具做結構與業務規則檢查
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/pkg/common"
)

// 數值範圍
const (
	MinNameLength = 3
	MaxNameLength = 100

	minEntityNameLength = 2

	MinPrepTime = 1
	MaxPrepTime = 480
	MinCookTime = 0
	MaxCookTime = 480
	MinPortions = 1
	MaxPortions = 20

	DefaultMinInstructionLength = 50
	DefaultMaxBatchSize         = 50
)

// Result 驗證結果；資料問題只會出現在 Errors/Warnings，不會回傳 error
type Result struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func newResult() Result {
	return Result{IsValid: true, Errors: []string{}, Warnings: []string{}}
}

func (r *Result) errorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.IsValid = false
}

func (r *Result) warnf(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// merge 合併子結果並加上前綴
func (r *Result) merge(prefix string, other Result) {
	for _, e := range other.Errors {
		r.errorf("%s%s", prefix, e)
	}
	for _, w := range other.Warnings {
		r.warnf("%s%s", prefix, w)
	}
}

// Err 無效時轉為 ValidationError
func (r Result) Err(message string) error {
	if r.IsValid {
		return nil
	}
	return common.NewValidationError(message, r.Errors...)
}

// Validator 規則驗證器
type Validator struct {
	MinInstructionLength int
	MaxBatchSize         int
	// Strict 為 true 時交叉規則違反視為錯誤，否則僅為警告
	Strict bool
}

// New 依管線設定建立驗證器
func New(cfg config.PipelineConfig) *Validator {
	v := &Validator{
		MinInstructionLength: cfg.MinInstructionLength,
		MaxBatchSize:         cfg.MaxBatchSize,
		Strict:               cfg.StrictMode,
	}
	if v.MinInstructionLength <= 0 {
		v.MinInstructionLength = DefaultMinInstructionLength
	}
	if v.MaxBatchSize <= 0 {
		v.MaxBatchSize = DefaultMaxBatchSize
	}
	return v
}

// violation 依嚴格模式記錄交叉規則違反
func (v *Validator) violation(r *Result, format string, args ...interface{}) {
	if v.Strict {
		r.errorf(format, args...)
		return
	}
	r.warnf(format, args...)
}

func length(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}

func checkRange(r *Result, field string, value, min, max int) {
	if value < min || value > max {
		r.errorf("%s doit être entre %d et %d (reçu %d)", field, min, max, value)
	}
}

// checkEnum 逐一檢查陣列元素，一次回報所有無效值
func checkEnum[T ~string](r *Result, field string, values []T, valid func(T) bool, allowed []T) {
	var bad []string
	for _, val := range values {
		if !valid(val) {
			bad = append(bad, fmt.Sprintf("%q", string(val)))
		}
	}
	if len(bad) > 0 {
		r.errorf("%s contient des valeurs invalides %s (autorisées : %s)",
			field, strings.Join(bad, ", "), strings.Join(common.Names(allowed), ", "))
	}
}

// ValidateRecipe 驗證食譜本體欄位
func (v *Validator) ValidateRecipe(rec common.RecipeFields) Result {
	r := newResult()

	switch n := length(rec.Nom); {
	case n == 0:
		r.errorf("nom est requis")
	case n < MinNameLength || n > MaxNameLength:
		r.errorf("nom doit contenir entre %d et %d caractères (reçu %d)", MinNameLength, MaxNameLength, n)
	}

	switch n := length(rec.Instructions); {
	case n == 0:
		r.errorf("instructions est requis")
	case n < v.MinInstructionLength:
		r.errorf("instructions doit contenir au moins %d caractères (reçu %d)", v.MinInstructionLength, n)
	}

	if length(rec.Description) == 0 {
		r.warnf("description est vide")
	}

	checkRange(&r, "temps_preparation", rec.TempsPreparation, MinPrepTime, MaxPrepTime)
	checkRange(&r, "temps_cuisson", rec.TempsCuisson, MinCookTime, MaxCookTime)
	checkRange(&r, "portions", rec.Portions, MinPortions, MaxPortions)
	checkRange(&r, "difficulte", rec.Difficulte, common.MinDifficulty, common.MaxDifficulty)

	if rec.CoutEstime < 0 {
		r.errorf("cout_estime ne peut pas être négatif")
	}
	if rec.Calories < 0 {
		r.errorf("calories ne peut pas être négatif")
	}

	checkEnum(&r, "regimes", rec.Regimes, common.Diet.Valid, common.AllDiets())
	checkEnum(&r, "types_repas", rec.TypesRepas, common.MealType.Valid, common.AllMealTypes())
	checkEnum(&r, "saison", rec.Saison, common.Season.Valid, common.AllSeasons())

	return r
}

// ValidateIngredientEntity 驗證食材本身（不含份量），供實體解析使用
func (v *Validator) ValidateIngredientEntity(ing common.GeneratedIngredient) Result {
	r := newResult()

	switch n := length(ing.Nom); {
	case n == 0:
		r.errorf("nom est requis")
	case n < minEntityNameLength || n > MaxNameLength:
		r.errorf("nom doit contenir entre %d et %d caractères (reçu %d)", minEntityNameLength, MaxNameLength, n)
	}

	if ing.Categorie == "" {
		r.errorf("categorie est requis")
	} else if !ing.Categorie.Valid() {
		r.errorf("categorie %q invalide (autorisées : %s)", ing.Categorie, strings.Join(common.Names(common.AllIngredientCategories()), ", "))
	}

	checkEnum(&r, "allergenes", ing.Allergenes, common.Allergen.Valid, common.AllAllergens())
	checkEnum(&r, "saison", ing.Saison, common.Season.Valid, common.AllSeasons())

	if ing.PrixMoyen < 0 {
		r.errorf("prix_moyen ne peut pas être négatif")
	}
	return r
}

// ValidateIngredient 驗證食譜中的食材行（含份量與單位）
func (v *Validator) ValidateIngredient(ing common.GeneratedIngredient) Result {
	r := v.ValidateIngredientEntity(ing)

	if ing.Quantite <= 0 {
		r.errorf("quantite doit être strictement positive (reçu %g)", ing.Quantite)
	}
	if ing.Unite == "" {
		r.errorf("unite est requis")
	} else if !ing.Unite.Valid() {
		r.errorf("unite %q invalide (autorisées : %s)", ing.Unite, strings.Join(common.Names(common.AllUnits()), ", "))
	}
	return r
}

// ValidateUtensil 驗證器具
func (v *Validator) ValidateUtensil(u common.GeneratedUtensil) Result {
	r := newResult()

	switch n := length(u.Nom); {
	case n == 0:
		r.errorf("nom est requis")
	case n < minEntityNameLength || n > MaxNameLength:
		r.errorf("nom doit contenir entre %d et %d caractères (reçu %d)", minEntityNameLength, MaxNameLength, n)
	}

	if u.Categorie == "" {
		r.errorf("categorie est requis")
	} else if !u.Categorie.Valid() {
		r.errorf("categorie %q invalide (autorisées : %s)", u.Categorie, strings.Join(common.Names(common.AllUtensilCategories()), ", "))
	}
	return r
}

// ValidateCompleteRecipe 驗證完整生成結果與交叉規則
func (v *Validator) ValidateCompleteRecipe(gen *common.GeneratedRecipe, constraints common.ConstraintSet) Result {
	r := newResult()
	if gen == nil {
		r.errorf("recette manquante")
		return r
	}

	r.merge("recette: ", v.ValidateRecipe(gen.Recette))

	if len(gen.Ingredients) == 0 {
		r.errorf("au moins un ingrédient est requis")
	}
	seen := make(map[string]int, len(gen.Ingredients))
	for i, ing := range gen.Ingredients {
		r.merge(fmt.Sprintf("ingredients[%d] (%s): ", i, ing.Nom), v.ValidateIngredient(ing))
		key := common.NormalizeName(ing.Nom)
		if key == "" {
			continue
		}
		if first, dup := seen[key]; dup {
			r.errorf("ingredients[%d] (%s): doublon de ingredients[%d]", i, ing.Nom, first)
			continue
		}
		seen[key] = i
	}

	if len(gen.Ustensiles) == 0 {
		r.warnf("aucun ustensile déclaré")
	}
	for i, u := range gen.Ustensiles {
		r.merge(fmt.Sprintf("ustensiles[%d] (%s): ", i, u.Nom), v.ValidateUtensil(u))
	}

	v.checkCoherence(&r, gen)
	v.checkConstraints(&r, gen.Recette, constraints)
	return r
}

// checkCoherence 季節、過敏原與飲食規範的一致性
func (v *Validator) checkCoherence(r *Result, gen *common.GeneratedRecipe) {
	rec := gen.Recette
	for _, ing := range gen.Ingredients {
		if len(rec.Saison) > 0 && len(ing.Saison) > 0 && len(common.IntersectSeasons(rec.Saison, ing.Saison)) == 0 {
			v.violation(r, "ingrédient %q : saisons [%s] sans recouvrement avec la recette [%s]",
				ing.Nom, common.StringSliceToString(common.Names(ing.Saison)), common.StringSliceToString(common.Names(rec.Saison)))
		}
		if rec.HasDiet(common.DietSansGluten) && ing.HasAllergen(common.AllergenGluten) {
			v.violation(r, "ingrédient %q contient l'allergène gluten, incompatible avec le régime sans_gluten", ing.Nom)
		}
		if rec.HasDiet(common.DietSansLactose) && ing.HasAllergen(common.AllergenLactose) {
			v.violation(r, "ingrédient %q contient l'allergène lactose, incompatible avec le régime sans_lactose", ing.Nom)
		}
		if rec.HasDiet(common.DietVegan) {
			switch ing.Categorie {
			case common.CategoryViande, common.CategoryPoisson, common.CategoryProduitLaitier:
				v.violation(r, "ingrédient %q de catégorie %s, incompatible avec le régime vegan", ing.Nom, ing.Categorie)
			}
		}
		if rec.HasDiet(common.DietVegetarien) {
			switch ing.Categorie {
			case common.CategoryViande, common.CategoryPoisson:
				v.violation(r, "ingrédient %q de catégorie %s, incompatible avec le régime vegetarien", ing.Nom, ing.Categorie)
			}
		}
	}
}

// checkConstraints 生成結果是否遵守請求的限制
func (v *Validator) checkConstraints(r *Result, rec common.RecipeFields, c common.ConstraintSet) {
	if len(c.Saison) > 0 && len(rec.Saison) > 0 && len(common.IntersectSeasons(c.Saison, rec.Saison)) == 0 {
		v.violation(r, "saison demandée [%s] non respectée (recette : [%s])",
			common.StringSliceToString(common.Names(c.Saison)), common.StringSliceToString(common.Names(rec.Saison)))
	}
	for _, d := range c.Regimes {
		if !rec.HasDiet(d) {
			v.violation(r, "régime demandé %s absent de la recette", d)
		}
	}
	if len(c.TypesRepas) > 0 {
		matched := false
		for _, m := range c.TypesRepas {
			for _, got := range rec.TypesRepas {
				if m == got {
					matched = true
				}
			}
		}
		if !matched {
			v.violation(r, "type de repas demandé [%s] non respecté (recette : [%s])",
				common.StringSliceToString(common.Names(c.TypesRepas)), common.StringSliceToString(common.Names(rec.TypesRepas)))
		}
	}
	if c.Difficulte > 0 && rec.Difficulte != c.Difficulte {
		r.warnf("difficulte demandée %d, obtenue %d", c.Difficulte, rec.Difficulte)
	}
	if c.Portions > 0 && rec.Portions != c.Portions {
		r.warnf("portions demandées %d, obtenues %d", c.Portions, rec.Portions)
	}
}

// ValidateConstraints 檢查輸入的限制條件是否屬於封閉詞彙
func (v *Validator) ValidateConstraints(c common.ConstraintSet) Result {
	r := newResult()
	checkEnum(&r, "saison", c.Saison, common.Season.Valid, common.AllSeasons())
	checkEnum(&r, "regimes", c.Regimes, common.Diet.Valid, common.AllDiets())
	checkEnum(&r, "types_repas", c.TypesRepas, common.MealType.Valid, common.AllMealTypes())
	if c.Difficulte != 0 {
		checkRange(&r, "difficulte", c.Difficulte, common.MinDifficulty, common.MaxDifficulty)
	}
	if c.Portions != 0 {
		checkRange(&r, "portions", c.Portions, MinPortions, MaxPortions)
	}
	return r
}

// ValidateInputBatch 批次層級檢查：至少一筆、不超過上限、每筆有描述
func (v *Validator) ValidateInputBatch(items []common.GenerationRequest) Result {
	r := newResult()
	if len(items) == 0 {
		r.errorf("recettes est vide : au moins une recette est requise")
		return r
	}
	if len(items) > v.MaxBatchSize {
		r.errorf("le lot contient %d recettes, maximum autorisé %d", len(items), v.MaxBatchSize)
		return r
	}
	for i, item := range items {
		if length(item.Description) == 0 {
			r.errorf("recettes[%d]: description est requis", i)
		}
		r.merge(fmt.Sprintf("recettes[%d].contraintes: ", i), v.ValidateConstraints(item.Contraintes))
	}
	return r
}
