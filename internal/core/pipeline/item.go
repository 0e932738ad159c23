package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"recipe-ingest/internal/core/recipe"
	"recipe-ingest/internal/pkg/common"

	"go.uber.org/zap"
)

// Stage 項目狀態機的階段
type Stage string

const (
	StagePreCheck         Stage = "precheck"
	StageNameGeneration   Stage = "name_generation"
	StageNameCheck        Stage = "name_check"
	StageFullGeneration   Stage = "full_generation"
	StageValidation       Stage = "validation"
	StageEntityResolution Stage = "entity_resolution"
	StageConsistencyCheck Stage = "consistency_check"
	StagePersistence      Stage = "persistence"
	StageDone             Stage = "done"
)

// precheckCandidates PreCheck 最多比對的既有食譜數
const precheckCandidates = 20

// Outcome 單一項目的結果
type Outcome struct {
	Index       int
	Description string
	Status      Status
	// Stage 成功時為 StageDone 或提早結束的階段，失敗時為出錯的階段
	Stage    Stage
	Name     string
	ID       string
	Reason   string
	Warnings []string
	Err      error
	Code     string
	Duration time.Duration
}

func (o *Outcome) fail(err error) {
	o.Status = StatusError
	o.Err = err
	o.Code = common.ErrorCode(err)
}

func (o *Outcome) skip(name, id, reason string) {
	o.Status = StatusSkipped
	o.Name, o.ID, o.Reason = name, id, reason
}

// item 單一項目的執行狀態
type item struct {
	o   *Orchestrator
	b   *batch
	req common.GenerationRequest
	out Outcome
}

// run PreCheck → NameGeneration → NameCheck → FullGeneration → Validation →
// EntityResolution → ConsistencyCheck → Persistence → Done
func (it *item) run(ctx context.Context) {
	if done := it.precheck(ctx); done {
		return
	}

	it.out.Stage = StageNameGeneration
	name, err := it.o.generator.GenerateName(ctx, it.req)
	if err != nil {
		it.out.fail(err)
		return
	}

	// 同名食譜從名稱檢查到寫入完成都序列化
	it.out.Stage = StageNameCheck
	key := common.NormalizeName(name)
	unlock := it.o.recipeLocks.Lock(key)
	defer unlock()

	existing, err := it.b.writer.FindExisting(ctx, name)
	if err != nil {
		it.out.fail(err)
		return
	}
	if existing != nil {
		it.out.skip(existing.Nom, existing.ID, "une recette portant ce nom existe déjà")
		return
	}

	it.out.Stage = StageFullGeneration
	gen, err := it.o.generator.GenerateFull(ctx, it.req, name)
	if err != nil {
		it.out.fail(err)
		return
	}
	if common.NormalizeName(gen.Recette.Nom) != key {
		common.LogDebug("生成的名稱與建議名稱不同，沿用建議名稱",
			zap.String("suggested", name),
			zap.String("generated", gen.Recette.Nom),
		)
		gen.Recette.Nom = name
	}
	it.out.Name = gen.Recette.Nom

	it.out.Stage = StageValidation
	res := it.o.validator.ValidateCompleteRecipe(gen, it.req.Contraintes)
	if !res.IsValid {
		it.out.fail(res.Err(fmt.Sprintf("recette %q invalide", gen.Recette.Nom)))
		return
	}
	it.out.Warnings = append(it.out.Warnings, res.Warnings...)

	if it.b.dryRun {
		it.out.Status = StatusValidated
		it.out.Stage = StageDone
		return
	}

	it.out.Stage = StageEntityResolution
	ingredients, ingFailed := it.b.ingredients.EnsureExist(ctx, gen.Ingredients)
	utensils, utFailed := it.b.utensils.EnsureExist(ctx, gen.Ustensiles)

	it.out.Stage = StageConsistencyCheck
	if err := it.consistency(gen, ingredients, utensils, ingFailed, utFailed); err != nil {
		it.out.fail(err)
		return
	}

	it.out.Stage = StagePersistence
	created, err := it.b.writer.CreateComplete(ctx, gen, ingredients, utensils)
	if err != nil {
		it.out.fail(err)
		return
	}

	it.out.Stage = StageDone
	it.out.Name, it.out.ID = created.Data.Nom, created.Data.ID
	if created.Created {
		it.out.Status = StatusCreated
		return
	}
	it.out.Reason = "une recette portant ce nom existe déjà"
	it.out.Status = StatusSkipped
}

// precheck 以關鍵字重疊找出近似的既有食譜，命中時不呼叫生成器
func (it *item) precheck(ctx context.Context) (done bool) {
	pc := it.o.cfg.Precheck
	if !pc.Enabled {
		return false
	}
	keywords := common.ExtractKeywords(it.req.Description, pc.MaxKeywords)
	if len(keywords) == 0 {
		return false
	}

	candidates, err := it.o.store.Recipes().SearchByKeywords(ctx, keywords, precheckCandidates)
	if err != nil {
		// 只是省成本的捷徑，查詢失敗就照常生成
		common.LogWarn("PreCheck 查詢失敗", zap.Error(err))
		return false
	}

	threshold := pc.MinOverlap
	if threshold > len(keywords) {
		threshold = len(keywords)
	}
	for _, c := range candidates {
		if common.KeywordOverlap(keywords, c.Nom+" "+c.Description) >= threshold {
			it.out.Stage = StagePreCheck
			it.out.skip(c.Nom, c.ID, fmt.Sprintf("recette similaire existante (mots-clés : %s)", strings.Join(keywords, ", ")))
			return true
		}
	}
	return false
}

// consistency 每個生成的食材與器具都必須對應到已持久化的實體，並重新檢查季節重疊
func (it *item) consistency(gen *common.GeneratedRecipe, ingredients recipe.IngredientMap, utensils recipe.UtensilMap,
	ingFailed, utFailed map[string]error) error {
	var missing []string
	var causes []error
	for _, ing := range gen.Ingredients {
		if _, ok := ingredients[common.NormalizeName(ing.Nom)]; !ok {
			missing = append(missing, "ingrédient "+ing.Nom)
			if err := ingFailed[ing.Nom]; err != nil {
				causes = append(causes, err)
			}
		}
	}
	for _, u := range gen.Ustensiles {
		if _, ok := utensils[common.NormalizeName(u.Nom)]; !ok {
			missing = append(missing, "ustensile "+u.Nom)
			if err := utFailed[u.Nom]; err != nil {
				causes = append(causes, err)
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		msg := "références non résolues : " + strings.Join(missing, ", ")
		if len(causes) > 0 {
			msg += " (" + errors.Join(causes...).Error() + ")"
		}
		return common.NewReferenceError(msg)
	}

	// 既有實體的季節可能與生成時不同
	recipeSeasons := gen.Recette.Saison
	if len(recipeSeasons) == 0 {
		return nil
	}
	for _, ing := range gen.Ingredients {
		entity := ingredients[common.NormalizeName(ing.Nom)]
		if len(entity.Saison) == 0 {
			continue
		}
		seasons := make([]common.Season, 0, len(entity.Saison))
		for _, s := range entity.Saison {
			seasons = append(seasons, common.Season(s))
		}
		if len(common.IntersectSeasons(recipeSeasons, seasons)) == 0 {
			it.out.Warnings = append(it.out.Warnings,
				fmt.Sprintf("ingrédient %q : saisons enregistrées [%s] sans recouvrement avec la recette", entity.Nom, strings.Join(entity.Saison, ", ")))
		}
	}
	return nil
}
