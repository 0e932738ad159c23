package recipe

import (
	"net/http"
	"strings"

	"recipe-ingest/internal/api/handlers"
	"recipe-ingest/internal/core/store"
	"recipe-ingest/internal/core/validation"
	"recipe-ingest/internal/pkg/common"

	"github.com/gin-gonic/gin"
)

// 可查詢的實體種類
const (
	KindRecipe     = "recette"
	KindIngredient = "ingredient"
	KindUtensil    = "ustensile"
)

// LookupResponse 正規化名稱查詢結果
type LookupResponse struct {
	Kind           string      `json:"kind"`
	Query          string      `json:"query"`
	NormalizedName string      `json:"normalized_name"`
	Found          bool        `json:"found"`
	Data           interface{} `json:"data,omitempty"`
}

// ValidateRequest 驗證請求：生成結果與選填的限制條件
type ValidateRequest struct {
	common.GeneratedRecipe
	Contraintes common.ConstraintSet `json:"contraintes"`
}

// Handler 食譜處理程序
type Handler struct {
	store     store.Store
	validator *validation.Validator
}

// NewHandler 創建新的食譜處理程序
func NewHandler(s store.Store, v *validation.Validator) *Handler {
	return &Handler{store: s, validator: v}
}

// Lookup GET /api/v1/recipes/lookup?name=&kind=
func (h *Handler) Lookup(c *gin.Context) {
	name := strings.TrimSpace(c.Query("name"))
	key := common.NormalizeName(name)
	if key == "" {
		handlers.RespondError(c, common.NewValidationError("paramètre invalide", "name est requis"))
		return
	}
	kind := c.DefaultQuery("kind", KindRecipe)

	var (
		data  interface{}
		found bool
		err   error
	)
	ctx := c.Request.Context()
	switch kind {
	case KindRecipe:
		var r *store.Recipe
		if r, err = h.store.Recipes().FindByNormalizedName(ctx, key); r != nil {
			data, found = r, true
		}
	case KindIngredient:
		var i *store.Ingredient
		if i, err = h.store.Ingredients().FindByNormalizedName(ctx, key); i != nil {
			data, found = i, true
		}
	case KindUtensil:
		var u *store.Utensil
		if u, err = h.store.Utensils().FindByNormalizedName(ctx, key); u != nil {
			data, found = u, true
		}
	default:
		handlers.RespondError(c, common.NewValidationError("paramètre invalide",
			"kind doit être "+strings.Join([]string{KindRecipe, KindIngredient, KindUtensil}, ", ")))
		return
	}
	if err != nil {
		handlers.RespondError(c, common.NewPersistenceFailure("lookup failed", err))
		return
	}

	status := http.StatusOK
	if !found {
		status = http.StatusNotFound
	}
	c.JSON(status, LookupResponse{Kind: kind, Query: name, NormalizedName: key, Found: found, Data: data})
}

// Validate POST /api/v1/recipes/validate；資料問題以 200 回傳在結果中
func (h *Handler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.RespondError(c, common.NewValidationError("document JSON invalide", err.Error()))
		return
	}
	c.JSON(http.StatusOK, h.validator.ValidateCompleteRecipe(&req.GeneratedRecipe, req.Contraintes))
}
