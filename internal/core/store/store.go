// Package store 定義管線使用的儲存協作者：窄介面、持久化型別與兩種實作。
package store

import (
	"context"
	"errors"
	"time"

	"recipe-ingest/internal/pkg/common"
)

// ErrUniqueViolation 正規化名稱衝突（可恢復的競態）
var ErrUniqueViolation = errors.New("unique constraint violation")

// ErrForeignKey 關聯列指向不存在的列
var ErrForeignKey = errors.New("foreign key violation")

// ErrClosed 儲存層已關閉
var ErrClosed = errors.New("store closed")

// Entity 以正規化名稱為唯一鍵的實體；唯一性只在公開項目之間成立
type Entity interface {
	GetID() string
	GetName() string
	GetNormalizedName() string
	GetIsPublic() bool
}

// Ingredient 已持久化的食材
type Ingredient struct {
	ID             string                    `json:"id" db:"id"`
	Nom            string                    `json:"nom" db:"nom"`
	NomNormalise   string                    `json:"nom_normalise" db:"nom_normalise"`
	Categorie      common.IngredientCategory `json:"categorie" db:"categorie"`
	Allergenes     StringList                `json:"allergenes" db:"allergenes"`
	Saison         StringList                `json:"saison" db:"saison"`
	PrixMoyen      float64                   `json:"prix_moyen" db:"prix_moyen"`
	UniteParDefaut string                    `json:"unite_par_defaut" db:"unite_par_defaut"`
	OwnerID        string                    `json:"owner_id" db:"owner_id"`
	IsPublic       bool                      `json:"is_public" db:"is_public"`
	CreatedAt      time.Time                 `json:"created_at" db:"created_at"`
}

func (i *Ingredient) GetID() string             { return i.ID }
func (i *Ingredient) GetName() string           { return i.Nom }
func (i *Ingredient) GetNormalizedName() string { return i.NomNormalise }
func (i *Ingredient) GetIsPublic() bool         { return i.IsPublic }

// Utensil 已持久化的器具
type Utensil struct {
	ID           string                 `json:"id" db:"id"`
	Nom          string                 `json:"nom" db:"nom"`
	NomNormalise string                 `json:"nom_normalise" db:"nom_normalise"`
	Categorie    common.UtensilCategory `json:"categorie" db:"categorie"`
	Description  string                 `json:"description" db:"description"`
	OwnerID      string                 `json:"owner_id" db:"owner_id"`
	IsPublic     bool                   `json:"is_public" db:"is_public"`
	CreatedAt    time.Time              `json:"created_at" db:"created_at"`
}

func (u *Utensil) GetID() string             { return u.ID }
func (u *Utensil) GetName() string           { return u.Nom }
func (u *Utensil) GetNormalizedName() string { return u.NomNormalise }
func (u *Utensil) GetIsPublic() bool         { return u.IsPublic }

// Recipe 已持久化的食譜
type Recipe struct {
	ID               string     `json:"id" db:"id"`
	Nom              string     `json:"nom" db:"nom"`
	NomNormalise     string     `json:"nom_normalise" db:"nom_normalise"`
	Description      string     `json:"description" db:"description"`
	Instructions     string     `json:"instructions" db:"instructions"`
	TempsPreparation int        `json:"temps_preparation" db:"temps_preparation"`
	TempsCuisson     int        `json:"temps_cuisson" db:"temps_cuisson"`
	Portions         int        `json:"portions" db:"portions"`
	Difficulte       int        `json:"difficulte" db:"difficulte"`
	Regimes          StringList `json:"regimes" db:"regimes"`
	TypesRepas       StringList `json:"types_repas" db:"types_repas"`
	Saison           StringList `json:"saison" db:"saison"`
	CoutEstime       float64    `json:"cout_estime" db:"cout_estime"`
	Calories         int        `json:"calories" db:"calories"`
	OwnerID          string     `json:"owner_id" db:"owner_id"`
	IsPublic         bool       `json:"is_public" db:"is_public"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
}

func (r *Recipe) GetID() string             { return r.ID }
func (r *Recipe) GetName() string           { return r.Nom }
func (r *Recipe) GetNormalizedName() string { return r.NomNormalise }
func (r *Recipe) GetIsPublic() bool         { return r.IsPublic }

// RecipeIngredient 食譜與食材的關聯列
type RecipeIngredient struct {
	RecipeID     string  `json:"recipe_id" db:"recipe_id"`
	IngredientID string  `json:"ingredient_id" db:"ingredient_id"`
	Quantite     float64 `json:"quantite" db:"quantite"`
	Unite        string  `json:"unite" db:"unite"`
	Optionnel    bool    `json:"optionnel" db:"optionnel"`
}

// RecipeUtensil 食譜與器具的關聯列
type RecipeUtensil struct {
	RecipeID    string `json:"recipe_id" db:"recipe_id"`
	UtensilID   string `json:"utensil_id" db:"utensil_id"`
	Obligatoire bool   `json:"obligatoire" db:"obligatoire"`
}

// AuditRecord 稽核紀錄，只新增不修改
type AuditRecord struct {
	ID               string    `json:"id" db:"id"`
	BatchName        string    `json:"batch_name" db:"batch_name"`
	OperationType    string    `json:"operation_type" db:"operation_type"`
	Action           string    `json:"action" db:"action"`
	EntityID         string    `json:"entity_id,omitempty" db:"entity_id"`
	Metadata         JSONMap   `json:"metadata,omitempty" db:"metadata"`
	ErrorMessage     string    `json:"error_message,omitempty" db:"error_message"`
	ProcessingTimeMs int64     `json:"processing_time_ms" db:"processing_time_ms"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// EntityRepository 單一實體種類的查找與建立
type EntityRepository[T Entity] interface {
	// FindByNormalizedName 只查公開項目，找不到時回傳 (nil, nil)
	FindByNormalizedName(ctx context.Context, key string) (T, error)
	// FindByName 不分大小寫的完整名稱比對，只查公開項目，找不到時回傳 (nil, nil)
	FindByName(ctx context.Context, name string) (T, error)
	// Insert 公開項目的正規化名稱衝突時回傳 ErrUniqueViolation
	Insert(ctx context.Context, entity T) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// RecipeRepository 食譜與關聯列
type RecipeRepository interface {
	EntityRepository[*Recipe]
	// SearchByKeywords 名稱或描述包含任一關鍵字的公開食譜
	SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]*Recipe, error)
	InsertIngredientLink(ctx context.Context, link RecipeIngredient) error
	InsertUtensilLink(ctx context.Context, link RecipeUtensil) error
	DeleteIngredientLinks(ctx context.Context, recipeID string) error
	DeleteUtensilLinks(ctx context.Context, recipeID string) error
	ListIngredientLinks(ctx context.Context, recipeID string) ([]RecipeIngredient, error)
	ListUtensilLinks(ctx context.Context, recipeID string) ([]RecipeUtensil, error)
}

// AuditRepository 稽核紀錄寫入
type AuditRepository interface {
	Record(ctx context.Context, rec *AuditRecord) error
	ListByBatch(ctx context.Context, batchName string) ([]*AuditRecord, error)
}

// Store 管線使用的儲存協作者
type Store interface {
	Ingredients() EntityRepository[*Ingredient]
	Utensils() EntityRepository[*Utensil]
	Recipes() RecipeRepository
	Audit() AuditRepository
	Ping(ctx context.Context) error
	Close() error
}

// Transactor 支援多語句交易的儲存層（選用能力）
type Transactor interface {
	// WithinTx 在同一交易中執行 fn，fn 回傳錯誤時整體回滾
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
