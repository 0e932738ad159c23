package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"recipe-ingest/internal/pkg/common"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// SQLStore 以 sqlx 實作的儲存層，支援 postgres 與 sqlite3
type SQLStore struct {
	db *sqlx.DB
	q  sqlx.ExtContext
}

// NewSQLStore 包裝已連線且完成遷移的資料庫
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, q: db}
}

func (s *SQLStore) Ingredients() EntityRepository[*Ingredient] { return &sqlIngredients{s} }
func (s *SQLStore) Utensils() EntityRepository[*Utensil]       { return &sqlUtensils{s} }
func (s *SQLStore) Recipes() RecipeRepository                  { return &sqlRecipes{s} }
func (s *SQLStore) Audit() AuditRepository                     { return &sqlAudit{s} }

// Ping 檢查資料庫連線
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close 關閉連線池；交易內的副本不擁有連線池
func (s *SQLStore) Close() error {
	if _, inTx := s.q.(*sqlx.Tx); inTx {
		return nil
	}
	return s.db.Close()
}

// WithinTx 在單一交易中執行 fn
func (s *SQLStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if _, inTx := s.q.(*sqlx.Tx); inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&SQLStore{db: s.db, q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLStore) isPostgres() bool {
	return s.q.DriverName() == "postgres"
}

// translateError 將驅動程式的約束錯誤轉為儲存層的哨兵錯誤
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrUniqueViolation, pqErr.Constraint)
		case "23503":
			return fmt.Errorf("%w: %s", ErrForeignKey, pqErr.Constraint)
		}
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %s", ErrUniqueViolation, liteErr.Error())
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %s", ErrForeignKey, liteErr.Error())
		}
	}
	return err
}

// getOne 執行單列查詢，無資料時回傳 (nil, nil)
func getOne[T any](ctx context.Context, q sqlx.ExtContext, query string, args ...any) (*T, error) {
	var row T
	if err := sqlx.GetContext(ctx, q, &row, q.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func count(ctx context.Context, q sqlx.ExtContext, table string) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, q, &n, "SELECT COUNT(*) FROM "+table); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

func exec(ctx context.Context, q sqlx.ExtContext, query string, args ...any) error {
	_, err := q.ExecContext(ctx, q.Rebind(query), args...)
	return translateError(err)
}

const ingredientColumns = `id, nom, nom_normalise, categorie, allergenes, saison, prix_moyen, unite_par_defaut, owner_id, is_public, created_at`

type sqlIngredients struct{ s *SQLStore }

func (r *sqlIngredients) FindByNormalizedName(ctx context.Context, key string) (*Ingredient, error) {
	ing, err := getOne[Ingredient](ctx, r.s.q, `SELECT `+ingredientColumns+` FROM ingredients WHERE nom_normalise = ? AND is_public = ?`, key, true)
	if err != nil {
		return nil, fmt.Errorf("failed to find ingredient: %w", err)
	}
	return ing, nil
}

func (r *sqlIngredients) FindByName(ctx context.Context, name string) (*Ingredient, error) {
	ing, err := getOne[Ingredient](ctx, r.s.q, `SELECT `+ingredientColumns+` FROM ingredients WHERE LOWER(nom) = LOWER(?) AND is_public = ? LIMIT 1`, name, true)
	if err != nil {
		return nil, fmt.Errorf("failed to find ingredient: %w", err)
	}
	return ing, nil
}

func (r *sqlIngredients) Insert(ctx context.Context, ing *Ingredient) error {
	if ing.CreatedAt.IsZero() {
		ing.CreatedAt = time.Now().UTC()
	}
	return exec(ctx, r.s.q,
		`INSERT INTO ingredients (`+ingredientColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ing.ID, ing.Nom, ing.NomNormalise, ing.Categorie, ing.Allergenes, ing.Saison,
		ing.PrixMoyen, ing.UniteParDefaut, ing.OwnerID, ing.IsPublic, ing.CreatedAt,
	)
}

func (r *sqlIngredients) Delete(ctx context.Context, id string) error {
	return exec(ctx, r.s.q, `DELETE FROM ingredients WHERE id = ?`, id)
}

func (r *sqlIngredients) Count(ctx context.Context) (int, error) {
	return count(ctx, r.s.q, "ingredients")
}

const utensilColumns = `id, nom, nom_normalise, categorie, description, owner_id, is_public, created_at`

type sqlUtensils struct{ s *SQLStore }

func (r *sqlUtensils) FindByNormalizedName(ctx context.Context, key string) (*Utensil, error) {
	u, err := getOne[Utensil](ctx, r.s.q, `SELECT `+utensilColumns+` FROM ustensiles WHERE nom_normalise = ? AND is_public = ?`, key, true)
	if err != nil {
		return nil, fmt.Errorf("failed to find utensil: %w", err)
	}
	return u, nil
}

func (r *sqlUtensils) FindByName(ctx context.Context, name string) (*Utensil, error) {
	u, err := getOne[Utensil](ctx, r.s.q, `SELECT `+utensilColumns+` FROM ustensiles WHERE LOWER(nom) = LOWER(?) AND is_public = ? LIMIT 1`, name, true)
	if err != nil {
		return nil, fmt.Errorf("failed to find utensil: %w", err)
	}
	return u, nil
}

func (r *sqlUtensils) Insert(ctx context.Context, u *Utensil) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	return exec(ctx, r.s.q,
		`INSERT INTO ustensiles (`+utensilColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Nom, u.NomNormalise, u.Categorie, u.Description, u.OwnerID, u.IsPublic, u.CreatedAt,
	)
}

func (r *sqlUtensils) Delete(ctx context.Context, id string) error {
	return exec(ctx, r.s.q, `DELETE FROM ustensiles WHERE id = ?`, id)
}

func (r *sqlUtensils) Count(ctx context.Context) (int, error) {
	return count(ctx, r.s.q, "ustensiles")
}

const recipeColumns = `id, nom, nom_normalise, description, instructions, temps_preparation, temps_cuisson, portions, difficulte, regimes, types_repas, saison, cout_estime, calories, owner_id, is_public, created_at`

type sqlRecipes struct{ s *SQLStore }

func (r *sqlRecipes) FindByNormalizedName(ctx context.Context, key string) (*Recipe, error) {
	rec, err := getOne[Recipe](ctx, r.s.q, `SELECT `+recipeColumns+` FROM recettes WHERE nom_normalise = ? AND is_public = ?`, key, true)
	if err != nil {
		return nil, fmt.Errorf("failed to find recipe: %w", err)
	}
	return rec, nil
}

func (r *sqlRecipes) FindByName(ctx context.Context, name string) (*Recipe, error) {
	rec, err := getOne[Recipe](ctx, r.s.q, `SELECT `+recipeColumns+` FROM recettes WHERE LOWER(nom) = LOWER(?) AND is_public = ? LIMIT 1`, name, true)
	if err != nil {
		return nil, fmt.Errorf("failed to find recipe: %w", err)
	}
	return rec, nil
}

func (r *sqlRecipes) Insert(ctx context.Context, rec *Recipe) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return exec(ctx, r.s.q,
		`INSERT INTO recettes (`+recipeColumns+`, description_normalisee) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Nom, rec.NomNormalise, rec.Description, rec.Instructions,
		rec.TempsPreparation, rec.TempsCuisson, rec.Portions, rec.Difficulte,
		rec.Regimes, rec.TypesRepas, rec.Saison, rec.CoutEstime, rec.Calories,
		rec.OwnerID, rec.IsPublic, rec.CreatedAt, common.NormalizeName(rec.Description),
	)
}

// Delete 先刪關聯列再刪食譜
func (r *sqlRecipes) Delete(ctx context.Context, id string) error {
	if err := r.DeleteIngredientLinks(ctx, id); err != nil {
		return err
	}
	if err := r.DeleteUtensilLinks(ctx, id); err != nil {
		return err
	}
	return exec(ctx, r.s.q, `DELETE FROM recettes WHERE id = ?`, id)
}

func (r *sqlRecipes) Count(ctx context.Context) (int, error) {
	return count(ctx, r.s.q, "recettes")
}

func (r *sqlRecipes) SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]*Recipe, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	clauses := make([]string, 0, len(keywords))
	args := make([]any, 0, len(keywords)*2+1)
	for _, k := range keywords {
		// 關鍵字已正規化，比對正規化後的描述
		clauses = append(clauses, `(nom_normalise LIKE ? OR description_normalisee LIKE ?)`)
		pattern := "%" + k + "%"
		args = append(args, pattern, pattern)
	}
	query := `SELECT ` + recipeColumns + ` FROM recettes WHERE is_public = ? AND (` +
		strings.Join(clauses, " OR ") + `) ORDER BY created_at DESC`
	args = append([]any{true}, args...)
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var out []*Recipe
	if err := sqlx.SelectContext(ctx, r.s.q, &out, r.s.q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to search recipes: %w", err)
	}
	return out, nil
}

func (r *sqlRecipes) InsertIngredientLink(ctx context.Context, l RecipeIngredient) error {
	return exec(ctx, r.s.q,
		`INSERT INTO recette_ingredients (recipe_id, ingredient_id, quantite, unite, optionnel) VALUES (?, ?, ?, ?, ?)`,
		l.RecipeID, l.IngredientID, l.Quantite, l.Unite, l.Optionnel,
	)
}

func (r *sqlRecipes) InsertUtensilLink(ctx context.Context, l RecipeUtensil) error {
	return exec(ctx, r.s.q,
		`INSERT INTO recette_ustensiles (recipe_id, utensil_id, obligatoire) VALUES (?, ?, ?)`,
		l.RecipeID, l.UtensilID, l.Obligatoire,
	)
}

func (r *sqlRecipes) DeleteIngredientLinks(ctx context.Context, recipeID string) error {
	return exec(ctx, r.s.q, `DELETE FROM recette_ingredients WHERE recipe_id = ?`, recipeID)
}

func (r *sqlRecipes) DeleteUtensilLinks(ctx context.Context, recipeID string) error {
	return exec(ctx, r.s.q, `DELETE FROM recette_ustensiles WHERE recipe_id = ?`, recipeID)
}

func (r *sqlRecipes) ListIngredientLinks(ctx context.Context, recipeID string) ([]RecipeIngredient, error) {
	var out []RecipeIngredient
	err := sqlx.SelectContext(ctx, r.s.q, &out, r.s.q.Rebind(
		`SELECT recipe_id, ingredient_id, quantite, unite, optionnel FROM recette_ingredients WHERE recipe_id = ? ORDER BY ingredient_id`), recipeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingredient links: %w", err)
	}
	return out, nil
}

func (r *sqlRecipes) ListUtensilLinks(ctx context.Context, recipeID string) ([]RecipeUtensil, error) {
	var out []RecipeUtensil
	err := sqlx.SelectContext(ctx, r.s.q, &out, r.s.q.Rebind(
		`SELECT recipe_id, utensil_id, obligatoire FROM recette_ustensiles WHERE recipe_id = ? ORDER BY utensil_id`), recipeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list utensil links: %w", err)
	}
	return out, nil
}

type sqlAudit struct{ s *SQLStore }

// Record 在 postgres 上透過 log_pipeline_operation 寫入，sqlite 直接 INSERT
func (a *sqlAudit) Record(ctx context.Context, rec *AuditRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if a.s.isPostgres() {
		return exec(ctx, a.s.q,
			`SELECT log_pipeline_operation(?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.BatchName, rec.OperationType, rec.Action, rec.EntityID,
			rec.Metadata, rec.ErrorMessage, rec.ProcessingTimeMs,
		)
	}
	return exec(ctx, a.s.q,
		`INSERT INTO pipeline_audit (id, batch_name, operation_type, action, entity_id, metadata, error_message, processing_time_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.BatchName, rec.OperationType, rec.Action, rec.EntityID,
		rec.Metadata, rec.ErrorMessage, rec.ProcessingTimeMs, rec.CreatedAt,
	)
}

func (a *sqlAudit) ListByBatch(ctx context.Context, batchName string) ([]*AuditRecord, error) {
	var out []*AuditRecord
	err := sqlx.SelectContext(ctx, a.s.q, &out, a.s.q.Rebind(
		`SELECT id, batch_name, operation_type, action, COALESCE(entity_id, '') AS entity_id, metadata,
		        COALESCE(error_message, '') AS error_message, processing_time_ms, created_at
		 FROM pipeline_audit WHERE batch_name = ? ORDER BY created_at`), batchName)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	return out, nil
}
