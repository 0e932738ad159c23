package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"recipe-ingest/internal/pkg/common"
)

// MemoryStore 記憶體儲存，供測試與 dry-run 使用
type MemoryStore struct {
	mu          sync.RWMutex
	ingredients *memEntities[*Ingredient]
	utensils    *memEntities[*Utensil]
	recipes     *memRecipes
	audit       *memAudit
	closed      bool
}

// NewMemoryStore 建立空的記憶體儲存
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.ingredients = newMemEntities(&s.mu, func(i *Ingredient) *Ingredient {
		c := *i
		c.Allergenes = append(StringList(nil), i.Allergenes...)
		c.Saison = append(StringList(nil), i.Saison...)
		return &c
	})
	s.utensils = newMemEntities(&s.mu, func(u *Utensil) *Utensil {
		c := *u
		return &c
	})
	s.recipes = &memRecipes{
		memEntities: newMemEntities(&s.mu, func(r *Recipe) *Recipe {
			c := *r
			c.Regimes = append(StringList(nil), r.Regimes...)
			c.TypesRepas = append(StringList(nil), r.TypesRepas...)
			c.Saison = append(StringList(nil), r.Saison...)
			return &c
		}),
		ingredientLinks: make(map[string][]RecipeIngredient),
		utensilLinks:    make(map[string][]RecipeUtensil),
	}
	s.audit = &memAudit{mu: &s.mu}
	return s
}

func (s *MemoryStore) Ingredients() EntityRepository[*Ingredient] { return s.ingredients }
func (s *MemoryStore) Utensils() EntityRepository[*Utensil]       { return s.utensils }
func (s *MemoryStore) Recipes() RecipeRepository                  { return s.recipes }
func (s *MemoryStore) Audit() AuditRepository                     { return s.audit }

// Ping 記憶體儲存永遠可用，除非已關閉
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return ctx.Err()
}

// Close 標記為已關閉
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

type memEntities[T Entity] struct {
	mu     *sync.RWMutex
	byID   map[string]T
	byNorm map[string]string
	clone  func(T) T
}

func newMemEntities[T Entity](mu *sync.RWMutex, clone func(T) T) *memEntities[T] {
	return &memEntities[T]{
		mu:     mu,
		byID:   make(map[string]T),
		byNorm: make(map[string]string),
		clone:  clone,
	}
}

func (m *memEntities[T]) FindByNormalizedName(ctx context.Context, key string) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byNorm[key]
	if !ok {
		return zero, nil
	}
	return m.clone(m.byID[id]), nil
}

func (m *memEntities[T]) FindByName(ctx context.Context, name string) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.byID {
		if e.GetIsPublic() && strings.EqualFold(e.GetName(), name) {
			return m.clone(e), nil
		}
	}
	return zero, nil
}

func (m *memEntities[T]) Insert(ctx context.Context, entity T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// 正規化名稱只在公開項目之間唯一
	if _, dup := m.byNorm[entity.GetNormalizedName()]; dup && entity.GetIsPublic() {
		return ErrUniqueViolation
	}
	if _, dup := m.byID[entity.GetID()]; dup {
		return ErrUniqueViolation
	}
	m.byID[entity.GetID()] = m.clone(entity)
	if entity.GetIsPublic() {
		m.byNorm[entity.GetNormalizedName()] = entity.GetID()
	}
	return nil
}

func (m *memEntities[T]) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return nil
	}
	if m.byNorm[e.GetNormalizedName()] == id {
		delete(m.byNorm, e.GetNormalizedName())
	}
	delete(m.byID, id)
	return nil
}

func (m *memEntities[T]) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID), nil
}

type memRecipes struct {
	*memEntities[*Recipe]
	ingredientLinks map[string][]RecipeIngredient
	utensilLinks    map[string][]RecipeUtensil
}

func (m *memRecipes) SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]*Recipe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Recipe
	for _, r := range m.byID {
		if !r.IsPublic {
			continue
		}
		haystack := r.NomNormalise + " " + common.NormalizeName(r.Description)
		for _, k := range keywords {
			if strings.Contains(haystack, k) {
				out = append(out, m.clone(r))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRecipes) InsertIngredientLink(ctx context.Context, link RecipeIngredient) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[link.RecipeID]; !ok {
		return ErrForeignKey
	}
	for _, l := range m.ingredientLinks[link.RecipeID] {
		if l.IngredientID == link.IngredientID {
			return ErrUniqueViolation
		}
	}
	m.ingredientLinks[link.RecipeID] = append(m.ingredientLinks[link.RecipeID], link)
	return nil
}

func (m *memRecipes) InsertUtensilLink(ctx context.Context, link RecipeUtensil) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[link.RecipeID]; !ok {
		return ErrForeignKey
	}
	for _, l := range m.utensilLinks[link.RecipeID] {
		if l.UtensilID == link.UtensilID {
			return ErrUniqueViolation
		}
	}
	m.utensilLinks[link.RecipeID] = append(m.utensilLinks[link.RecipeID], link)
	return nil
}

func (m *memRecipes) DeleteIngredientLinks(ctx context.Context, recipeID string) error {
	m.mu.Lock()
	delete(m.ingredientLinks, recipeID)
	m.mu.Unlock()
	return ctx.Err()
}

func (m *memRecipes) DeleteUtensilLinks(ctx context.Context, recipeID string) error {
	m.mu.Lock()
	delete(m.utensilLinks, recipeID)
	m.mu.Unlock()
	return ctx.Err()
}

func (m *memRecipes) ListIngredientLinks(ctx context.Context, recipeID string) ([]RecipeIngredient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RecipeIngredient(nil), m.ingredientLinks[recipeID]...), nil
}

func (m *memRecipes) ListUtensilLinks(ctx context.Context, recipeID string) ([]RecipeUtensil, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RecipeUtensil(nil), m.utensilLinks[recipeID]...), nil
}

// Delete 刪除食譜時一併清除關聯列
func (m *memRecipes) Delete(ctx context.Context, id string) error {
	if err := m.memEntities.Delete(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.ingredientLinks, id)
	delete(m.utensilLinks, id)
	m.mu.Unlock()
	return nil
}

type memAudit struct {
	mu      *sync.RWMutex
	records []*AuditRecord
	// failWith 測試用：非 nil 時 Record 一律回傳此錯誤
	failWith error
}

func (a *memAudit) Record(ctx context.Context, rec *AuditRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failWith != nil {
		return a.failWith
	}
	c := *rec
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	a.records = append(a.records, &c)
	return nil
}

func (a *memAudit) ListByBatch(ctx context.Context, batchName string) ([]*AuditRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []*AuditRecord
	for _, r := range a.records {
		if r.BatchName == batchName {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

// FailAudit 讓後續稽核寫入失敗（測試用）
func (s *MemoryStore) FailAudit(err error) {
	s.mu.Lock()
	s.audit.failWith = err
	s.mu.Unlock()
}
