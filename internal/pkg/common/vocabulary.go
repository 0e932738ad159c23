package common

// 封閉詞彙表：提示詞組裝與驗證器共用同一份定義

// Season 季節
type Season string

const (
	SeasonPrintemps Season = "printemps"
	SeasonEte       Season = "ete"
	SeasonAutomne   Season = "automne"
	SeasonHiver     Season = "hiver"
)

// Diet 飲食規範
type Diet string

const (
	DietOmnivore    Diet = "omnivore"
	DietVegetarien  Diet = "vegetarien"
	DietVegan       Diet = "vegan"
	DietSansGluten  Diet = "sans_gluten"
	DietSansLactose Diet = "sans_lactose"
	DietHalal       Diet = "halal"
	DietCasher      Diet = "casher"
)

// MealType 餐別
type MealType string

const (
	MealPetitDejeuner  MealType = "petit_dejeuner"
	MealEntree         MealType = "entree"
	MealPlatPrincipal  MealType = "plat_principal"
	MealDessert        MealType = "dessert"
	MealGouter         MealType = "gouter"
	MealAperitif       MealType = "aperitif"
	MealAccompagnement MealType = "accompagnement"
)

// Unit 計量單位
type Unit string

const (
	UnitGramme        Unit = "g"
	UnitKilogramme    Unit = "kg"
	UnitMillilitre    Unit = "ml"
	UnitCentilitre    Unit = "cl"
	UnitLitre         Unit = "l"
	UnitPiece         Unit = "piece"
	UnitCuillereSoupe Unit = "cuillere_soupe"
	UnitCuillereCafe  Unit = "cuillere_cafe"
	UnitPincee        Unit = "pincee"
	UnitTranche       Unit = "tranche"
	UnitGousse        Unit = "gousse"
	UnitBotte         Unit = "botte"
)

// IngredientCategory 食材分類
type IngredientCategory string

const (
	CategoryLegume         IngredientCategory = "legume"
	CategoryFruit          IngredientCategory = "fruit"
	CategoryViande         IngredientCategory = "viande"
	CategoryPoisson        IngredientCategory = "poisson"
	CategoryProduitLaitier IngredientCategory = "produit_laitier"
	CategoryCereale        IngredientCategory = "cereale"
	CategoryLegumineuse    IngredientCategory = "legumineuse"
	CategoryEpice          IngredientCategory = "epice"
	CategoryHerbe          IngredientCategory = "herbe"
	CategoryCondiment      IngredientCategory = "condiment"
	CategoryMatiereGrasse  IngredientCategory = "matiere_grasse"
	CategorySucre          IngredientCategory = "sucre"
	CategoryBoisson        IngredientCategory = "boisson"
	CategoryAutre          IngredientCategory = "autre"
)

// Allergen 過敏原
type Allergen string

const (
	AllergenGluten       Allergen = "gluten"
	AllergenLactose      Allergen = "lactose"
	AllergenOeufs        Allergen = "oeufs"
	AllergenArachides    Allergen = "arachides"
	AllergenFruitsACoque Allergen = "fruits_a_coque"
	AllergenSoja         Allergen = "soja"
	AllergenPoisson      Allergen = "poisson"
	AllergenCrustaces    Allergen = "crustaces"
	AllergenMollusques   Allergen = "mollusques"
	AllergenCeleri       Allergen = "celeri"
	AllergenMoutarde     Allergen = "moutarde"
	AllergenSesame       Allergen = "sesame"
	AllergenSulfites     Allergen = "sulfites"
	AllergenLupin        Allergen = "lupin"
)

// UtensilCategory 器具分類
type UtensilCategory string

const (
	UtensilCuisson        UtensilCategory = "cuisson"
	UtensilPreparation    UtensilCategory = "preparation"
	UtensilDecoupe        UtensilCategory = "decoupe"
	UtensilMesure         UtensilCategory = "mesure"
	UtensilService        UtensilCategory = "service"
	UtensilElectromenager UtensilCategory = "electromenager"
	UtensilAutre          UtensilCategory = "autre"
)

// 難度範圍
const (
	MinDifficulty = 1
	MaxDifficulty = 5
)

// AllSeasons 所有季節
func AllSeasons() []Season {
	return []Season{SeasonPrintemps, SeasonEte, SeasonAutomne, SeasonHiver}
}

// AllDiets 所有飲食規範
func AllDiets() []Diet {
	return []Diet{DietOmnivore, DietVegetarien, DietVegan, DietSansGluten, DietSansLactose, DietHalal, DietCasher}
}

// AllMealTypes 所有餐別
func AllMealTypes() []MealType {
	return []MealType{MealPetitDejeuner, MealEntree, MealPlatPrincipal, MealDessert, MealGouter, MealAperitif, MealAccompagnement}
}

// AllUnits 所有單位
func AllUnits() []Unit {
	return []Unit{
		UnitGramme, UnitKilogramme, UnitMillilitre, UnitCentilitre, UnitLitre, UnitPiece,
		UnitCuillereSoupe, UnitCuillereCafe, UnitPincee, UnitTranche, UnitGousse, UnitBotte,
	}
}

// AllIngredientCategories 所有食材分類
func AllIngredientCategories() []IngredientCategory {
	return []IngredientCategory{
		CategoryLegume, CategoryFruit, CategoryViande, CategoryPoisson, CategoryProduitLaitier,
		CategoryCereale, CategoryLegumineuse, CategoryEpice, CategoryHerbe, CategoryCondiment,
		CategoryMatiereGrasse, CategorySucre, CategoryBoisson, CategoryAutre,
	}
}

// AllAllergens 所有過敏原
func AllAllergens() []Allergen {
	return []Allergen{
		AllergenGluten, AllergenLactose, AllergenOeufs, AllergenArachides, AllergenFruitsACoque,
		AllergenSoja, AllergenPoisson, AllergenCrustaces, AllergenMollusques, AllergenCeleri,
		AllergenMoutarde, AllergenSesame, AllergenSulfites, AllergenLupin,
	}
}

// AllUtensilCategories 所有器具分類
func AllUtensilCategories() []UtensilCategory {
	return []UtensilCategory{
		UtensilCuisson, UtensilPreparation, UtensilDecoupe, UtensilMesure,
		UtensilService, UtensilElectromenager, UtensilAutre,
	}
}

func (s Season) Valid() bool             { return contains(AllSeasons(), s) }
func (d Diet) Valid() bool               { return contains(AllDiets(), d) }
func (m MealType) Valid() bool           { return contains(AllMealTypes(), m) }
func (u Unit) Valid() bool               { return contains(AllUnits(), u) }
func (c IngredientCategory) Valid() bool { return contains(AllIngredientCategories(), c) }
func (a Allergen) Valid() bool           { return contains(AllAllergens(), a) }
func (c UtensilCategory) Valid() bool    { return contains(AllUtensilCategories(), c) }

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Names 將詞彙轉為字串切片，供提示詞與錯誤訊息使用
func Names[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
