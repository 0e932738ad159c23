package generator

import (
	"fmt"
	"strings"

	"recipe-ingest/internal/pkg/common"
)

const systemPrompt = `Tu es un chef cuisinier et nutritionniste. Tu réponds UNIQUEMENT avec un objet JSON valide, sans texte autour, sans bloc de code. Les valeurs énumérées doivent être choisies EXACTEMENT dans les listes fournies.`

// vocabulary 將封閉詞彙表渲染為提示詞片段，與驗證器共用同一份資料
func vocabulary() string {
	var sb strings.Builder
	line := func(label string, values []string) {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", label, strings.Join(values, ", ")))
	}
	line("saison", common.Names(common.AllSeasons()))
	line("regimes", common.Names(common.AllDiets()))
	line("types_repas", common.Names(common.AllMealTypes()))
	line("unite", common.Names(common.AllUnits()))
	line("categorie (ingredient)", common.Names(common.AllIngredientCategories()))
	line("allergenes", common.Names(common.AllAllergens()))
	line("categorie (ustensile)", common.Names(common.AllUtensilCategories()))
	sb.WriteString(fmt.Sprintf("- difficulte: entier de %d à %d\n", common.MinDifficulty, common.MaxDifficulty))
	return sb.String()
}

func namePrompt(req common.GenerationRequest) string {
	var sb strings.Builder
	sb.WriteString("Propose un nom de recette court et précis (3 à 100 caractères) pour la demande suivante.\n\n")
	sb.WriteString("Demande : " + strings.TrimSpace(req.Description) + "\n")
	sb.WriteString("Contraintes :\n")
	sb.WriteString(common.FormatConstraints(req.Contraintes))
	sb.WriteString("\nFormat de réponse :\n{\"nom\": \"...\"}\n")
	return sb.String()
}

func fullPrompt(req common.GenerationRequest, name string, minInstructionLength int) string {
	var sb strings.Builder
	sb.WriteString("Génère une recette complète pour la demande suivante.\n\n")
	sb.WriteString("Demande : " + strings.TrimSpace(req.Description) + "\n")
	if name != "" {
		sb.WriteString("Nom imposé : " + name + "\n")
	}
	sb.WriteString("Contraintes :\n")
	sb.WriteString(common.FormatConstraints(req.Contraintes))
	sb.WriteString("\nValeurs autorisées :\n")
	sb.WriteString(vocabulary())
	sb.WriteString("\nRègles :\n")
	sb.WriteString(fmt.Sprintf("- instructions détaillées, au moins %d caractères\n", minInstructionLength))
	sb.WriteString("- temps_preparation entre 1 et 480 minutes, temps_cuisson entre 0 et 480 minutes\n")
	sb.WriteString("- portions entre 1 et 20, quantite strictement positive\n")
	sb.WriteString("- une recette vegan ne contient ni viande, ni poisson, ni produit_laitier\n")
	sb.WriteString("- une recette sans_gluten ne contient aucun ingrédient avec l'allergène gluten (idem sans_lactose et lactose)\n")
	sb.WriteString("- la saison de chaque ingrédient doit recouper la saison de la recette\n")
	sb.WriteString(`
Format de réponse :
{
  "recette": {"nom": "", "description": "", "instructions": "", "temps_preparation": 0, "temps_cuisson": 0,
              "portions": 0, "difficulte": 0, "regimes": [], "types_repas": [], "saison": [],
              "cout_estime": 0, "calories": 0},
  "ingredients": [{"nom": "", "quantite": 0, "unite": "", "optionnel": false, "categorie": "",
                   "allergenes": [], "saison": [], "prix_moyen": 0}],
  "ustensiles": [{"nom": "", "categorie": "", "obligatoire": true, "description": ""}]
}
`)
	return sb.String()
}

func ingredientPrompt(name, hint string) string {
	var sb strings.Builder
	sb.WriteString("Décris l'ingrédient suivant : " + name + "\n")
	if hint != "" {
		sb.WriteString("Contexte : " + hint + "\n")
	}
	sb.WriteString("\nValeurs autorisées :\n")
	sb.WriteString(vocabulary())
	sb.WriteString(`
Format de réponse :
{"nom": "", "quantite": 1, "unite": "", "optionnel": false, "categorie": "", "allergenes": [], "saison": [], "prix_moyen": 0}
`)
	return sb.String()
}

func utensilPrompt(name, hint string) string {
	var sb strings.Builder
	sb.WriteString("Décris l'ustensile de cuisine suivant : " + name + "\n")
	if hint != "" {
		sb.WriteString("Contexte : " + hint + "\n")
	}
	sb.WriteString("\ncategorie autorisée : " + strings.Join(common.Names(common.AllUtensilCategories()), ", ") + "\n")
	sb.WriteString(`
Format de réponse :
{"nom": "", "categorie": "", "obligatoire": true, "description": ""}
`)
	return sb.String()
}
