package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Tomate-Cerise  Bio", "tomate cerise bio"},
		{"tomate cerise bio", "tomate cerise bio"},
		{"TOMATE CERISE BIO", "tomate cerise bio"},
		{"Crème fraîche", "creme fraiche"},
		{"  Œufs   de poule ", "oeufs de poule"},
		{"Salade de tomates d'été", "salade de tomates d ete"},
		{"Poêle (24 cm)", "poele 24 cm"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.in))
		})
	}
}

func TestNormalizeNameIsDeterministic(t *testing.T) {
	a := NormalizeName("Tomate-Cerise  Bio")
	b := NormalizeName("tomate cerise bio")
	c := NormalizeName("TOMATE CERISE BIO")
	assert.Equal(t, a, b)
	assert.Equal(t, b, c)
}

func TestExtractKeywords(t *testing.T) {
	kw := ExtractKeywords("Une salade de tomates d'été avec du basilic et de la feta", 4)
	assert.Equal(t, []string{"salade", "tomates", "ete", "basilic"}, kw)

	assert.Empty(t, ExtractKeywords("de la et du", 4))
	assert.Len(t, ExtractKeywords("salade salade salade", 4), 1)
}

func TestKeywordOverlap(t *testing.T) {
	kw := []string{"salade", "tomates", "ete"}
	assert.Equal(t, 3, KeywordOverlap(kw, "Salade de Tomates d'Été"))
	assert.Equal(t, 1, KeywordOverlap(kw, "Salade niçoise"))
	assert.Equal(t, 0, KeywordOverlap(kw, "Gratin dauphinois"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "crème", Truncate("crème", 5))
	assert.Equal(t, "cr...", Truncate("crème brûlée", 5))
	assert.Equal(t, "cr", Truncate("crème brûlée", 2))
	assert.Equal(t, "", Truncate("crème", 0))
	assert.Equal(t, "", Truncate("crème", -1))
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"plain", `{"a":1}`, `{"a":1}`, false},
		{"wrapped", "Voici la recette :\n```json\n{\"a\":{\"b\":2}}\n```\nBon appétit !", `{"a":{"b":2}}`, false},
		{"braces in string", `ok {"a":"x}y{"} trailing }`, `{"a":"x}y{"}`, false},
		{"escaped quote", `{"a":"il dit \"}\""}`, `{"a":"il dit \"}\""}`, false},
		{"first of two", `{"a":1} {"b":2}`, `{"a":1}`, false},
		{"skips invalid prefix", `{not json} {"a":1}`, `{"a":1}`, false},
		{"none", "pas de JSON ici", "", true},
		{"unbalanced", `{"a":1`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONObject(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoJSONObject)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, got)
		})
	}
}

func TestMissingKeys(t *testing.T) {
	missing, err := MissingKeys(`{"recette":{},"ingredients":null}`, "recette", "ingredients", "ustensiles")
	require.NoError(t, err)
	assert.Equal(t, []string{"ingredients", "ustensiles"}, missing)
}

func TestParseJSONRejectsTrailingData(t *testing.T) {
	var v map[string]any
	assert.Error(t, ParseJSON(`{"a":1} {"b":2}`, &v))
	assert.NoError(t, ParseJSON(`{"a":1}`, &v))
}

func TestErrorCode(t *testing.T) {
	wrapped := fmt.Errorf("item 2: %w", NewParseFailure("bad output", errors.New("boom")))
	assert.Equal(t, ErrCodeParseFailure, ErrorCode(wrapped))
	assert.True(t, errors.Is(wrapped, ErrParseFailure))
	assert.False(t, errors.Is(wrapped, ErrGenerationFailure))

	verr := NewValidationError("invalid recipe", "nom: required")
	assert.Equal(t, ErrCodeValidationFailure, ErrorCode(verr))
	assert.True(t, errors.Is(verr, ErrValidationFailure))
	assert.True(t, IsValidationError(verr))

	assert.Equal(t, ErrCodeInternalError, ErrorCode(errors.New("plain")))
	assert.Equal(t, "", ErrorCode(nil))
}

func TestVocabulary(t *testing.T) {
	assert.True(t, SeasonEte.Valid())
	assert.False(t, Season("summer").Valid())
	assert.True(t, Unit("cuillere_soupe").Valid())
	assert.False(t, Allergen("pollen").Valid())
	assert.Equal(t, []string{"printemps", "ete", "automne", "hiver"}, Names(AllSeasons()))
	assert.Equal(t, []Season{SeasonEte}, IntersectSeasons([]Season{SeasonEte, SeasonHiver}, []Season{SeasonEte, SeasonPrintemps}))
}
