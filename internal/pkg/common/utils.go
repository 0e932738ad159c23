package common

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// GenerateUUID 生成 UUID
func GenerateUUID() string {
	return uuid.New().String()
}

// 合字不會被 NFD 拆開，需手動展開
var ligatures = strings.NewReplacer("œ", "oe", "Œ", "oe", "æ", "ae", "Æ", "ae")

// NormalizeName 產生唯一鍵：去除重音、轉小寫、標點改為空白、合併空白
func NormalizeName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, ligatures.Replace(name))
	if err != nil {
		stripped = name
	}

	var sb strings.Builder
	sb.Grow(len(stripped))
	for _, r := range strings.ToLower(stripped) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
		default:
			// 標點、連字號與撇號都視為分隔
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// 法文停用詞，用於關鍵字抽取
var stopWords = map[string]struct{}{
	"a": {}, "au": {}, "aux": {}, "avec": {}, "ce": {}, "ces": {}, "d": {}, "dans": {},
	"de": {}, "des": {}, "du": {}, "en": {}, "et": {}, "l": {}, "la": {}, "le": {},
	"les": {}, "ma": {}, "mon": {}, "ou": {}, "par": {}, "pour": {}, "sans": {}, "sur": {},
	"un": {}, "une": {}, "recette": {}, "facile": {}, "maison": {}, "petit": {}, "petite": {},
	"bon": {}, "bonne": {}, "tres": {}, "plat": {},
}

// ExtractKeywords 抽取前 max 個有意義的關鍵字（已正規化、去停用詞、去重）
func ExtractKeywords(text string, max int) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, token := range strings.Fields(NormalizeName(text)) {
		if len([]rune(token)) < 3 {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

// KeywordOverlap 計算關鍵字在文本中出現的數量
func KeywordOverlap(keywords []string, text string) int {
	tokens := make(map[string]struct{})
	for _, t := range strings.Fields(NormalizeName(text)) {
		tokens[t] = struct{}{}
	}
	n := 0
	for _, k := range keywords {
		if _, ok := tokens[k]; ok {
			n++
		}
	}
	return n
}

// Truncate 截斷過長的字串（日誌用）
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:max(n, 0)])
	}
	return string(r[:n-3]) + "..."
}
