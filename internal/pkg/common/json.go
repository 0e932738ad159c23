package common

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoJSONObject 文本中找不到完整的 JSON 物件
var ErrNoJSONObject = errors.New("no JSON object found")

// ParseJSON 解析 JSON 字符串到結構體
func ParseJSON(data string, v interface{}) error {
	return decodeJSON(strings.NewReader(data), v, false)
}

// ParseJSONBytes 解析 JSON 位元組切片到結構體
func ParseJSONBytes(data []byte, v interface{}) error {
	return decodeJSON(bytes.NewReader(data), v, false)
}

func decodeJSON(r io.Reader, v interface{}, disallowUnknown bool) error {
	dec := json.NewDecoder(r)
	if disallowUnknown {
		dec.DisallowUnknownFields()
	}

	if err := dec.Decode(v); err != nil {
		return err
	}

	// 確保沒有多餘資料
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("unexpected extra JSON data")
	}
	return nil
}

// ExtractJSONObject 從 LLM 的自由文本中取出第一個括號平衡的 JSON 物件。
// 會略過字串內的大括號與跳脫字元，對話式的前後文字與 markdown fence 都會被忽略。
func ExtractJSONObject(raw string) (string, error) {
	start := strings.IndexByte(raw, '{')
	for start != -1 {
		if end := matchBrace(raw, start); end != -1 {
			candidate := raw[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, nil
			}
		}
		next := strings.IndexByte(raw[start+1:], '{')
		if next == -1 {
			break
		}
		start += next + 1
	}
	return "", ErrNoJSONObject
}

// matchBrace 回傳與 raw[start] 對應的右括號位置，找不到時回傳 -1
func matchBrace(raw string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// MissingKeys 回傳 JSON 物件缺少的頂層鍵
func MissingKeys(object string, keys ...string) ([]string, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(object), &top); err != nil {
		return nil, err
	}
	var missing []string
	for _, k := range keys {
		v, ok := top[k]
		if !ok || string(v) == "null" {
			missing = append(missing, k)
		}
	}
	return missing, nil
}

// StringSliceToString 將字符串切片轉換為逗號分隔的字符串
func StringSliceToString(slice []string) string {
	if len(slice) == 0 {
		return ""
	}
	return strings.Join(slice, ", ")
}
