package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringList 以 JSON 陣列存放的字串清單（postgres 與 sqlite 共用同一格式）
type StringList []string

// Value 實作 driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan 實作 sql.Scanner
func (l *StringList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case string:
		return json.Unmarshal([]byte(v), l)
	case []byte:
		return json.Unmarshal(v, l)
	default:
		return fmt.Errorf("store: cannot scan %T into StringList", src)
	}
}

// Strings 轉換為具名字串型別的清單
func Strings[T ~string](values []T) StringList {
	out := make(StringList, 0, len(values))
	for _, v := range values {
		out = append(out, string(v))
	}
	return out
}

// JSONMap 以 JSON 物件存放的附加資料
type JSONMap map[string]any

// Value 實作 driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan 實作 sql.Scanner
func (m *JSONMap) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = JSONMap{}
		return nil
	case string:
		return json.Unmarshal([]byte(v), m)
	case []byte:
		return json.Unmarshal(v, m)
	default:
		return fmt.Errorf("store: cannot scan %T into JSONMap", src)
	}
}
