package swarm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// bencode serializes a value in bencoding. Supported types: string, []byte,
// int, int64, []any, and map[string]any. Dictionary keys are emitted in
// sorted order, which makes the encoding deterministic, so every
// party derives the same identifier from the same payload.
func bencode(v any) ([]byte, error) {
	var b strings.Builder
	if err := bencodeTo(&b, v); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func bencodeTo(b *strings.Builder, v any) error {
	switch val := v.(type) {
	case string:
		b.WriteString(strconv.Itoa(len(val)))
		b.WriteByte(':')
		b.WriteString(val)
	case []byte:
		b.WriteString(strconv.Itoa(len(val)))
		b.WriteByte(':')
		b.Write(val)
	case int:
		b.WriteByte('i')
		b.WriteString(strconv.Itoa(val))
		b.WriteByte('e')
	case int64:
		b.WriteByte('i')
		b.WriteString(strconv.FormatInt(val, 10))
		b.WriteByte('e')
	case []any:
		b.WriteByte('l')
		for _, item := range val {
			if err := bencodeTo(b, item); err != nil {
				return err
			}
		}
		b.WriteByte('e')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('d')
		for _, k := range keys {
			if err := bencodeTo(b, k); err != nil {
				return err
			}
			if err := bencodeTo(b, val[k]); err != nil {
				return err
			}
		}
		b.WriteByte('e')
	default:
		return fmt.Errorf("bencode: unsupported type %T", v)
	}
	return nil
}
