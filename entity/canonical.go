package entity

import (
	"encoding/json"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// CanonicalJSON serialises doc with recursively sorted object keys, the
// canonicalisation spec.md §4.E step 3 requires before hashing. Go's
// encoding/json already sorts map keys when marshaling a map, but Document
// is a struct with fixed field order and nested maps of slices/structs
// whose own map fields also need sorting; round-tripping through
// map[string]interface{} gives us that recursively for free at the cost
// of one extra decode pass, which is acceptable since this only runs on
// the write path, not in a hot read loop.
func CanonicalJSON(doc *Document) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return canonicalMarshal(generic)
}

func canonicalMarshal(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, kb...)
			buf = append(buf, ':')
			vb, err := canonicalMarshal(t[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, vb...)
		}
		buf = append(buf, '}')
		return buf, nil
	case []interface{}:
		buf := []byte{'['}
		for i, item := range t {
			if i > 0 {
				buf = append(buf, ',')
			}
			b, err := canonicalMarshal(item)
			if err != nil {
				return nil, err
			}
			buf = append(buf, b...)
		}
		buf = append(buf, ']')
		return buf, nil
	default:
		return json.Marshal(t)
	}
}

// ContentHash computes the fast non-cryptographic 64-bit digest spec.md
// §4.E step 3 and §9 Open Question 2 call for, over the canonical JSON
// encoding of doc. Any 64-bit hash with xxhash's collision properties is
// acceptable per spec.md; there is no requirement to match a reference
// implementation's values.
func ContentHash(doc *Document) (uint64, error) {
	canon, err := CanonicalJSON(doc)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(canon), nil
}
