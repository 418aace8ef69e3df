package audit

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Diff computes the changed-fields delta between two object snapshots.
// Snapshots are maps or anything JSON-marshallable into an object.
// Fields present in only one snapshot appear with an empty counterpart;
// unchanged fields are omitted. A nil map means nothing changed.
func Diff(oldObj, newObj any) (map[string][2]string, error) {
	oldm, err := snapshotMap(oldObj)
	if err != nil {
		return nil, err
	}
	newm, err := snapshotMap(newObj)
	if err != nil {
		return nil, err
	}

	delta := make(map[string][2]string)
	for field, ov := range oldm {
		nv, ok := newm[field]
		if !ok {
			delta[field] = [2]string{stringify(ov), ""}
			continue
		}
		os, ns := stringify(ov), stringify(nv)
		if os != ns {
			delta[field] = [2]string{os, ns}
		}
	}
	for field, nv := range newm {
		if _, ok := oldm[field]; !ok {
			delta[field] = [2]string{"", stringify(nv)}
		}
	}

	if len(delta) == 0 {
		return nil, nil
	}
	return delta, nil
}

func snapshotMap(obj any) (map[string]any, error) {
	switch v := obj.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("audit: snapshot %T: %w", obj, err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("audit: snapshot %T is not an object: %w", obj, err)
	}
	return m, nil
}

// stringify renders a decoded JSON value the way it is stored in the
// diff. Map keys marshal in sorted order, so equal objects compare
// equal as strings.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(raw)
	}
}
