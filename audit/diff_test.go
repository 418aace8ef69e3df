package audit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godamri/helix-audit/audit"
)

func TestDiffReportsChangedFieldsOnly(t *testing.T) {
	oldObj := map[string]any{"name": "ava", "role": "viewer", "active": true}
	newObj := map[string]any{"name": "ava", "role": "editor", "active": true}

	delta, err := audit.Diff(oldObj, newObj)
	require.NoError(t, err)
	assert.Equal(t, map[string][2]string{"role": {"viewer", "editor"}}, delta)
}

func TestDiffEqualSnapshotsAreNil(t *testing.T) {
	obj := map[string]any{"name": "ava", "count": 3}

	delta, err := audit.Diff(obj, obj)
	require.NoError(t, err)
	assert.Nil(t, delta, "no changes means no delta, not an empty map")
}

func TestDiffAddedAndRemovedFields(t *testing.T) {
	oldObj := map[string]any{"name": "ava", "legacy": "x"}
	newObj := map[string]any{"name": "ava", "email": "ava@example.com"}

	delta, err := audit.Diff(oldObj, newObj)
	require.NoError(t, err)
	assert.Equal(t, map[string][2]string{
		"legacy": {"x", ""},
		"email":  {"", "ava@example.com"},
	}, delta)
}

func TestDiffNilOldTreatsEverythingAsNew(t *testing.T) {
	delta, err := audit.Diff(nil, map[string]any{"name": "ava"})
	require.NoError(t, err)
	assert.Equal(t, map[string][2]string{"name": {"", "ava"}}, delta)
}

func TestDiffStringifiesScalars(t *testing.T) {
	oldObj := map[string]any{"count": 3, "ratio": 0.5, "on": false, "note": nil}
	newObj := map[string]any{"count": 4, "ratio": 0.25, "on": true, "note": "hi"}

	delta, err := audit.Diff(oldObj, newObj)
	require.NoError(t, err)
	assert.Equal(t, map[string][2]string{
		"count": {"3", "4"},
		"ratio": {"0.5", "0.25"},
		"on":    {"false", "true"},
		"note":  {"", "hi"},
	}, delta)
}

func TestDiffAcceptsStructs(t *testing.T) {
	type invoice struct {
		ID    string  `json:"id"`
		Total float64 `json:"total"`
	}

	delta, err := audit.Diff(invoice{ID: "inv-1", Total: 100}, invoice{ID: "inv-1", Total: 120})
	require.NoError(t, err)
	assert.Equal(t, map[string][2]string{"total": {"100", "120"}}, delta)
}

func TestDiffNestedValuesCompareAsJSON(t *testing.T) {
	oldObj := map[string]any{"tags": []any{"a", "b"}}
	newObj := map[string]any{"tags": []any{"a", "c"}}

	delta, err := audit.Diff(oldObj, newObj)
	require.NoError(t, err)
	assert.Equal(t, map[string][2]string{"tags": {`["a","b"]`, `["a","c"]`}}, delta)
}

func TestDiffRejectsNonObjectSnapshots(t *testing.T) {
	_, err := audit.Diff("not an object", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an object")

	_, err = audit.Diff(map[string]any{}, make(chan int))
	require.Error(t, err)
}
