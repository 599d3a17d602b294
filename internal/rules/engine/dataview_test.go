package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDataView(t *testing.T) {
	view := NewDataView(map[string]any{
		"name":   "Ada",
		"age":    36.0,
		"active": true,
		"tags":   []any{"a", "b"},
		"nested": map[string]any{"list": []any{map[string]any{"k": "v"}}},
	})

	s, ok := view.String("name")
	assert.True(t, ok)
	assert.Equal(t, "Ada", s)

	n, ok := view.Number("age")
	assert.True(t, ok)
	assert.Equal(t, 36.0, n)

	b, ok := view.Bool("active")
	assert.True(t, ok)
	assert.True(t, b)

	tags, ok := view.Strings("tags")
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, tags)

	deep, ok := view.String("nested.list.0.k")
	assert.True(t, ok)
	assert.Equal(t, "v", deep)

	_, ok = view.Get("nested.list.9")
	assert.False(t, ok)
	_, ok = view.Number("name")
	assert.False(t, ok)

	assert.Equal(t, []string{"active", "age", "name", "nested", "tags"}, view.Keys())

	var paths []string
	view.WalkStrings(func(path, _ string) { paths = append(paths, path) })
	assert.Equal(t, []string{"name", "nested.list.0.k", "tags.0", "tags.1"}, paths)
}

func TestDataViewReturnsCopies(t *testing.T) {
	payload := map[string]any{"tags": []any{"a"}}
	view := NewDataView(payload)

	got, _ := view.Get("tags")
	got.([]any)[0] = "z"

	assert.Equal(t, "a", payload["tags"].([]any)[0])
}
