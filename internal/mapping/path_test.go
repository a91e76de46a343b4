package mapping

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func decodeItem(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var item map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &item))
	return item
}

func TestResolve(t *testing.T) {
	item := decodeItem(t, `{
		"id": 7,
		"name": "Alpha",
		"empty": "",
		"none": null,
		"meta": {"author": {"name": "Ann"}, "tags": ["x", "y"]},
		"images": [{"url": "/a.png"}, {"url": "/b.png"}, {"alt": "no url"}],
		"nested": [[{"v": 1}], [{"v": 2}, {"v": 3}]]
	}`)

	tests := []struct {
		name string
		path string
		want Value
	}{
		{name: "top level", path: "name", want: Value{Kind: Scalar, Scalar: "Alpha"}},
		{name: "number untouched", path: "id", want: Value{Kind: Scalar, Scalar: float64(7)}},
		{name: "empty string is present", path: "empty", want: Value{Kind: Scalar, Scalar: ""}},
		{name: "null is absent", path: "none", want: Value{}},
		{name: "missing key", path: "nope", want: Value{}},
		{name: "missing nested", path: "meta.author.email", want: Value{}},
		{name: "nested object", path: "meta.author.name", want: Value{Kind: Scalar, Scalar: "Ann"}},
		{name: "array leaf", path: "meta.tags", want: Value{Kind: List, List: []interface{}{"x", "y"}}},
		{name: "fan out", path: "images.url", want: Value{Kind: List, List: []interface{}{"/a.png", "/b.png"}}},
		{name: "explicit fan out marker", path: "images[].url", want: Value{Kind: List, List: []interface{}{"/a.png", "/b.png"}}},
		{name: "index", path: "images.1.url", want: Value{Kind: Scalar, Scalar: "/b.png"}},
		{name: "index out of range", path: "images.9.url", want: Value{}},
		{name: "nested arrays flatten", path: "nested.v", want: Value{Kind: List, List: []interface{}{float64(1), float64(2), float64(3)}}},
		{name: "key on scalar", path: "name.first", want: Value{}},
		{name: "empty path", path: "", want: Value{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Resolve(item, tt.path))
		})
	}
}

func TestResolveNilItem(t *testing.T) {
	require.True(t, Resolve(nil, "a").IsAbsent())
}

func TestValueValues(t *testing.T) {
	require.Nil(t, Value{}.Values())
	require.Equal(t, []interface{}{"a"}, Value{Kind: Scalar, Scalar: "a"}.Values())
	require.Equal(t, []interface{}{"a", "b"}, Value{Kind: List, List: []interface{}{"a", "b"}}.Values())
}
