package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "hello world", "hello world"},
		{"script tags stripped", "<script>alert(1)</script>hi", "alert(1)hi"},
		{"self closing tag stripped", "a<br/>b", "ab"},
		{"attributes stripped with tag", `<img src="x" onerror="p()">ok`, "ok"},
		{"lone angle bracket kept", "a < b", "a < b"},
		{"empty string", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, String(tt.in))
		})
	}
}

func TestBody(t *testing.T) {
	t.Run("nested values sanitized", func(t *testing.T) {
		in := map[string]any{
			"bio": "<b>bold</b> claim",
			"profile": map[string]any{
				"headline": "<script>x</script>clean",
			},
			"tags": []any{"<i>one</i>", "two"},
			"age":  float64(30),
		}

		out := Body(in)

		assert.Equal(t, "bold claim", out["bio"])
		assert.Equal(t, "clean", out["profile"].(map[string]any)["headline"])
		assert.Equal(t, []any{"one", "two"}, out["tags"])
		assert.Equal(t, float64(30), out["age"])
	})

	t.Run("prototype keys dropped at every level", func(t *testing.T) {
		in := map[string]any{
			"__proto__":   map[string]any{"polluted": true},
			"constructor": "bad",
			"nested": map[string]any{
				"prototype": "bad",
				"keep":      "ok",
			},
		}

		out := Body(in)

		assert.NotContains(t, out, "__proto__")
		assert.NotContains(t, out, "constructor")
		nested := out["nested"].(map[string]any)
		assert.NotContains(t, nested, "prototype")
		assert.Equal(t, "ok", nested["keep"])
	})

	t.Run("input map left unmodified", func(t *testing.T) {
		in := map[string]any{"bio": "<b>x</b>"}
		_ = Body(in)
		assert.Equal(t, "<b>x</b>", in["bio"])
	})

	t.Run("nil body stays nil", func(t *testing.T) {
		assert.Nil(t, Body(nil))
	})

	t.Run("excessive nesting is left as is past the bound", func(t *testing.T) {
		deep := map[string]any{}
		current := deep
		for i := 0; i < 20; i++ {
			next := map[string]any{}
			current["level"] = next
			current = next
		}
		current["tail"] = "<b>x</b>"

		// Must not panic or recurse unboundedly.
		out := Body(deep)
		assert.NotNil(t, out)
	})
}

func TestParams(t *testing.T) {
	in := map[string]string{
		"q":         "<script>x</script>term",
		"__proto__": "bad",
	}

	out := Params(in)

	assert.Equal(t, "xterm", out["q"])
	assert.NotContains(t, out, "__proto__")
	assert.Nil(t, Params(nil))
}
