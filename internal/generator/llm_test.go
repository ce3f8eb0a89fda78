package generator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfg := Config{BaseURL: "https://api.openai.com/v1", Model: "gpt-4o"}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("missing base url", func(t *testing.T) {
		err := Config{Model: "gpt-4o"}.Validate()
		assert.Error(t, err)
	})

	t.Run("missing model", func(t *testing.T) {
		err := Config{BaseURL: "https://api.openai.com/v1"}.Validate()
		assert.Error(t, err)
	})
}

func TestBuildPrompt(t *testing.T) {
	spec := map[string]string{"spec.md": "# Ping API"}

	t.Run("includes spec and current files", func(t *testing.T) {
		prompt := buildPrompt("python", spec, map[string]string{"main.py": "pass"})

		assert.Contains(t, prompt, "Target language: python")
		assert.Contains(t, prompt, "### spec.md")
		assert.Contains(t, prompt, "# Ping API")
		assert.Contains(t, prompt, "### main.py")
		assert.Contains(t, prompt, "single JSON object")
	})

	t.Run("marks empty targets", func(t *testing.T) {
		prompt := buildPrompt("rust", spec, nil)
		assert.Contains(t, prompt, "(none)")
	})

	t.Run("deterministic file ordering", func(t *testing.T) {
		files := map[string]string{"z.py": "z", "a.py": "a", "m.py": "m"}

		first := buildPrompt("python", spec, files)
		for range 10 {
			assert.Equal(t, first, buildPrompt("python", spec, files))
		}

		require.Less(t, strings.Index(first, "### a.py"), strings.Index(first, "### m.py"))
		require.Less(t, strings.Index(first, "### m.py"), strings.Index(first, "### z.py"))
	})
}
