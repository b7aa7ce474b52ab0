package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const minimalYAML = `
providers:
  openai:
    api_key: sk-test
    models:
      - id: gpt-4o-mini
`

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML), nil)
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "https://api.openai.com/v1", cfg.Providers.OpenAI.BaseURL)
	require.Equal(t, SearchBackendDuckDuckGo, cfg.Search.Backend)
	require.Equal(t, 3, cfg.Search.MaxResults)
	require.Equal(t, 100, cfg.Search.CacheSize)
	require.Equal(t, 9000, cfg.Retrieval.TokenBudget)
	require.Equal(t, 8, cfg.Retrieval.Workers)
	require.Equal(t, "o200k_base", cfg.Retrieval.Encoding)
	require.Equal(t, 5*time.Second, cfg.Extractor.Timeout)
	require.Equal(t, 500*time.Millisecond, cfg.Extractor.Delay)
}

func TestParseDurations(t *testing.T) {
	data := minimalYAML + `
extractor:
  timeout: 2s
  delay: 100ms
`
	cfg, err := Parse([]byte(data), nil)
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, cfg.Extractor.Timeout)
	require.Equal(t, 100*time.Millisecond, cfg.Extractor.Delay)
}

func TestParseEnvOverrides(t *testing.T) {
	data := `
providers:
  openai:
    models:
      - id: gpt-4o-mini
`
	cfg, err := Parse([]byte(data), envMap(map[string]string{
		"OPENAI_API_KEY":     "sk-env",
		"MAX_SEARCH_RESULTS": "5",
		"TOKEN_BUDGET":       "1200",
	}))
	require.NoError(t, err)
	require.Equal(t, "sk-env", cfg.Providers.OpenAI.APIKey)
	require.Equal(t, 5, cfg.Search.MaxResults)
	require.Equal(t, 1200, cfg.Retrieval.TokenBudget)
}

func TestParseEnvOverrideNotNumeric(t *testing.T) {
	_, err := Parse([]byte(minimalYAML), envMap(map[string]string{"MAX_SEARCH_RESULTS": "many"}))
	require.ErrorContains(t, err, "MAX_SEARCH_RESULTS")
}

func TestValidateFailures(t *testing.T) {
	cases := map[string]string{
		"missing api key": `
providers:
  openai:
    models: [{id: m}]
`,
		"no models": `
providers:
  openai:
    api_key: k
`,
		"bad backend": minimalYAML + `
search:
  backend: altavista
`,
		"tavily without key": minimalYAML + `
search:
  backend: tavily
`,
		"bad port": minimalYAML + `
server:
  port: 70000
`,
		"bad header": `
providers:
  openai:
    api_key: k
    models: [{id: m}]
    headers:
      "X Bad": v
`,
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data), nil)
			require.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ellmo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML+"\nserver:\n  port: 9001\n"), 0o600))

	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9001, cfg.Server.Port)
	require.Equal(t, "sk-test", cfg.Providers.OpenAI.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadRetrievalSkipsProviders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ellmo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  max_results: 5\n"), 0o600))
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := LoadRetrieval(path)
	require.NoError(t, err)
	require.Equal(t, 5, cfg.Search.MaxResults)
	require.Equal(t, 9000, cfg.Retrieval.TokenBudget)

	_, err = Load(path)
	require.ErrorContains(t, err, "api_key must be provided")
}

func TestLoadRetrievalStillValidatesSearch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ellmo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  backend: brave\n"), 0o600))
	t.Setenv("SEARCH_API_KEY", "")

	_, err := LoadRetrieval(path)
	require.ErrorContains(t, err, "search backend brave")
}
