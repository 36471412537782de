package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nrjais/emquery/internal/catalog"
	"github.com/nrjais/emquery/pkg/query"
	"github.com/nrjais/emquery/pkg/shape"
)

const testConfig = `
log_level: ERROR
query:
  type_configurations:
    Entity:
      max_page_size: 3
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append([]string{"--config", path}, args...))
	t.Cleanup(func() {
		configPath = ""
		normalizeJSON = false
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestNormalize(t *testing.T) {
	testCases := []struct {
		name string
		args []string
		want string
	}{
		{"empty query", []string{"normalize", "Customer"}, ""},
		{"keys are reordered", []string{"normalize", "Entity", "take=2&filter=Id le 5"}, "filter=Id le 5&take=2"},
		{"membership list", []string{"normalize", "entity", "filter=Id in 1,2,3"}, "filter=Id in (1, 2, 3)"},
		{"count drops paging", []string{"normalize", "Contact", "orderBy=Name&skip=1&count=true&filter=CustomerId eq 1"}, "filter=CustomerId eq 1&count=true"},
		{"escaped quote", []string{"normalize", "Entity", "filter=startsWith(Description,'Ent''ity')"}, "filter=startsWith(Description,'Ent''ity')"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := execute(t, tc.args...)
			require.NoError(t, err)
			assert.Equal(t, tc.want, strings.TrimSpace(out))
		})
	}
}

func TestNormalize_JSON(t *testing.T) {
	out, err := execute(t, "normalize", "--json", "Contact", "select=Name&take=5")
	require.NoError(t, err)

	var d query.Data
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Equal(t, "Name", d.Select)
	require.NotNil(t, d.Take)
	assert.Equal(t, 5, *d.Take)
	assert.Nil(t, d.Skip)
}

func TestNormalize_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown entity", []string{"normalize", "invoice"}, "entity not found: invoice"},
		{"unknown field", []string{"normalize", "Entity", "filter=Foo eq 1"}, "Foo"},
		{"excluded property", []string{"normalize", "Customer", "select=Code"}, "Code"},
		{"too many args", []string{"normalize", "Entity", "a", "b"}, "accepts between 1 and 2 arg(s)"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := execute(t, tc.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestSchema(t *testing.T) {
	out, err := execute(t, "schema", "Customer")
	require.NoError(t, err)

	var s shape.Shape
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, "Customer", s.Type)
	assert.Equal(t, []string{"id", "createdDate", "name"}, s.Names())

	_, err = execute(t, "schema", "invoice")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestQuery_InvalidCompression(t *testing.T) {
	t.Cleanup(func() { queryCompression = "zstd" })
	_, err := execute(t, "query", "--compression", "brotli", "Customer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported compression")
}

func TestOfflineCatalog_AppliesConfiguredModel(t *testing.T) {
	_, err := execute(t, "normalize", "Entity")
	require.NoError(t, err)

	cfg, err := loadConfig()
	require.NoError(t, err)
	c, err := offlineCatalog(cfg)
	require.NoError(t, err)

	env, err := c.Query(t.Context(), "Entity", "")
	require.NoError(t, err)
	assert.Len(t, env.Data, 3)
	assert.Equal(t, []string{"Contact", "Customer", "Entity"}, c.Names())
}
