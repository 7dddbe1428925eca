package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(afero.NewMemMapFs(), "/etc/taskgraph/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadYAML(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cfg/config.yaml", []byte(`
listen: 0.0.0.0:9000
db_path: /var/lib/taskgraph.db
layout:
  grid_columns: 6
ranker:
  limit: 25
`), 0o600))

	cfg, err := Load(fs, "/cfg/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
	assert.Equal(t, "/var/lib/taskgraph.db", cfg.DBPath)
	assert.Equal(t, 6, cfg.Layout.GridColumns)
	assert.Equal(t, 240, cfg.Layout.LayerSpacing, "unset fields keep defaults")
	assert.Equal(t, 25, cfg.Ranker.Limit)
}

func TestLoadTOML(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cfg/config.toml", []byte(`
listen = "127.0.0.1:8080"

[layout]
layer_spacing = 300
row_spacing = 90

[ranker]
limit = 5
`), 0o600))

	cfg, err := Load(fs, "/cfg/config.toml")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, 300, cfg.Layout.LayerSpacing)
	assert.Equal(t, 90, cfg.Layout.RowSpacing)
	assert.Equal(t, 4, cfg.Layout.GridColumns)
	assert.Equal(t, 5, cfg.Ranker.Limit)
}

func TestZeroFieldsBackfilled(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/c.yaml", []byte("listen: \"\"\nranker:\n  limit: 0\n"), 0o600))

	cfg, err := Load(fs, "/c.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Listen, cfg.Listen)
	assert.Equal(t, 10, cfg.Ranker.Limit)
}

func TestLoadErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/bad.yaml", []byte("layout: [1, 2"), 0o600))
	require.NoError(t, afero.WriteFile(fs, "/neg.toml", []byte("[ranker]\nlimit = -3\n"), 0o600))

	_, err := Load(fs, "/bad.yaml")
	assert.ErrorContains(t, err, "parsing config file")

	_, err = Load(fs, "/neg.toml")
	assert.ErrorContains(t, err, "ranker.limit")
}

func TestSaveRoundTrip(t *testing.T) {
	for _, path := range []string{"/home/u/.taskgraph/config.yaml", "/home/u/.taskgraph/config.toml"} {
		t.Run(path, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			cfg := DefaultConfig()
			cfg.Listen = "127.0.0.1:9999"
			cfg.Layout.GridColumns = 3

			require.NoError(t, Save(fs, path, cfg))
			got, err := Load(fs, path)
			require.NoError(t, err)
			assert.Equal(t, cfg, got)
		})
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Layout.GridColumns = -1
	assert.Error(t, Save(afero.NewMemMapFs(), "/c.yaml", cfg))
	assert.Error(t, Save(afero.NewMemMapFs(), "/c.yaml", nil))
}
