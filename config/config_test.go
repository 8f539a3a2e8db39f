package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheBB/CICO/api"
)

func write(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFullPipeline(t *testing.T) {
	path := write(t, `
pipeline "nightly" {
  source {
    kind = "envelope"
    path = "run.json"
  }

  filters {
    strict      = true
    decompose   = true
    only_fields = ["temperature", "velocity"]
    step_stride = 2
  }

  sink {
    kind = "postgres"
    postgres {
      host     = "db.internal"
      database = "results"
      username = "cico"
    }
  }

  geometry   = "geometry"
  checkpoint = ".cico-cursor"
}
`)
	pipeline, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nightly", pipeline.Name)
	assert.Equal(t, "envelope", pipeline.Source.Kind)
	assert.Equal(t, "run.json", pipeline.Source.Path)
	assert.Equal(t, "geometry", pipeline.Geometry)
	assert.Equal(t, ".cico-cursor", pipeline.Checkpoint)

	require.NotNil(t, pipeline.Filters)
	assert.True(t, pipeline.Filters.Strict)
	assert.True(t, pipeline.Filters.Decompose)
	assert.Equal(t, []string{"temperature", "velocity"}, pipeline.Filters.OnlyFields)
	assert.True(t, pipeline.Filters.Sliced())

	require.NotNil(t, pipeline.Sink.Postgres)
	assert.Equal(t, "db.internal", pipeline.Sink.Postgres.Host)
}

func TestDefaultSettings(t *testing.T) {
	path := write(t, `
pipeline "minimal" {
  source {
    kind = "envelope"
    path = "run.json"
  }
  sink {
    kind = "debug"
    path = "out.json"
  }
}
`)
	pipeline, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, api.DefaultSettings(), pipeline.Sink.Settings())
	assert.Nil(t, pipeline.Filters)
}

func TestSettingsOverride(t *testing.T) {
	path := write(t, `
pipeline "tuned" {
  source {
    kind = "envelope"
    path = "run.json"
  }
  sink {
    kind       = "debug"
    path       = "out.json"
    mode       = "ascii"
    endianness = "little"
  }
}
`)
	pipeline, err := Load(path)
	require.NoError(t, err)
	settings := pipeline.Sink.Settings()
	assert.Equal(t, api.ModeAscii, settings.Mode)
	assert.Equal(t, api.Little, settings.Endianness)
}

func TestEnvInterpolation(t *testing.T) {
	t.Setenv("CICO_TEST_OUTPUT", "from-env.json")
	path := write(t, `
pipeline "interp" {
  source {
    kind = "envelope"
    path = "run.json"
  }
  sink {
    kind = "debug"
    path = env.CICO_TEST_OUTPUT
  }
}
`)
	pipeline, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.json", pipeline.Sink.Path)
}

func TestEnvOverridesCredentials(t *testing.T) {
	t.Setenv("CICO_PG_PASSWORD", "secret-from-env")
	path := write(t, `
pipeline "creds" {
  source {
    kind = "envelope"
    path = "run.json"
  }
  sink {
    kind = "postgres"
    postgres {
      host     = "db"
      password = "from-file"
    }
  }
}
`)
	pipeline, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-from-env", pipeline.Sink.Postgres.Password)
}

func TestUnknownSinkKind(t *testing.T) {
	path := write(t, `
pipeline "bad" {
  source {
    kind = "envelope"
    path = "run.json"
  }
  sink {
    kind = "carrier-pigeon"
  }
}
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown sink kind")
}

func TestSourceNeedsPath(t *testing.T) {
	path := write(t, `
pipeline "bad" {
  source {
    kind = "envelope"
  }
  sink {
    kind = "debug"
    path = "out.json"
  }
}
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs a path")
}

func TestLastStepExcludesSlicing(t *testing.T) {
	path := write(t, `
pipeline "bad" {
  source {
    kind = "envelope"
    path = "run.json"
  }
  filters {
    last_step   = true
    step_stride = 2
  }
  sink {
    kind = "debug"
    path = "out.json"
  }
}
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestUnknownKeyRejected(t *testing.T) {
	path := write(t, `
pipeline "bad" {
  source {
    kind   = "envelope"
    path   = "run.json"
    flavor = "strawberry"
  }
  sink {
    kind = "debug"
    path = "out.json"
  }
}
`)
	_, err := Load(path)
	require.Error(t, err)
}
