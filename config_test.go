package emfit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const config string = `
model: ppca
gmm:
  clusters: 3
  tolerance: 1e-6
  max_iterations: 200
ppca:
  components: 2
  missing: true
  refresh_second_moment: true
`

func TestConfig(t *testing.T) {

	fn := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(fn, []byte(config), 0644))

	cfg, err := ReadConfig(fn)
	require.NoError(t, err)
	t.Logf("Config: %+v", cfg)

	assert.Equal(t, "ppca", cfg.Model)
	assert.Equal(t, 3, cfg.GMM.Clusters)
	assert.Equal(t, 1e-6, cfg.GMM.Tolerance)
	assert.Equal(t, 200, cfg.GMM.MaxIterations)
	assert.Equal(t, 2, cfg.PPCA.Components)
	assert.True(t, cfg.PPCA.Missing)
	assert.True(t, cfg.PPCA.RefreshSecondMoment)
}

func TestConfigBadFile(t *testing.T) {

	_, err := ReadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	fn := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(fn, []byte("model: [unclosed"), 0644))
	_, err = ReadConfig(fn)
	assert.Error(t, err)
}
