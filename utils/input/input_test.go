package input_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/scenario-player/parser"
	"github.com/tsinghua-fib-lab/scenario-player/utils/config"
	"github.com/tsinghua-fib-lab/scenario-player/utils/input"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestInitFromFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Input.Files = []string{
		write(t, dir, "a.xosc", "<OpenSCENARIO/>"),
		write(t, dir, "b.xodr", "<OpenDRIVE/>"),
	}
	cfg.Input.Validation = write(t, dir, "validation.json", `{"a.xosc": {"errors": ["bad"], "warnings": ["meh"]}}`)

	in, err := input.Init(context.Background(), cfg, "")
	require.NoError(t, err)
	assert.Equal(t, []parser.File{
		{Name: "a.xosc", Data: []byte("<OpenSCENARIO/>")},
		{Name: "b.xodr", Data: []byte("<OpenDRIVE/>")},
	}, in.Files)
	assert.Equal(t, map[string]parser.ValidationResult{
		"a.xosc": {Errors: []string{"bad"}, Warnings: []string{"meh"}},
	}, in.Validation)
}

func TestInitFromCache(t *testing.T) {
	cacheDir := t.TempDir()
	sub := filepath.Join(cacheDir, "db.col")
	require.NoError(t, os.Mkdir(sub, 0o755))
	write(t, sub, "z.xodr", "road")
	write(t, sub, "a.xosc", "scenario")

	cfg := config.Default()
	cfg.Input.Scenario = &config.InputPath{DB: "db", Col: "col", OnlyCache: true}
	in, err := input.Init(context.Background(), cfg, cacheDir)
	require.NoError(t, err)
	require.Len(t, in.Files, 2)
	assert.Equal(t, "a.xosc", in.Files[0].Name)
	assert.Equal(t, "z.xodr", in.Files[1].Name)

	// 缓存缺失且只允许缓存
	cfg.Input.Scenario.Cache = "missing"
	_, err = input.Init(context.Background(), cfg, cacheDir)
	assert.Error(t, err)
}

func TestInitErrors(t *testing.T) {
	_, err := input.Init(context.Background(), config.Default(), "")
	assert.ErrorIs(t, err, input.ErrNoInput)

	cfg := config.Default()
	cfg.Input.Files = []string{filepath.Join(t.TempDir(), "missing.xosc")}
	_, err = input.Init(context.Background(), cfg, "")
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Input.Scenario = &config.InputPath{DB: "db", Col: "col"}
	_, err = input.Init(context.Background(), cfg, "")
	assert.Error(t, err)
}

func TestLoadValidationYAML(t *testing.T) {
	p := write(t, t.TempDir(), "v.yaml", "b.xosc:\n  warnings: [w]\n")
	v, err := input.LoadValidation(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"w"}, v["b.xosc"].Warnings)
	assert.Empty(t, v["b.xosc"].Errors)
}
