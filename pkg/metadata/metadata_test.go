package metadata_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/pipcache/pkg/metadata"
)

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestExtractFromSetupPy(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, map[string]string{
		"setup.py": `
from setuptools import setup

setup(name="widget", version="1.2.3")
`,
	})
	id, err := metadata.Extract(dir)
	require.NoError(t, err)
	assert.Equal(t, metadata.Identity{Name: "widget", Version: "1.2.3"}, id)
}

func TestExtractFillsFromSetupCfgWhenSetupPyIncomplete(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, map[string]string{
		"setup.py": `
setup(name="widget")
`,
		"setup.cfg": `
[metadata]
name = ignored-because-setup-py-won
version = 2.0.0
`,
	})
	id, err := metadata.Extract(dir)
	require.NoError(t, err)
	assert.Equal(t, "widget", id.Name)
	assert.Equal(t, "2.0.0", id.Version)
}

func TestExtractVersionFileDirective(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, map[string]string{
		"setup.cfg": `
[metadata]
name = widget
version = file: VERSION
`,
		"VERSION": "v3.4.5\n",
	})
	id, err := metadata.Extract(dir)
	require.NoError(t, err)
	assert.Equal(t, "3.4.5", id.Version)
}

func TestExtractVersionAttrDirective(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, map[string]string{
		"setup.cfg": `
[metadata]
name = widget
version = attr: widget.__version__
`,
		"widget/__init__.py": `
__version__ = "9.9.9"
`,
	})
	id, err := metadata.Extract(dir)
	require.NoError(t, err)
	assert.Equal(t, "9.9.9", id.Version)
}

func TestExtractVersionAttrDirectiveWithPackageDir(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, map[string]string{
		"setup.cfg": `
[metadata]
name = widget
version = attr: widget.__version__

[options]
package_dir =
	=src
`,
		"src/widget/__init__.py": `
__version__ = "7.7.7"
`,
	})
	id, err := metadata.Extract(dir)
	require.NoError(t, err)
	assert.Equal(t, "7.7.7", id.Version)
}

func TestExtractRejectsVersionFileEscapingProjectDir(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, map[string]string{
		"setup.cfg": `
[metadata]
name = widget
version = file: ../../etc/passwd
`,
	})
	_, err := metadata.Extract(dir)
	assert.Error(t, err)
}

func TestExtractFailsWhenUnresolved(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, map[string]string{
		"setup.py": `
setup(name=compute_name())
`,
	})
	_, err := metadata.Extract(dir)
	assert.Error(t, err)
}
