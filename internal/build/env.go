// Package build bundles the application into a distributable with pyinstaller.
//
// Every pyinstaller run gets its environment from Env so imports resolve the
// same way they do under pytest.
package build

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pycicd/internal/config"
	"pycicd/internal/logging"
	"pycicd/internal/tactile"
)

// Env returns the variables added to a build command. It merges:
// 1. PYTHONPATH with the project sources prepended
// 2. Whitelisted variables from the execution config
// 3. Configured build env_vars, which win
func Env(cfg *config.Config, root string) []string {
	logging.BuildDebug("Building environment for project: %s", root)

	var env []string

	pythonPath := detectPythonPath(root)
	if existing := os.Getenv("PYTHONPATH"); existing != "" {
		pythonPath = append(pythonPath, existing)
	}
	env = append(env, "PYTHONPATH="+strings.Join(pythonPath, string(os.PathListSeparator)))

	if cfg != nil {
		for _, key := range cfg.Execution.AllowedEnvVars {
			if val := os.Getenv(key); val != "" {
				env = append(env, key+"="+val)
				logging.BuildDebug("Added whitelisted env: %s", key)
			}
		}

		keys := make([]string, 0, len(cfg.Build.EnvVars))
		for k := range cfg.Build.EnvVars {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			env = tactile.MergeEnv(env, k+"="+cfg.Build.EnvVars[k])
			logging.BuildDebug("Added build config env: %s", k)
		}
	}

	logging.BuildDebug("Final build environment has %d vars", len(env))
	return env
}

// detectPythonPath returns the import roots of the project: root, plus
// root/src for a src layout.
func detectPythonPath(root string) []string {
	absRoot := root
	if !filepath.IsAbs(root) {
		if abs, err := filepath.Abs(root); err == nil {
			absRoot = abs
		}
	}

	dirs := []string{absRoot}
	src := filepath.Join(absRoot, "src")
	if info, err := os.Stat(src); err == nil && info.IsDir() {
		dirs = append([]string{src}, dirs...)
	}
	return dirs
}
