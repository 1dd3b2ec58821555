package config

// BuildConfig configures application bundling with pyinstaller.
type BuildConfig struct {
	// MainFile is the entry script, relative to the project root.
	MainFile string `yaml:"main_file"`

	Console bool `yaml:"console"` // keep a console window
	Debug   bool `yaml:"debug"`   // pyinstaller --debug=all
	Clean   bool `yaml:"clean"`   // pyinstaller --clean

	// IgnoredPackages are excluded with --exclude-module.
	IgnoredPackages []string `yaml:"ignored_packages"`

	// Virtualenv runs pyinstaller inside that environment. Empty uses the active one.
	Virtualenv string `yaml:"virtualenv"`

	// SyncRequirements is synced into Virtualenv before building.
	SyncRequirements RequirementSources `yaml:"sync_requirements"`

	// EnvVars are additional environment variables for the build, e.g. PYTHONPATH.
	EnvVars map[string]string `yaml:"env_vars"`

	ExtraArgs []string `yaml:"extra_args"`

	// BuildWeb runs `npm run build` in WebPath before pyinstaller.
	BuildWeb bool   `yaml:"build_web"`
	WebPath  string `yaml:"web_path"`
}

// DefaultBuildConfig returns sensible defaults.
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		MainFile: "app.py",
		Console:  true,
		Clean:    true,
		EnvVars:  make(map[string]string),
		WebPath:  "gui",
	}
}

// DeployConfig configures package build and upload. Credentials come from
// TWINE_USERNAME / TWINE_PASSWORD and are never stored here.
type DeployConfig struct {
	Repository string `yaml:"repository"` // twine repository name
	CleanDist  bool   `yaml:"clean_dist"`
}
