package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BuildInfo merges application.yml with the linker-set version variables
// cmd/cmd.go declares (version, commit, commitDate, branch), the way the
// teacher keeps those vars but application.yml supplies the fields that
// aren't covered by -ldflags (name, repository, environment).
type BuildInfo struct {
	Name        string `yaml:"name"`
	Repository  string `yaml:"repository"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"-"`
	Commit      string `yaml:"-"`
	CommitDate  string `yaml:"-"`
	Branch      string `yaml:"-"`
}

// LoadBuildInfo reads application.yml (if present) and overlays the linker
// vars on top. A missing file is not an error: the linker vars alone are
// enough to identify a build.
func LoadBuildInfo(path, version, commit, commitDate, branch string) (BuildInfo, error) {
	info := BuildInfo{
		Version:    version,
		Commit:     commit,
		CommitDate: commitDate,
		Branch:     branch,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return info, nil
	}
	if err != nil {
		return info, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return info, nil
}
