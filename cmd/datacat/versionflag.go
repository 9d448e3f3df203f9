package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"datacat/internal/domain"
)

// versionFlag parses a "major.minor.patch" flag value into a version
// triple. The zero flag means "not given".
type versionFlag struct {
	version *domain.Version
}

var _ pflag.Value = (*versionFlag)(nil)

func (f *versionFlag) String() string {
	if f.version == nil {
		return ""
	}
	return f.version.String()
}

func (f *versionFlag) Set(s string) error {
	var v domain.Version
	if _, err := fmt.Sscanf(s, "%d.%d.%d", &v.Major, &v.Minor, &v.Patch); err != nil {
		return fmt.Errorf("version must be major.minor.patch: %q", s)
	}
	if v.Major < 1 || v.Minor < 0 || v.Patch < 0 {
		return fmt.Errorf("version components out of range: %q", s)
	}
	f.version = &v
	return nil
}

func (f *versionFlag) Type() string { return "version" }
