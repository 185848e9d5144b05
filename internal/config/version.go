package config

import "fmt"

// CurrentVersion is the latest supported configuration file version.
const CurrentVersion = 1

// VersionError describes a configuration version this build cannot read.
type VersionError struct {
	Version int
	Current int
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("config version %d is newer than this build (current: %d). upgrade cognis to continue", e.Version, e.Current)
}

// ValidateVersion rejects versions newer than CurrentVersion. Files without
// a version inherit the default through the merge.
func ValidateVersion(version int) error {
	if version > CurrentVersion {
		return &VersionError{Version: version, Current: CurrentVersion}
	}
	return nil
}
