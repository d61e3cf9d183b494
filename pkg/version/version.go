// Package version provides LwM2M enabler and object version parsing,
// comparison and link-format rendering.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the newest enabler version the harness speaks.
const Current = "1.1"

// Version represents a parsed "major.minor" LwM2M version.
type Version struct {
	Major uint16
	Minor uint16
}

// Well-known enabler versions.
var (
	V1_0 = Version{Major: 1, Minor: 0}
	V1_1 = Version{Major: 1, Minor: 1}
	V1_2 = Version{Major: 1, Minor: 2}
)

// Parse parses a "major.minor" version string. Surrounding double quotes,
// as used by LwM2M 1.0 link attributes, are accepted.
func Parse(s string) (Version, error) {
	s = strings.TrimSuffix(strings.TrimPrefix(s, `"`), `"`)
	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return Version{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil || parts[0] == "" {
		return Version{}, fmt.Errorf("invalid version %q: bad major component", s)
	}

	minor, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil || parts[1] == "" {
		return Version{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return Version{Major: uint16(major), Minor: uint16(minor)}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible returns true if the other version has the same major version.
func (v Version) Compatible(other Version) bool {
	return v.Major == other.Major
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		if v.Major < other.Major {
			return -1
		}
		return 1
	case v.Minor < other.Minor:
		return -1
	case v.Minor > other.Minor:
		return 1
	}
	return 0
}

// AtLeast returns true if v >= other.
func (v Version) AtLeast(other Version) bool {
	return v.Compare(other) >= 0
}

// LinkValue renders v for a "ver" link attribute of an enabler speaking
// the given LwM2M version: quoted in 1.0, bare from 1.1 on.
func (v Version) LinkValue(enabler Version) string {
	if enabler.AtLeast(V1_1) {
		return v.String()
	}
	return `"` + v.String() + `"`
}
