package container

import (
	"regexp"

	ksmerrors "github.com/nace/ksm/internal/errors"
)

var mapperNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.-]*$`)

// MapperDevice returns the /dev/mapper path for a mapper name
func MapperDevice(mapperName string) string {
	return "/dev/mapper/" + mapperName
}

// ValidateMapperName checks that name is usable as a dm-crypt mapper name:
// letters, digits, underscores, dots and dashes, not starting with a digit.
func ValidateMapperName(name string) error {
	if !mapperNamePattern.MatchString(name) {
		return ksmerrors.Validationf("invalid mapper name %q", name)
	}
	return nil
}
