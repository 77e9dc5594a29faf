package system

import (
	"golang.org/x/sys/unix"

	ksmerrors "github.com/nace/ksm/internal/errors"
)

// IsRoot checks if running as root
func IsRoot() bool {
	return unix.Geteuid() == 0
}

// RequireRoot ensures the program is running as root
func RequireRoot() error {
	if !IsRoot() {
		return ksmerrors.WithHint(
			ksmerrors.Validationf("this command must be run as root"),
			"try again with sudo, or rehearse it with --dry-run")
	}
	return nil
}
