package filecopier

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidFolderName is returned when an operator-entered folder identifier
// does not match the DD-DD format.
var ErrInvalidFolderName = errors.New("error validating folder name")

var folderNamePattern = regexp.MustCompile(`^\d{2}-\d{2}$`)

// ValidateFolderName checks that name is a dated sub-folder identifier of the
// form DD-DD, two digits, a hyphen, two digits (e.g. "01-04"). Anything else
// is rejected; re-prompting is the caller's job.
func ValidateFolderName(name string) error {
	if !folderNamePattern.MatchString(name) {
		return fmt.Errorf("%w: folder name must be in format XX-XX (e.g. 01-04), got %q", ErrInvalidFolderName, name)
	}
	return nil
}
