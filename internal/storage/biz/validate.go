package biz

import (
	"strings"

	apperrors "github.com/cloudvault/cloudvault-backend/internal/pkg/errors"
)

// MaxNameLength bounds file and folder names
const MaxNameLength = 255

// forbiddenNameChars are rejected in file and folder names because they are
// path separators or unsafe on common client filesystems.
const forbiddenNameChars = `<>:"/\|?*`

// ValidateName checks a file or folder name against the naming rules shared
// by the catalog and the folder tree.
func ValidateName(name string) error {
	if name == "" {
		return apperrors.NewValidationError("name must not be empty")
	}
	if len(name) > MaxNameLength {
		return apperrors.NewValidationError("name exceeds 255 characters")
	}
	if strings.ContainsAny(name, forbiddenNameChars) {
		return apperrors.NewValidationError("name contains forbidden characters")
	}
	if name == "." || name == ".." {
		return apperrors.NewValidationError("name must not be a path reference")
	}
	return nil
}
