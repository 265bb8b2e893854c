package store

import (
	"fmt"
	"regexp"

	"texttools/internal/models"
)

// Job names double as file names, so they are kept to a safe charset.
var jobNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateJobName rejects names that are empty, too long or unsafe as a path element.
func ValidateJobName(name string) error {
	if !jobNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", models.ErrInvalidJobName, name)
	}
	return nil
}
