package domain

import (
	"fmt"
	"strings"
)

// ValidateSourceDepartment checks the fields the engine cannot work without.
// DeclaredLevel is a hint and is never validated.
func ValidateSourceDepartment(d SourceDepartment) error {
	if strings.TrimSpace(d.ExternalID) == "" {
		return fmt.Errorf("department external id is required")
	}
	return nil
}

// ValidateSourceUser checks the fields the engine cannot work without.
func ValidateSourceUser(u SourceUser) error {
	if strings.TrimSpace(u.ExternalID) == "" {
		return fmt.Errorf("user external id is required")
	}
	return nil
}

// ValidateDriver validates a target database driver name
func ValidateDriver(driver string) error {
	switch driver {
	case "mysql", "sqlite3":
		return nil
	default:
		return fmt.Errorf("invalid driver: must be one of: mysql, sqlite3")
	}
}
