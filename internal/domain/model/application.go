package model

import (
	"regexp"

	"github.com/google/uuid"
)

// applicationNamespace seeds the deterministic UUID derivation so that the
// same application name always resolves to the same identity on every node.
var applicationNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("wazo-platform.org"))

var applicationNameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

// Application is the catalog-registered identity of an ARI application.
type Application struct {
	UUID string
}

// NewApplication derives the application identity from its name.
func NewApplication(name string) Application {
	return Application{
		UUID: uuid.NewSHA1(applicationNamespace, []byte(name)).String(),
	}
}

// ValidApplicationName reports whether name is a well-formed ARI application
// name. Dispatch must not proceed for names failing this predicate.
func ValidApplicationName(name string) bool {
	return name != "" && len(name) <= 64 && applicationNameRe.MatchString(name)
}
