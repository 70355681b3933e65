package secrets

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidReference is returned for values that are not secret references.
var ErrInvalidReference = errors.New("secrets: invalid reference")

// Reference is a parsed secret://name?version=N&project=P (or sm://) value.
type Reference struct {
	Name    string
	Version string
	Project string
}

// IsReference reports whether value uses one of the secret schemes.
func IsReference(value string) bool {
	value = strings.TrimSpace(value)
	return strings.HasPrefix(value, "secret://") || strings.HasPrefix(value, "sm://")
}

func ParseReference(raw string) (Reference, error) {
	raw = strings.TrimSpace(raw)
	if !IsReference(raw) {
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return Reference{}, fmt.Errorf("%w: missing secret name in %q", ErrInvalidReference, raw)
	}
	query := u.Query()
	return Reference{
		Name:    name,
		Version: strings.TrimSpace(query.Get("version")),
		Project: strings.TrimSpace(query.Get("project")),
	}, nil
}

// Key identifies the reference independent of scheme, version and project.
func (r Reference) Key() string { return "secret://" + r.Name }

func (r Reference) versionOr(fallback string) string {
	if r.Version != "" {
		return r.Version
	}
	return fallback
}
