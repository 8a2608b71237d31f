package core

import (
	"errors"
	"fmt"
	"strings"
)

// KeySeparator joins the parts of a storage key.
const KeySeparator = "/"

// ComposeKey maps a (usecase, scope, identifier) triple to the storage key
// "usecase/scope/identifier". It performs no validation.
func ComposeKey(usecase, scope, identifier string) string {
	return usecase + KeySeparator + scope + KeySeparator + identifier
}

// ValidateComponent reports whether value may be used as the named part of a
// storage key. Parts must not contain the separator, which keeps ComposeKey
// injective, and must not be "." or "..", which path-based engines cannot
// store. Empty values are rejected too, except for the identifier, whose
// emptiness the Gateway handles itself. Failures match ErrInvalidKey.
func ValidateComponent(name, value string) error {
	var cause error
	switch {
	case value == "" && name != "key":
		cause = fmt.Errorf("%s must not be empty", name)
	case value == "." || value == "..":
		cause = fmt.Errorf("%s %q is reserved", name, value)
	case strings.Contains(value, KeySeparator):
		cause = fmt.Errorf("%s %q contains %q", name, value, KeySeparator)
	}

	if cause != nil {
		return &Error{Kind: ErrInvalidKey, Cause: cause}
	}
	return nil
}

// errBarePrefix is the cause reported when an identifier consists of nothing
// but the "usecase/scope/" prefix.
var errBarePrefix = errors.New("key names no blob")
