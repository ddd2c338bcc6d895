package domain

import "fmt"

type AuthorizationLevel int

const (
	AuthorizationUndetermined AuthorizationLevel = iota
	AuthorizationWhileInUse
	AuthorizationAlways
	AuthorizationDenied
	AuthorizationRestricted
)

var authorizationNames = map[AuthorizationLevel]string{
	AuthorizationUndetermined: "not_determined",
	AuthorizationWhileInUse:   "when_in_use",
	AuthorizationAlways:       "always",
	AuthorizationDenied:       "denied",
	AuthorizationRestricted:   "restricted",
}

func (l AuthorizationLevel) String() string {
	if name, ok := authorizationNames[l]; ok {
		return name
	}
	return fmt.Sprintf("authorization(%d)", int(l))
}

// Granted reports whether the level allows any location monitoring.
func (l AuthorizationLevel) Granted() bool {
	return l == AuthorizationAlways || l == AuthorizationWhileInUse
}

func ParseAuthorizationLevel(s string) (AuthorizationLevel, error) {
	for level, name := range authorizationNames {
		if name == s {
			return level, nil
		}
	}
	return AuthorizationUndetermined, fmt.Errorf("unknown authorization level %q", s)
}

func (l AuthorizationLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}
