package service

import (
	"github.com/sirupsen/logrus"

	"github.com/lhakso/bar-tracker/module/proximity/domain"
)

type PermissionPlatform interface {
	RequestAlwaysAuthorization() error
}

// AuthorizationController tracks the permission level reported by the
// platform. The level is never set by application logic.
type AuthorizationController struct {
	platform PermissionPlatform
	log      logrus.FieldLogger

	level     domain.AuthorizationLevel
	escalated bool
	listeners []func(domain.AuthorizationLevel)
}

func NewAuthorizationController(platform PermissionPlatform, log logrus.FieldLogger) *AuthorizationController {
	return &AuthorizationController{
		platform: platform,
		log:      log,
		level:    domain.AuthorizationUndetermined,
	}
}

func (c *AuthorizationController) CurrentLevel() domain.AuthorizationLevel {
	return c.level
}

func (c *AuthorizationController) OnLevelChanged(fn func(domain.AuthorizationLevel)) {
	c.listeners = append(c.listeners, fn)
}

// RequestElevatedAccess asks for Always when only WhileInUse is granted.
// It fires at most once per transition into WhileInUse.
func (c *AuthorizationController) RequestElevatedAccess() bool {
	if c.level != domain.AuthorizationWhileInUse || c.escalated {
		return false
	}
	c.escalated = true
	if err := c.platform.RequestAlwaysAuthorization(); err != nil {
		c.log.WithError(err).Warn("request always authorization failed")
		return false
	}
	c.log.Info("requested always authorization")
	return true
}

// HandleLevelChange ingests a platform permission callback.
func (c *AuthorizationController) HandleLevelChange(level domain.AuthorizationLevel) bool {
	if level == c.level {
		return false
	}

	prev := c.level
	c.level = level
	if level != domain.AuthorizationWhileInUse {
		c.escalated = false
	}

	c.log.WithFields(logrus.Fields{
		"from": prev.String(),
		"to":   level.String(),
	}).Info("authorization changed")

	switch level {
	case domain.AuthorizationWhileInUse:
		c.RequestElevatedAccess()
	case domain.AuthorizationDenied, domain.AuthorizationRestricted:
		c.log.Warn("location access refused, monitoring stays off until settings change")
	}

	for _, fn := range c.listeners {
		fn(level)
	}
	return true
}
