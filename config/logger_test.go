package config

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLogger(t *testing.T) {
	log := NewLogger(&Config{LogLevel: "debug", Environment: "production"})
	if log.GetLevel() != logrus.DebugLevel {
		t.Errorf("expected debug, got %s", log.GetLevel())
	}
	if _, ok := log.Formatter.(*logrus.JSONFormatter); !ok {
		t.Errorf("expected JSON formatter, got %T", log.Formatter)
	}

	log = NewLogger(&Config{LogLevel: "loud", Environment: "development"})
	if log.GetLevel() != logrus.InfoLevel {
		t.Errorf("expected info fallback, got %s", log.GetLevel())
	}
	if _, ok := log.Formatter.(*logrus.TextFormatter); !ok {
		t.Errorf("expected text formatter, got %T", log.Formatter)
	}
}
