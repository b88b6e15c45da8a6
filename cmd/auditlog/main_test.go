package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"comment-moderator/config"
)

func TestRunNeedsBrokers(t *testing.T) {
	err := run(config.AuditConfig{Dir: t.TempDir(), MinLevel: "Trace"}, zap.NewNop())
	assert.ErrorIs(t, err, errNoBrokers)
}

func TestRunRejectsUnknownLevel(t *testing.T) {
	err := run(config.AuditConfig{Dir: t.TempDir(), MinLevel: "chatty", KafkaBrokers: []string{"127.0.0.1:1"}}, zap.NewNop())
	assert.Error(t, err)
}
