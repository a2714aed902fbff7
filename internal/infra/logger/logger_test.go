package logger

import (
	"testing"

	"contract_alert_engine/internal/infra/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestInitLevelAndFormatter(t *testing.T) {
	Init(&config.AppConfig{LogLevel: "debug", Environment: "production"})
	assert.Equal(t, logrus.DebugLevel, Log.GetLevel())
	_, isJSON := Log.Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)

	Init(&config.AppConfig{LogLevel: "nonsense", Environment: "development"})
	assert.Equal(t, logrus.InfoLevel, Log.GetLevel())
	_, isText := Log.Formatter.(*logrus.TextFormatter)
	assert.True(t, isText)
}

func TestComponentField(t *testing.T) {
	e := Component("dispatcher")
	assert.Equal(t, "dispatcher", e.Data["component"])
}
