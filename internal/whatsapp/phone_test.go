package whatsapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+62 812-3456-789", "628123456789"},
		{"(0049) 151 2345678", "491512345678"},
		{"6281234", "6281234"},
		{"12345", ""},
		{"not a phone", ""},
		{"", ""},
		{"+1234567890123456", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.in))
		})
	}
}

func TestFormatPhoneToJID(t *testing.T) {
	assert.Equal(t, "628123456789@s.whatsapp.net", FormatPhoneToJID("+62 812 3456 789"))
}

func TestIsPhoneNumber(t *testing.T) {
	assert.True(t, IsPhoneNumber("+1 (555) 010-9999"))
	assert.False(t, IsPhoneNumber("555-abc-9999"))
	assert.False(t, IsPhoneNumber("123"))
}

func TestLoggerSub(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewLogger(zap.New(core)).Sub("store")

	l.Warnf("upgrade %d", 3)
	l.Debugf("noise")

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "store", entries[0].LoggerName)
		assert.Equal(t, "upgrade 3", entries[0].Message)
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	}
}
