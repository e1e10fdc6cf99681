package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact(t *testing.T) {
	r := NewRedactor()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "login password",
			input:    `{"username":"ann","password":"hunter2"}`,
			expected: `{"username":"ann","password":"[REDACTED]"}`,
		},
		{
			name:     "verification code",
			input:    `{"code": "493021"}`,
			expected: `{"code": "[REDACTED]"}`,
		},
		{
			name:     "session header",
			input:    "X-Browsy-Session: 3f9a1c2e-77aa",
			expected: "X-Browsy-Session: [REDACTED]",
		},
		{
			name:     "session log field",
			input:    `{"level":"debug","session":"3f9a1c2e-77aa","message":"ok"}`,
			expected: `{"level":"debug","session":"[REDACTED]","message":"ok"}`,
		},
		{
			name:     "bearer secret",
			input:    "Authorization: Bearer abc.def-ghi",
			expected: "Authorization: Bearer [REDACTED]",
		},
		{
			name:     "shared secret",
			input:    `{"shared_secret":"s3cr3t"}`,
			expected: `{"shared_secret":"[REDACTED]"}`,
		},
		{
			name:     "nothing to redact",
			input:    `{"operation":"browse","agent_id":"agent-1"}`,
			expected: `{"operation":"browse","agent_id":"agent-1"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, r.Redact(tt.input))
		})
	}
}

func TestAddPattern(t *testing.T) {
	r := NewRedactor()

	require.NoError(t, r.AddPattern(`acct-\d+`))
	assert.Equal(t, "user [REDACTED]", r.Redact("user acct-12345"))

	assert.Error(t, r.AddPattern(`[`))
}

func TestRedactingWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewRedactor().Wrap(&buf)

	input := []byte(`{"password":"hunter2"}`)
	n, err := w.Write(input)
	require.NoError(t, err)
	assert.Equal(t, len(input), n)
	assert.Equal(t, `{"password":"[REDACTED]"}`, buf.String())
}
