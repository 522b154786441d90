package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_ResourceName(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected string
	}{
		{
			name:     "explicit version",
			config:   Config{ProjectID: "my-project", SecretID: "firestore-sa", Version: "3"},
			expected: "projects/my-project/secrets/firestore-sa/versions/3",
		},
		{
			name:     "empty version defaults to latest",
			config:   Config{ProjectID: "my-project", SecretID: "firestore-sa"},
			expected: "projects/my-project/secrets/firestore-sa/versions/latest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.resourceName())
		})
	}
}

func TestValidateServiceAccountJSON(t *testing.T) {
	valid := []byte(`{"type":"service_account","project_id":"my-project","private_key":"..."}`)
	assert.NoError(t, ValidateServiceAccountJSON(valid))

	assert.ErrorIs(t, ValidateServiceAccountJSON([]byte("not json")), ErrInvalidPayload)
	assert.ErrorIs(t, ValidateServiceAccountJSON([]byte(`["a","b"]`)), ErrInvalidPayload)
	assert.ErrorIs(t, ValidateServiceAccountJSON(nil), ErrInvalidPayload)
}
