package middlewares

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationErrorsUseJSONNames(t *testing.T) {
	type payload struct {
		UserID string `json:"userId" validate:"required"`
		Rating int    `json:"rating" validate:"required,min=1,max=5"`
	}

	err := ValidateStruct(payload{Rating: 9})
	require.Error(t, err)
	ve, ok := err.(validator.ValidationErrors)
	require.True(t, ok)

	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fe.Tag()
	}
	assert.Equal(t, "required", fields["userId"])
	assert.Equal(t, "max", fields["rating"])
	assert.NotContains(t, fields, "UserID", "struct names must not leak into the error payload")
}

func TestValidateStructPasses(t *testing.T) {
	type payload struct {
		UserID string `json:"userId" validate:"required"`
	}
	assert.NoError(t, ValidateStruct(payload{UserID: "u1"}))
}
