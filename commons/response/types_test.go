package response

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailureUsesFirstError(t *testing.T) {
	resp := Failure(nil, []Errors{
		{ErrorCode: 404, Message: "schedule not found"},
		{ErrorCode: 400, Message: "bad limit"},
	})

	assert.Equal(t, StatusFailed, resp.Status)
	assert.Equal(t, 404, resp.ErrorCode)
	assert.Equal(t, "schedule not found", resp.Message)
	assert.Len(t, resp.Errors, 2)
}

func TestFailureWithoutErrors(t *testing.T) {
	resp := Failure(nil, nil)

	assert.Equal(t, 500, resp.ErrorCode)
	assert.NotNil(t, resp.Errors)
}

func TestSuccess(t *testing.T) {
	resp := Success(map[string]int{"count": 1})

	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, 0, resp.ErrorCode)
	assert.Empty(t, resp.Errors)
}
