package error_handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		name  string
		codes []int
		want  int
	}{
		{"no errors", nil, http.StatusOK},
		{"validation", []int{CodeValidationError}, http.StatusBadRequest},
		{"not found", []int{CodeNotFound}, http.StatusNotFound},
		{"conflict", []int{CodeConflict}, http.StatusConflict},
		{"server error wins", []int{CodeNotFound, CodeInternalServerError}, http.StatusInternalServerError},
		{"first client error wins", []int{CodeConflict, CodeValidationError}, http.StatusConflict},
		{"unknown code", []int{418}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := NewErrorCollection()
			for _, code := range tt.codes {
				ec.AddError(code, "x", nil)
			}
			assert.Equal(t, tt.want, ec.GetHTTPStatus())
		})
	}
}
