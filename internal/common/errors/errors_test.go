package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesAppError(t *testing.T) {
	inner := NotFound("report", "r-1")
	wrapped := Wrap(inner, "load report")

	assert.Equal(t, ErrCodeNotFound, wrapped.Code)
	assert.Equal(t, http.StatusNotFound, wrapped.HTTPStatus)
	assert.True(t, IsNotFound(wrapped))
	assert.True(t, stderrors.Is(wrapped, inner))
}

func TestWrapPlainError(t *testing.T) {
	wrapped := Wrap(stderrors.New("boom"), "save")
	assert.Equal(t, ErrCodeInternalError, wrapped.Code)
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(wrapped))
	assert.Nil(t, Wrap(nil, "noop"))
}

func TestGetHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusConflict, GetHTTPStatus(Conflict("busy")))
	assert.Equal(t, http.StatusBadRequest, GetHTTPStatus(ValidationError("kind", "unknown")))
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(stderrors.New("x")))
}

var (
	errMissing = stderrors.New("missing")
	errBusy    = stderrors.New("busy")
)

func TestClassify(t *testing.T) {
	rules := []Rule{
		{Target: errMissing, Code: ErrCodeNotFound, Status: http.StatusNotFound},
		{Target: errBusy, Code: ErrCodeConflict, Status: http.StatusConflict},
	}

	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
	}{
		{"wrapped sentinel", fmt.Errorf("load: %w", errMissing), ErrCodeNotFound, http.StatusNotFound},
		{"second rule", errBusy, ErrCodeConflict, http.StatusConflict},
		{"app error wins", fmt.Errorf("x: %w", ValidationError("kind", "bad")), ErrCodeValidationError, http.StatusBadRequest},
		{"upstream", Upstream("deliver", errBusy), ErrCodeUpstream, http.StatusBadGateway},
		{"unknown", stderrors.New("boom"), ErrCodeInternalError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err, rules...)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantStatus, got.HTTPStatus)
			assert.Equal(t, tt.wantStatus, GetHTTPStatus(got))
		})
	}

	assert.Nil(t, Classify(nil, rules...))
}
