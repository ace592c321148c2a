package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesWrappedAppError(t *testing.T) {
	err := fmt.Errorf("append: %w", NotParticipant("c1"))

	assert.True(t, Is(err, CodeNotParticipant))
	assert.True(t, IsAuthorization(err))
	assert.False(t, Is(err, CodeNotFound))
}

func TestAsWrapsPlainErrorsAsInternal(t *testing.T) {
	appErr := As(stderrors.New("boom"))

	assert.Equal(t, CodeInternal, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.EqualError(t, appErr.Unwrap(), "boom")
}

func TestAuthenticationHidesCause(t *testing.T) {
	appErr := Authentication(stderrors.New("token expired"))

	assert.Equal(t, "authentication failed", appErr.Message)
	assert.Equal(t, http.StatusUnauthorized, appErr.Status)
}
