package apperr_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pagetrail/bookcore/internal/apperr"
)

func TestIsAndKindOf(t *testing.T) {
	err := apperr.New(apperr.KindValidation, "query too short")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.False(t, apperr.Is(err, apperr.KindStorageError))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, apperr.KindUnknown, apperr.KindOf(errors.New("plain")))
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := apperr.Wrap(apperr.KindStorageError, "insert failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "boom")
}

func TestHTTPStatus(t *testing.T) {
	cases := map[apperr.Kind]int{
		apperr.KindValidation:         http.StatusBadRequest,
		apperr.KindProviderPermanent:  http.StatusBadRequest,
		apperr.KindDuplicate:          http.StatusConflict,
		apperr.KindProviderTransient:  http.StatusServiceUnavailable,
		apperr.KindBreakerOpen:        http.StatusServiceUnavailable,
		apperr.KindDeadlineExceeded:   http.StatusGatewayTimeout,
		apperr.KindStorageError:       http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, apperr.HTTPStatus(kind), kind.String())
	}
}
