package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{nil, KindUnknown},
		{ErrDuplicateUsername, KindValidation},
		{fmt.Errorf("login: %w", ErrInvalidPassword), KindValidation},
		{ErrUserNotFound, KindValidation},
		{ErrInvalidToken, KindAuth},
		{ErrNotAuthenticated, KindAuth},
		{Storage("append message", stderrors.New("disk full")), KindStorage},
		{stderrors.New("boom"), KindUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, KindOf(c.err), "err=%v", c.err)
	}
}

func TestStorageKeepsCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Storage("find user", cause)

	assert.True(t, Is(err, ErrStorage))
	assert.True(t, Is(err, cause))
	assert.Contains(t, err.Error(), "find user")
	assert.Nil(t, Storage("noop", nil))
}
