package model_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"price-tracker/internal/model"
)

func TestNormalizeUser(t *testing.T) {
	rq := require.New(t)

	u, err := model.NormalizeUser(model.User{Email: "  Jane@Example.COM ", Name: " Jane "})
	rq.NoError(err)
	rq.Equal(model.User{Email: "jane@example.com", Name: "Jane"}, u)

	_, err = model.NormalizeUser(model.User{Email: ""})
	rq.ErrorContains(err, "invalid subscriber")

	_, err = model.NormalizeUser(model.User{Email: "not-an-email"})
	rq.ErrorIs(err, model.ErrInvalidUser)
}

func TestValidateEmail(t *testing.T) {
	rq := require.New(t)

	rq.True(model.ValidateEmail("u@x.com"))
	rq.False(model.ValidateEmail("u@"))
	rq.False(model.ValidateEmail(""))
}

func TestNormalizeUsers(t *testing.T) {
	rq := require.New(t)

	users, dropped := model.NormalizeUsers([]model.User{
		{Email: "Good@X.com"},
		{Email: "Legacy User <bad"},
		{Email: "good@x.com", Name: "again"},
		{Email: "other@x.com"},
	})
	rq.Equal([]model.User{{Email: "good@x.com"}, {Email: "other@x.com"}}, users)
	rq.Equal(2, dropped)

	users, dropped = model.NormalizeUsers(nil)
	rq.Nil(users)
	rq.Zero(dropped)
}
