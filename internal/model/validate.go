package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled()) //nolint:gochecknoglobals

var ErrInvalidUser = errors.New("invalid subscriber")

// NormalizeUser trims the user's fields, lowercases the email and validates the result.
func NormalizeUser(u User) (User, error) {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Name = strings.TrimSpace(u.Name)

	if err := validate.Struct(u); err != nil {
		return User{}, fmt.Errorf("%w: %w", ErrInvalidUser, err)
	}

	return u, nil
}

// NormalizeUsers normalizes every user, dropping invalid ones and repeated
// emails. It returns the kept users and the number dropped.
func NormalizeUsers(users []User) ([]User, int) {
	if users == nil {
		return nil, 0
	}

	kept := make([]User, 0, len(users))
	seen := make(map[string]struct{}, len(users))

	for _, u := range users {
		n, err := NormalizeUser(u)
		if err != nil {
			continue
		}
		if _, ok := seen[n.Email]; ok {
			continue
		}
		seen[n.Email] = struct{}{}
		kept = append(kept, n)
	}

	return kept, len(users) - len(kept)
}

// ValidateEmail reports whether s is a syntactically valid email address.
func ValidateEmail(s string) bool {
	return validate.Var(s, "required,email") == nil
}
