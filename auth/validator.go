package auth

import (
	"chat-notify/errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type identity struct {
	UserID      int64  `validate:"gt=0"`
	WorkspaceID int64  `validate:"gte=0"`
	Email       string `validate:"omitempty,email"`
}

// ValidateClaims rejects tokens whose identity part is unusable even if the signature holds.
func ValidateClaims(c *Claims) error {
	err := validate.Struct(identity{UserID: c.UserID, WorkspaceID: c.WorkspaceID, Email: c.Email})
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrUnauthorized, err)
	}
	return nil
}
