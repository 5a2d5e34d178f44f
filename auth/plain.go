package auth

import (
	"bytes"
	"fmt"

	amqperrors "github.com/maxpert/amqp-peer/errors"
	"github.com/maxpert/amqp-peer/interfaces"
)

// PlainMechanism implements SASL PLAIN authentication
type PlainMechanism struct{}

// Name returns the mechanism name
func (p *PlainMechanism) Name() string {
	return "PLAIN"
}

// Authenticate checks a PLAIN response of the form
// [authzid] NUL authcid NUL password. The authentication identity is the
// username.
func (p *PlainMechanism) Authenticate(response []byte, authenticator interfaces.Authenticator) (*interfaces.User, error) {
	if authenticator == nil {
		return nil, amqperrors.NewAuthError("no credential store configured", "", p.Name(), nil)
	}

	if len(response) == 0 {
		return nil, amqperrors.NewAuthError("empty authentication response", "", p.Name(), nil)
	}

	parts := bytes.Split(response, []byte{0})
	if len(parts) != 3 {
		return nil, amqperrors.NewAuthError(
			fmt.Sprintf("invalid PLAIN response format: expected 3 parts, got %d", len(parts)), "", p.Name(), nil)
	}

	username := string(parts[1])
	password := string(parts[2])

	if username == "" {
		return nil, amqperrors.NewAuthError("username cannot be empty", "", p.Name(), nil)
	}

	if password == "" {
		return nil, amqperrors.NewAuthError("password cannot be empty", username, p.Name(), nil)
	}

	user, err := authenticator.Authenticate(username, password)
	if err != nil {
		return nil, amqperrors.NewAuthError("authentication failed", username, p.Name(), err)
	}
	user.Mechanism = p.Name()

	return user, nil
}
