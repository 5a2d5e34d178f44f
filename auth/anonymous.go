package auth

import (
	"github.com/maxpert/amqp-peer/interfaces"
)

// AnonymousMechanism implements SASL ANONYMOUS authentication. Every
// response is accepted; the optional trace string becomes the username.
type AnonymousMechanism struct{}

// Name returns the mechanism name
func (a *AnonymousMechanism) Name() string {
	return "ANONYMOUS"
}

// Authenticate accepts the connection as a guest
func (a *AnonymousMechanism) Authenticate(response []byte, authenticator interfaces.Authenticator) (*interfaces.User, error) {
	username := "anonymous"
	if len(response) > 0 {
		username = string(response)
	}
	return &interfaces.User{
		Username:  username,
		Groups:    []string{"guest"},
		Mechanism: a.Name(),
	}, nil
}
