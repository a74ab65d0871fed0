package config

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// SecretGetter reads a secret from a credential store.
type SecretGetter func(service, user string) (string, error)

// KeyringGetter reads from the OS keyring.
var KeyringGetter SecretGetter = keyring.Get

// ResolveClientSecret fills Identity.ClientSecret from the keyring entry
// named by Identity.KeyringService, keyed by the client id. It does nothing
// when a secret is already configured or no keyring service is set.
func (c *Config) ResolveClientSecret(get SecretGetter) error {
	if c.Identity.ClientSecret != "" || c.Identity.KeyringService == "" {
		return nil
	}
	if get == nil {
		get = KeyringGetter
	}
	secret, err := get(c.Identity.KeyringService, c.Identity.ClientID)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("no client secret stored in keyring service %q for client %q", c.Identity.KeyringService, c.Identity.ClientID)
		}
		return fmt.Errorf("reading client secret from keyring: %w", err)
	}
	c.Identity.ClientSecret = secret
	return nil
}

// StoreClientSecret saves secret in the OS keyring under service, keyed by
// clientID.
func StoreClientSecret(service, clientID, secret string) error {
	if service == "" || clientID == "" {
		return errors.New("keyring service and client id are required")
	}
	return keyring.Set(service, clientID, secret)
}
