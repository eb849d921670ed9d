// Package secrets resolves header values stored in the operating system
// keyring, so credentials for token endpoints never appear in command lines
// or configuration files.
package secrets

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/zalando/go-keyring"
)

// DefaultService is the keyring service secrets are stored under.
const DefaultService = "servicecall"

// Prefix marks a header value as a reference to a keyring entry.
const Prefix = "keyring:"

// ErrNotFound is returned when a referenced secret does not exist.
var ErrNotFound = errors.New("secret not found")

// Keyring reads and writes named secrets of one keyring service.
type Keyring struct {
	service string
}

// New returns a Keyring for service. An empty service selects DefaultService.
func New(service string) *Keyring {
	if service == "" {
		service = DefaultService
	}
	return &Keyring{service: service}
}

// Get returns the secret stored under name.
func (k *Keyring) Get(name string) (string, error) {
	value, err := keyring.Get(k.service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("reading secret %s from keyring: %w", name, err)
	}
	return value, nil
}

// Set stores value under name, replacing any previous value.
func (k *Keyring) Set(name, value string) error {
	if name == "" {
		return errors.New("secret name cannot be empty")
	}
	if err := keyring.Set(k.service, name, value); err != nil {
		return fmt.Errorf("writing secret %s to keyring: %w", name, err)
	}
	return nil
}

// Delete removes the secret stored under name.
func (k *Keyring) Delete(name string) error {
	err := keyring.Delete(k.service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("deleting secret %s from keyring: %w", name, err)
	}
	return nil
}

// ResolveHeaders returns a copy of headers in which every value of the form
// "keyring:<name>" is replaced by the named secret. Other values are copied
// unchanged. The input map is never modified.
func (k *Keyring) ResolveHeaders(headers map[string]string) (map[string]string, error) {
	if headers == nil {
		return nil, nil
	}

	out := maps.Clone(headers)
	for key, value := range headers {
		name, ok := strings.CutPrefix(value, Prefix)
		if !ok {
			continue
		}
		secret, err := k.Get(strings.TrimSpace(name))
		if err != nil {
			return nil, fmt.Errorf("header %s: %w", key, err)
		}
		out[key] = secret
	}
	return out, nil
}
