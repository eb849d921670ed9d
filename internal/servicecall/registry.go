package servicecall

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/florianilch/servicecall/internal/transport"
)

// Registry owns all Tokens of a process, keyed by id. Entries are added by
// NewToken and only leave through Remove; there is no eviction, as the
// number of distinct token configurations is expected to stay small.
type Registry struct {
	fetcher Fetcher
	opts    options

	mu     sync.RWMutex
	tokens map[string]*Token
}

// NewRegistry creates an empty registry whose tokens refresh through fetcher.
func NewRegistry(fetcher Fetcher, opts ...Option) *Registry {
	return &Registry{
		fetcher: fetcher,
		opts:    newOptions(opts),
		tokens:  make(map[string]*Token),
	}
}

// NewToken creates and stores a Token for the given request template. No
// request is made; the credential is fetched on first use.
func (r *Registry) NewToken(method transport.Method, url string, headers map[string]string, body *string) (*Token, error) {
	if !method.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedMethod, method)
	}
	if err := validateURL(url); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	for r.tokens[id] != nil {
		id = uuid.NewString()
	}

	tok := newToken(id, method, url, headers, body, r.fetcher, r.opts)
	r.tokens[id] = tok
	return tok, nil
}

// Get looks up a token by id.
func (r *Registry) Get(id string) (*Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tok, ok := r.tokens[id]
	return tok, ok
}

// Remove deletes a token. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tokens, id)
}

// Len returns the number of stored tokens.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tokens)
}

// IDs returns the ids of all stored tokens in lexical order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.tokens))
	for id := range r.tokens {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
