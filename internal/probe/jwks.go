package probe

import (
	"context"
	"fmt"
	"net/http"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// FetchKeySet fetches the published JWKS document through the probe client
// and parses it. It returns the number of keys and how many carry a key ID,
// so the auth check can distinguish a malformed set from a thin one.
func FetchKeySet(ctx context.Context, c *Client, jwksURL string) (total int, withKid int, err error) {
	resp, err := c.Probe(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return 0, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("JWKS endpoint answered %d", resp.StatusCode)
	}

	keySet, err := jwk.Parse(resp.Body)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse JWKS document: %w", err)
	}

	iter := keySet.Keys(ctx)
	for iter.Next(ctx) {
		pair := iter.Pair()
		total++
		key, ok := pair.Value.(jwk.Key)
		if !ok {
			continue
		}
		if key.KeyID() != "" {
			withKid++
		}
	}
	return total, withKid, nil
}
