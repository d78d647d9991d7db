// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"context"
	"net/url"

	"github.com/bureau-foundation/mesh/lib/media"
	"github.com/bureau-foundation/mesh/messaging"
)

// LoginOption is one way to log in that a homeserver offers.
type LoginOption struct {
	LoginType Kind   `json:"login_type" cbor:"login_type"`
	Provider  string `json:"provider,omitempty" cbor:"provider,omitempty"`
	IconURL   string `json:"icon_url,omitempty" cbor:"icon_url,omitempty"`
}

// Discover validates homeserverURL, builds the unauthenticated client
// for it, checks that the server answers, and maps its advertised login
// flows to login options in advertised order. clientConfig supplies
// everything but the URL.
//
// Password flows yield one Password option. SSO flows yield one option
// per identity provider, with the provider's mxc icon resolved to an
// unauthenticated download URL; an SSO flow without providers yields
// nothing. Unknown flows are ignored.
func Discover(ctx context.Context, homeserverURL string, clientConfig messaging.ClientConfig) (*messaging.Client, []LoginOption, error) {
	if err := validateHomeserverURL(homeserverURL); err != nil {
		return nil, nil, err
	}

	clientConfig.HomeserverURL = homeserverURL
	client, err := messaging.NewClient(clientConfig)
	if err != nil {
		return nil, nil, Connectivity("connecting to %s: %w", homeserverURL, err)
	}
	if _, err := client.ServerVersions(ctx); err != nil {
		return nil, nil, Connectivity("homeserver %s is not reachable: %w", homeserverURL, err)
	}

	flows, err := client.LoginFlows(ctx)
	if err != nil {
		return nil, nil, Protocol("listing login flows on %s: %w", homeserverURL, err)
	}
	return client, loginOptions(flows), nil
}

func validateHomeserverURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return Configuration("invalid homeserver URL %q: %w", raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Configuration("homeserver URL %q must use http or https", raw)
	}
	if parsed.Host == "" {
		return Configuration("homeserver URL %q has no host", raw)
	}
	return nil
}

func loginOptions(flows []messaging.LoginFlow) []LoginOption {
	options := []LoginOption{}
	for _, flow := range flows {
		switch flow.Type {
		case messaging.LoginTypePassword:
			options = append(options, LoginOption{LoginType: KindPassword})
		case messaging.LoginTypeSSO:
			for _, provider := range flow.IdentityProviders {
				options = append(options, LoginOption{
					LoginType: KindSSO,
					Provider:  provider.Name,
					IconURL:   media.Resolve(provider.Icon, false, 0, 0, "", false),
				})
			}
		}
	}
	return options
}
