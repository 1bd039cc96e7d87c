// Package auth provides the API-key middleware guarding the relay's
// websocket endpoint.
//
// APIKey(mode, header, key) returns chi-compatible middleware. When
// mode != "apikey" or key == "", all requests pass through (useful for local
// development with auth disabled). Otherwise the key is read from the named
// header, or from the api_key query parameter for clients that cannot set
// headers on the upgrade request, and a mismatch is answered with 401.
package auth
