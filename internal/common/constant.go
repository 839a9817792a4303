// Package common contains shared constants and sentinel errors used across
// dropvault components.
package common

// AccessTokenHeaderName is the HTTP header used to carry the access token
// on inbound requests when no Authorization bearer header is present.
const AccessTokenHeaderName = "access_token"
