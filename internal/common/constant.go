// Package common contains shared constants and sentinel errors used across
// authcore components.
package common

// SessionTokenName is the cookie name and gRPC metadata key that carries the
// session token on inbound requests.
const SessionTokenName = "session_token"

// UserAgentHeaderName is the metadata key consulted for the caller's user agent.
const UserAgentHeaderName = "user-agent"
