package common

// AuthTokenHeaderName is the HTTP header that carries the identity-provider
// bearer token on inbound requests.
const AuthTokenHeaderName = "Authtoken"
