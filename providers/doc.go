// Package providers implements the OAuth2 authorization-code client used by
// every built-in service. Service defaults live in the subpackages
// (providers/github, providers/google, ...); deployments supply a
// ClientConfig with credentials and redirect.
package providers
