// Package core contains the integrations domain: OAuth2 credential lifecycle,
// integration records, and long-running operation tracking. Adapters depend on
// this package; core does not depend on provider-specific or transport-specific
// adapters.
package core
