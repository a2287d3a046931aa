// Package sec provides authentication primitives for the records API.
//
// # Authentication
//
// Authentication uses HTTP Basic Auth against a single API account taken
// from configuration. The password may be configured in plain text or as a
// bcrypt hash. Comparisons are constant time.
//
// IMPORTANT: Basic Auth transmits credentials in base64 encoding (not encrypted).
// TLS must be used in production to protect credentials in transit.
//
// # Components
//
//   - [Gate]: Validates Basic Auth credentials against the configured account
//   - [Gate.Middleware]: echo middleware rejecting unauthenticated requests
//   - [GetPrincipal], [SetPrincipal]: Context accessors for the caller
//   - [HashPassword], [ComparePassword]: bcrypt password hashing utilities
package sec
