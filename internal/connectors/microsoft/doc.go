// Package microsoft provides authentication and resilient HTTP access for
// Microsoft Dynamics 365 OData endpoints.
//
// This package provides:
//   - OAuth2 client-credentials authentication against the Microsoft identity platform
//   - A token cache that collapses concurrent refreshes into one exchange
//   - A retrying transport with exponential backoff for throttling and server errors
//   - Client-side rate limiting per Dynamics product
//   - Typed errors for identity and OData responses
//
// # OAuth2 Flow
//
// Dynamics 365 accepts app-only tokens issued to an Azure AD app registration:
//   - Token URL: https://login.microsoftonline.com/{tenant}/oauth2/v2.0/token
//   - Scope: {resource}/.default, where resource is the environment origin,
//     e.g. https://org.crm.dynamics.com
//
// No refresh token is issued for client credentials; an expired token is simply
// exchanged again. Tokens are treated as expired 60 seconds early.
//
// # Retries
//
// A 429 response is retried after the Retry-After interval (or the current backoff
// delay when the header is absent). A 5xx response is retried after the current
// backoff delay. The delay doubles after every retry. 404 and other 4xx responses
// fail immediately.
//
// # Rate Limits
//
// Dataverse service protection allows 6,000 requests per 5 minutes per user.
// Finance & Operations uses priority-based throttling with no published quota.
// This package implements conservative client-side limits to stay well below both.
package microsoft
