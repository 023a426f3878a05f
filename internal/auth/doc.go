// Package auth turns inline and saved storage-state documents into the
// cookies and localStorage a browser session is primed with, and manages the
// saved state file behind the auth endpoints.
package auth
