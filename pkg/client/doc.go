// Package client talks to the sanctus API on behalf of a front end or CLI.
//
// A Client owns a cookie jar and routes every request through an
// Interceptor, which attaches the session and CSRF cookies to requests for
// the API origin only and reacts to expired sessions. Session caches the
// signed-in user and role. AuthGuard and SuperAdminGuard decide whether a
// navigation may proceed.
package client
