/*
Package session implements session management and persistence orchestration.

The Manager serializes turns per (app, user, session) triple, integrating local
reference-counted locks with an optional distributed lock and a SessionStore.
Different sessions proceed concurrently.
*/
package session
