/*
Package ports defines the driven ports (interfaces) of the minion runtime.

These interfaces decouple the session manager and runner from external
implementations, allowing them to work with various storage backends.

# Key Interfaces

  - SessionStore: persists and loads sessions keyed by (app, user, session).
  - DistributedLocker: provides distributed locking for concurrent session access across replicas.
*/
package ports
