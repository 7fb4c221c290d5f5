/*
Package domain contains the core domain models of the minion orchestration runtime.

It defines the session entities shared by agents, tools, stores and the runner.
This package is kept pure and free of I/O or persistence concerns, following
Hexagonal Architecture principles.

# Key Entities

  - State: the per-session key-value mapping used for hand-off between agents and tools.
  - Session: a (app, user, session) triple owning a State and an ordered Event log.
  - Event: one atomic record of interaction (user message, tool call, delegation, answer).
  - Result: the Success/Failure outcome of a tool invocation.
  - Failure: the error taxonomy attached to terminal events (tool, policy, guardrail, pipeline stage).
  - LifecycleHooks: observability callbacks fired by the runner and agents.
*/
package domain
