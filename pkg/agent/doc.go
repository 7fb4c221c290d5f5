// Package agent implements the orchestration tree: policy-driven Nodes that
// call tools or delegate to children, guardrails that veto requests, and
// fixed Pipelines that hand data from stage to stage through State.
//
// Every agent run ends in exactly one terminal event (answer, adopted answer
// or block). Agents return that event to their caller instead of emitting it,
// so parents can adopt a child's answer and the runner can mark the last one
// final.
package agent
