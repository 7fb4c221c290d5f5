// Package tool implements the tool invocation boundary: the Tool interface,
// handler adapters, a name registry and invocation wrappers.
package tool
