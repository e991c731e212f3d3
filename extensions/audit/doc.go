// Package audit records an audit trail entry for every task invocation.
//
// The extension contributes a mixin whose setup hook timestamps the
// invocation start and registers a completion callback that emits one
// audit event per invocation: task name, invocation ID, queue, outcome,
// and elapsed time. Events go through a pluggable Recorder; the default
// recorder writes structured log lines.
//
// Enable it by blank-importing the package and listing "audit" in the
// configuration's extensions:
//
//	import _ "github.com/stevearc/eat-your-vegetables/extensions/audit"
//
//	extensions:
//	  - audit
package audit
