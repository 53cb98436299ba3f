// Package tool defines the tools the model can call and the machinery that
// runs them: a closed registry with JSON Schema validation and an executor
// that owns timeouts, path locking and error shaping.
//
// # Tools
//
// A Tool is identified by a stable lowercase name and describes its input
// with a JSON Schema document:
//
//	type Tool interface {
//		ID() string
//		Description() string
//		Parameters() json.RawMessage
//		Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error)
//	}
//
// The built-in set is bash, read, write, edit, glob, grep, ls, webfetch,
// todoread and todowrite. DefaultRegistry wires them up from a Deps bundle.
// Tools discovered at runtime (MCP servers) are adapted with NewBaseTool.
//
// # Registry
//
// The Registry is closed: only registered tools can run, and registration
// compiles the tool's schema once. Validate rejects malformed or
// schema-violating input with a *ValidationError before the tool sees it.
// Infos exposes the set in the shape provider adapters consume.
//
// # Executor
//
// Execute resolves the tool, validates input, applies a deadline and maps
// failures onto a small error set:
//
//   - ErrToolNotFound: the name is not registered
//   - *ValidationError: input failed schema validation
//   - *TimeoutError: the call exceeded its deadline
//   - *ExecutionError: the tool itself failed (wraps the cause)
//
// Tools that manage their own deadline implement TimeoutHinter; the executor
// then grants the hinted duration plus a small grace so the tool's internal
// timeout fires first and it can return partial output instead of an error.
//
// # Path Locking
//
// Tools that touch files call Context.LockPath with every path they will
// read or write. Locks are per cleaned absolute path, reference counted and
// acquired in sorted order, so concurrent tool calls in one step cannot
// interleave on the same file or deadlock on different ones. The executor
// releases all held locks when the call returns. A tool must declare all its
// paths in a single LockPath call; a second call that overlaps another
// tool's held set can wait, which is safe, but two tools locking disjoint
// sets one path at a time is not.
//
// # Mutating Tools
//
// MutatingTools marks the tools that change the working tree (bash, write,
// edit). The engine snapshots the tree before the first mutating call of a
// turn so the turn can be undone.
package tool
