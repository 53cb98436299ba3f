package permission

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// DoomLoopThreshold is how many identical consecutive calls trip the guard.
const DoomLoopThreshold = 3

// DoomLoopDetector flags tool calls repeated with identical input, a sign
// the model is stuck retrying something that will not change.
type DoomLoopDetector struct {
	mu   sync.Mutex
	runs map[string]*callRun // sessionID -> current run
}

// callRun tracks the latest run of identical calls in a session.
type callRun struct {
	hash  string
	count int
}

// NewDoomLoopDetector creates an empty detector.
func NewDoomLoopDetector() *DoomLoopDetector {
	return &DoomLoopDetector{runs: make(map[string]*callRun)}
}

// Check records a call and reports whether it is at least the
// DoomLoopThreshold-th identical call in a row for the session. A call with
// a different tool or input starts a new run.
func (d *DoomLoopDetector) Check(sessionID, toolName string, input any) bool {
	hash := hashCall(toolName, input)

	d.mu.Lock()
	defer d.mu.Unlock()

	run := d.runs[sessionID]
	if run == nil || run.hash != hash {
		d.runs[sessionID] = &callRun{hash: hash, count: 1}
		return false
	}
	run.count++
	return run.count >= DoomLoopThreshold
}

// Clear forgets the run state for a session.
func (d *DoomLoopDetector) Clear(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.runs, sessionID)
}

// hashCall fingerprints a tool call. JSON map keys marshal in sorted order,
// so equal inputs hash equally regardless of construction order.
func hashCall(toolName string, input any) string {
	data, _ := json.Marshal(map[string]any{
		"tool":  toolName,
		"input": input,
	})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
