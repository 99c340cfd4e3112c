// Package conversation implements the two-agent turn engine: per-agent
// transcript stores, the session state machine and the sequential turn
// loop that alternates speakers, wraps each provider call in retry and
// streams observation events.
package conversation
