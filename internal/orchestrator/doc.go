// Package orchestrator drives Sources through the ingestion state machine
// using three bounded worker pools — I/O, ASR, and DB — each a
// semaphore-bounded set of slots that every admitted item passes through in
// order; there are no queues between the pools. It owns retry/backoff, cost-based recognizer
// routing, and cooperative cancellation; every write to persistent state
// goes through the Claim/UpdateStatus contract so N>1 workers per pool can
// share a queue safely.
package orchestrator
