// Package queue is the relay's central entry point: it admits messages,
// plans and routes them, and drives delivery through a backend.
//
// # Admission
//
// Enqueue validates the message and asks the policy enforcer whether it may
// be queued. A denial returns an *AdmissionError and creates no entry. An
// admitted message gets a strategy plan and an initial route, and Enqueue
// returns its id without waiting for delivery.
//
// # Scheduling
//
// Entries wait in per-recipient lanes. Each lane holds an urgent and a
// regular tier, both FIFO by admission sequence. The scheduler always takes
// the oldest urgent entry across idle lanes before any regular entry, and a
// lane stays busy while one of its entries is being delivered, so deliveries
// to the same recipient never overlap. Different recipients run concurrently
// up to QueueConfig.MaxConcurrent. With QueueConfig.SerializeBackend every
// backend call additionally holds one process-wide lock.
//
// Delivery runs either on a background worker (Start) or on the caller's
// goroutine (Process).
//
// # Retry
//
// A transient failure is retried up to the plan's retry_attempts with linear
// backoff: attempt n waits (n-1) * RetryDelay. Before each retry the failed
// route kind is excluded and the route is analyzed again. A failure wrapping
// backend.ErrPermanent, or an internal fault such as unencodable metadata,
// ends the entry immediately.
//
// # Waiting
//
// Wait and WaitForDelivery block only the caller. Terminal entries stay
// queryable in a bounded LRU and are archived to the journal when one is
// configured.
package queue
