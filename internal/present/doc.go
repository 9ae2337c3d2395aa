// Package present fans presented notifications out to the configured sinks
// (log, Telegram, FCM web push).
//
// Present is synchronous: the dispatcher keeps the push event alive until
// every sink has answered. Each attempt passes a shared token bucket, and
// failed sends are retried with jittered exponential backoff. A short
// in-memory history backs the status endpoint.
package present
