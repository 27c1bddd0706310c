// Package eventbus implements the Event Bus (C10): a thin wrapper over
// the store's pub/sub on the queue-updates channel, plus a periodic
// full-snapshot heartbeat so reconnecting subscribers converge (§4.10).
package eventbus
