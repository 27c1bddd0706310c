// Package handler implements the Handler Registry (C8): a map from
// task_type to the function that executes it, plus the call context
// (ctx.call_provider) handlers use to get automatic breaker and
// rate-limit enforcement around upstream calls (§4.8).
package handler
