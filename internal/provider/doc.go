// Package provider implements the Provider State Cache (C5): one record
// describing the external provider's current health, updated by any
// worker after each upstream call and by an optional periodic refresher,
// with a short-lived lock collapsing concurrent refresh attempts (§4.5).
package provider
