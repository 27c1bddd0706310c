// Package ingress is the single entry point collaborators (the CLI, a
// future HTTP facade, or any other caller embedding this module) use to
// submit and manage tasks. It never talks to the store directly — every
// operation goes through taskstore, the event bus, or a broadcast control
// event, so ingress carries no storage-format knowledge of its own.
package ingress
