// Package main hosts the AdForge CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into HTTP
// calls against the adforged daemon: job submission with a reference image
// upload, queue listing, detailed job inspection, live progress streaming
// over server-sent events, and configuration scaffolding.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
