// Package lister enumerates candidate sources for ingestion from a channel
// reference, applying configuration-enumerated filters before each item
// reaches the orchestrator's queue. Enumeration failure is fatal for the
// run; failure to enrich a single item degrades to a minimal record.
package lister
