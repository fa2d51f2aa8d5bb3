// Package stream defines the canonical streaming event vocabulary shared by
// the live transport, the transcript reducer, and the drain controller.
// Wire formats are normalized into these shapes at the ingestion boundary
// (see package api); nothing downstream branches on wire-level variants.
package stream
