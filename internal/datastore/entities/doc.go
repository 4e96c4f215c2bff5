// Package entities defines the GORM models of the birdhomie schema.
//
//   - File: one ingested clip, keyed by content hash, with its processing state
//   - Visit: one species seen in one file, with aggregate confidence
//   - Detection: one bounding box on one sampled frame, owned by a visit
//   - Taxon: cached iNaturalist taxonomy for a scientific name
//   - TaskRun: one execution of a background task, doubling as its lock
package entities
