// Package domain models the seismic event locator: stations, phase picks,
// candidate clusters, and the origins solved from them.
//
// # Data Sources
//
// Stations and phase picks are written by external producers. The station
// registry is populated by the ingestion pipeline; phase picks are appended by
// the phase-pick detector (classical STA/LTA trigger or an ML picker). The
// locator reads both and never mutates them.
//
// # Seismological Conventions
//
// Station identity:
//
//	(network, station, location), e.g. ("HU", "BUD", "00").
//	The channel ("HHZ", "EHZ", ...) is carried on picks and arrivals for
//	auditing but does not participate in station identity.
//
// Coordinates:
//
//	Latitude/longitude in decimal degrees (WGS-84). Station elevation in
//	metres above sea level. Hypocentre depth in kilometres below sea level,
//	positive down.
//
// Phases:
//
//	"P" (compressional) and "S" (shear). The locator fetches P picks only;
//	its travel-time model is a constant P velocity half-space.
//
// Scores:
//
//	Detector confidence in [0, 1]. A pick without a score is accepted by the
//	associator regardless of the minimum score and logged as a warning.
//
// # Association
//
// Picks are grouped into candidate clusters by [Associate]. A cluster holds
// at most one pick per station and spans at most the association window from
// its earliest pick (the reference time).
//
// # Association Keys
//
// An association key ties repeated solves of the same physical event to one
// persisted origin. Fresh clusters get a deterministic key derived from their
// seed pick (see [AssociationKey]); clusters that overlap an already
// persisted origin reuse that origin's key so refinements update in place.
package domain
