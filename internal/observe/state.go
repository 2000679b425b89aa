// Package observe implements ObserveActivity: the per-observation state
// machine that drives a heterogeneous proxy fleet through one observation,
// surviving individual proxy timeouts without stalling the fleet and
// guaranteeing the strategy hears exactly one success-or-failure callback.
// The startup chain is variable-length, gated by the activity's Ops
// bitset, and splits work between a single-threaded reactor and a
// one-task-at-a-time worker.
package observe

// State is one step of the ObserveActivity state machine.
type State int

const (
	Created State = iota
	Started
	PreparingTscope
	PreparingIFC
	PreparingTSig
	PreparingDX
	PendingDataCollection
	DataCollectionStarted
	DataCollectionComplete
	SignalDetectionStarted
	SignalDetectionComplete
	SecondaryCandidateProcessing
	CandidateResolution
	ActivityComplete
	ActivityFailed
)

func (s State) String() string {
	switch s {
	case Created:
		return "CREATED"
	case Started:
		return "STARTED"
	case PreparingTscope:
		return "PREPARING_TSCOPE"
	case PreparingIFC:
		return "PREPARING_IFC"
	case PreparingTSig:
		return "PREPARING_TSIG"
	case PreparingDX:
		return "PREPARING_DX"
	case PendingDataCollection:
		return "PENDING_DATA_COLLECTION"
	case DataCollectionStarted:
		return "DATA_COLLECTION_STARTED"
	case DataCollectionComplete:
		return "DATA_COLLECTION_COMPLETE"
	case SignalDetectionStarted:
		return "SIGNAL_DETECTION_STARTED"
	case SignalDetectionComplete:
		return "SIGNAL_DETECTION_COMPLETE"
	case SecondaryCandidateProcessing:
		return "SECONDARY_CANDIDATE_PROCESSING"
	case CandidateResolution:
		return "CANDIDATE_RESOLUTION"
	case ActivityComplete:
		return "ACTIVITY_COMPLETE"
	case ActivityFailed:
		return "ACTIVITY_FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether s ends the activity's lifecycle.
func (s State) Terminal() bool { return s == ActivityComplete || s == ActivityFailed }
