// Package persistence is the relational store the core issues named
// SQL-like operations against: every query is a named, typed method rather
// than ad hoc SQL strings scattered through the domain layers.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/atasvc/sonata/internal/obserr"
	"github.com/atasvc/sonata/pkg/obsmodel"
)

// Store is the persistence surface the observing control plane depends on.
type Store struct {
	db *sqlx.DB
}

// Open connects to a Postgres DSN and verifies the store is UTC: a startup
// query checks FROM_UNIXTIME(0) == '1970-01-01 00:00:00' and refuses
// otherwise.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, obserr.Wrap(obserr.DatabaseError, "connect", err)
	}
	s := &Store{db: db}
	if err := s.verifyUTC(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) verifyUTC(ctx context.Context) error {
	var got string
	// to_timestamp(0) is Postgres's FROM_UNIXTIME(0) equivalent; AT TIME ZONE
	// 'UTC' forces the session's interpretation regardless of server tz.
	const q = `SELECT to_char(to_timestamp(0) AT TIME ZONE 'UTC', 'YYYY-MM-DD HH24:MI:SS')`
	if err := s.db.GetContext(ctx, &got, q); err != nil {
		return obserr.Wrap(obserr.DatabaseError, "utc verification query", err)
	}
	if got != "1970-01-01 00:00:00" {
		return obserr.New(obserr.DatabaseError, fmt.Sprintf("store is not UTC: FROM_UNIXTIME(0) = %q", got))
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// InsertActivity inserts a new activity row and returns its auto-generated
// ID.
func (s *Store) InsertActivity(ctx context.Context, a *obsmodel.ActivityRecord) (obsmodel.ActivityID, error) {
	const q = `INSERT INTO activity (activity_type, strategy_name, scheduled_start)
	           VALUES ($1, $2, $3) RETURNING id`
	var id int32
	if err := s.db.GetContext(ctx, &id, q, a.ActivityType, a.StrategyName, time.Unix(a.ScheduledStart, 0).UTC()); err != nil {
		return obsmodel.NoActivityID, obserr.Wrap(obserr.DatabaseError, "insert activity", err)
	}
	return obsmodel.ActivityID(id), nil
}

// UpdateActivity updates an activity row with min/max sky-freq, the
// candidate/confirmed counts and data-collection time from the obs summary,
// and an optional error comment. targetBeamIDs is accepted but not stored.
func (s *Store) UpdateActivity(ctx context.Context, id obsmodel.ActivityID, summary obsmodel.ObsSummaryStats, minSkyFreq, maxSkyFreq float64, targetBeamIDs map[string]int32, errComment string) error {
	const q = `UPDATE activity SET
	             min_sky_freq_mhz = $2, max_sky_freq_mhz = $3,
	             n_candidates = $4, n_confirmed = $5, data_collection_secs = $6,
	             error_comment = NULLIF($7, ''), updated_at = now()
	           WHERE id = $1`
	_, err := s.db.ExecContext(ctx, q, id, minSkyFreq, maxSkyFreq,
		summary.CandidateCount, summary.ConfirmedCount, summary.DataCollectionSecs, errComment)
	if err != nil {
		return obserr.Wrap(obserr.DatabaseError, "update activity", err)
	}
	return nil
}

// InsertPointingRequest records a telescope pointing-request row.
func (s *Store) InsertPointingRequest(ctx context.Context, activityID obsmodel.ActivityID, beamName string, raRads, decRads float64, requestedAt time.Time) error {
	const q = `INSERT INTO tscope_pointing_request (activity_id, beam_name, ra_rads, dec_rads, requested_at)
	           VALUES ($1, $2, $3, $4, $5)`
	_, err := s.db.ExecContext(ctx, q, activityID, beamName, raRads, decRads, requestedAt.UTC())
	if err != nil {
		return obserr.Wrap(obserr.DatabaseError, "insert pointing request", err)
	}
	return nil
}

// InsertPointingStatus records a telescope pointing-status row.
func (s *Store) InsertPointingStatus(ctx context.Context, activityID obsmodel.ActivityID, beamName string, onSource bool, reportedAt time.Time) error {
	const q = `INSERT INTO tscope_pointing_status (activity_id, beam_name, on_source, reported_at)
	           VALUES ($1, $2, $3, $4)`
	_, err := s.db.ExecContext(ctx, q, activityID, beamName, onSource, reportedAt.UTC())
	if err != nil {
		return obserr.Wrap(obserr.DatabaseError, "insert pointing status", err)
	}
	return nil
}

// InsertIFCStatusSample records one per-IFC status sample.
func (s *Store) InsertIFCStatusSample(ctx context.Context, activityID obsmodel.ActivityID, ifcName string, powerDBm float64, sampledAt time.Time) error {
	const q = `INSERT INTO ifc_status_sample (activity_id, ifc_name, power_dbm, sampled_at)
	           VALUES ($1, $2, $3, $4)`
	_, err := s.db.ExecContext(ctx, q, activityID, ifcName, powerDBm, sampledAt.UTC())
	if err != nil {
		return obserr.Wrap(obserr.DatabaseError, "insert ifc status sample", err)
	}
	return nil
}

// TargetByID queries the target catalog by ID for position and proper
// motion. InvalidTarget is returned if the ID is unknown.
func (s *Store) TargetByID(ctx context.Context, targetID int64) (obsmodel.TargetRecord, error) {
	var row struct {
		TargetID      int64   `db:"target_id"`
		RA2000Rads    float64 `db:"ra2000_rads"`
		Dec2000Rads   float64 `db:"dec2000_rads"`
		PMRA          float64 `db:"pm_ra"`
		PMDec         float64 `db:"pm_dec"`
		Parallax      float64 `db:"parallax"`
		IsMoving      bool    `db:"is_moving"`
		EphemerisFile *string `db:"ephemeris_file"`
	}
	const q = `SELECT target_id, ra2000_rads, dec2000_rads, pm_ra, pm_dec, parallax, is_moving, ephemeris_file
	           FROM target WHERE target_id = $1`
	if err := s.db.GetContext(ctx, &row, q, targetID); err != nil {
		return obsmodel.TargetRecord{}, obserr.Wrap(obserr.InvalidTarget, fmt.Sprintf("target %d not in catalog", targetID), err)
	}
	t := obsmodel.TargetRecord{
		TargetID: row.TargetID, RA2000Rads: row.RA2000Rads, Dec2000Rads: row.Dec2000Rads,
		PMRA: row.PMRA, PMDec: row.PMDec, Parallax: row.Parallax, IsMoving: row.IsMoving,
	}
	if row.EphemerisFile != nil {
		t.EphemerisFile = *row.EphemerisFile
	}
	return t, nil
}

// FailedActivitySummary is one row of the failed-activity history query
// used to compose the outgoing error e-mail.
type FailedActivitySummary struct {
	ActivityID   obsmodel.ActivityID
	ActivityType string
	FailedAt     time.Time
	ErrorComment string
}

// LastNFailedActivities queries the n most recent failed activities for a
// strategy, newest first.
func (s *Store) LastNFailedActivities(ctx context.Context, strategyName string, n int) ([]FailedActivitySummary, error) {
	const q = `SELECT id AS activity_id, activity_type, updated_at AS failed_at, error_comment
	           FROM activity
	           WHERE strategy_name = $1 AND error_comment IS NOT NULL
	           ORDER BY updated_at DESC LIMIT $2`
	var rows []struct {
		ActivityID   int32     `db:"activity_id"`
		ActivityType string    `db:"activity_type"`
		FailedAt     time.Time `db:"failed_at"`
		ErrorComment string    `db:"error_comment"`
	}
	if err := s.db.SelectContext(ctx, &rows, q, strategyName, n); err != nil {
		return nil, obserr.Wrap(obserr.DatabaseError, "query failed activity history", err)
	}
	out := make([]FailedActivitySummary, len(rows))
	for i, r := range rows {
		out[i] = FailedActivitySummary{
			ActivityID: obsmodel.ActivityID(r.ActivityID), ActivityType: r.ActivityType,
			FailedAt: r.FailedAt, ErrorComment: r.ErrorComment,
		}
	}
	return out, nil
}
