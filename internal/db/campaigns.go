package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/glitch.report/internal/campaign"
	"github.com/banshee-data/glitch.report/internal/sweep"
)

// ErrCampaignNotFound is returned for an unknown campaign id.
var ErrCampaignNotFound = errors.New("campaign not found")

// Campaign is one row of the campaigns table.
type Campaign struct {
	ID         string          `json:"id"`
	Status     campaign.Status `json:"status"`
	Axes       []string        `json:"axes"`
	Total      int             `json:"total_trials"`
	Recorded   int             `json:"recorded_trials"`
	Successes  int             `json:"successes"`
	ConfigJSON string          `json:"config,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnix(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

// Recorder persists a running campaign. It implements campaign.Sink.
type Recorder struct {
	db     *DB
	config string
	repeat int
	now    func() time.Time
}

// Recorder returns a sink that stores campaigns run with the given
// configuration document and repeat count.
func (db *DB) Recorder(configJSON []byte, repeat int) *Recorder {
	if repeat <= 0 {
		repeat = 1
	}
	return &Recorder{db: db, config: string(configJSON), repeat: repeat, now: time.Now}
}

// Begin implements campaign.Sink.
func (r *Recorder) Begin(id string, space *sweep.Space) error {
	axes, err := json.Marshal(space.Names())
	if err != nil {
		return err
	}
	_, err = r.db.Exec(
		`INSERT INTO campaigns (campaign_id, status, axes, total_trials, config_json, started_unix)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(campaign.StatusRunning), string(axes), space.Count()*r.repeat, nullString(r.config), unixSeconds(r.now()),
	)
	return err
}

// Append implements campaign.Sink.
func (r *Recorder) Append(id string, rec campaign.Record) error {
	values, err := json.Marshal(rec.Setting.Values())
	if err != nil {
		return err
	}
	at := rec.At
	if at.IsZero() {
		at = r.now()
	}
	_, err = r.db.Exec(
		`INSERT INTO trials (campaign_id, seq, setting_index, repeat, setting_json, outcome, reason,
		                     payload, error_code, recovered, at_unix)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.Seq, rec.Setting.Index(), rec.Repeat, string(values), string(rec.Outcome), string(rec.Reason),
		rec.Payload, rec.ErrorCode, rec.Recovered, unixSeconds(at),
	)
	return err
}

// End implements campaign.Sink.
func (r *Recorder) End(id string, runErr error) error {
	status, msg := campaign.StatusComplete, ""
	if runErr != nil {
		status, msg = campaign.StatusError, runErr.Error()
	}
	res, err := r.db.Exec(
		`UPDATE campaigns SET status = ?, error = ?, finished_unix = ? WHERE campaign_id = ?`,
		string(status), nullString(msg), unixSeconds(r.now()), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrCampaignNotFound, id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const campaignColumns = `c.campaign_id, c.status, c.axes, c.total_trials, c.config_json, c.error,
	c.started_unix, c.finished_unix,
	(SELECT COUNT(*) FROM trials t WHERE t.campaign_id = c.campaign_id),
	(SELECT COUNT(*) FROM trials t WHERE t.campaign_id = c.campaign_id AND t.outcome = 'success')`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (Campaign, error) {
	var (
		c        Campaign
		axes     string
		cfg, msg sql.NullString
		started  float64
		finished sql.NullFloat64
	)
	if err := row.Scan(&c.ID, &c.Status, &axes, &c.Total, &cfg, &msg, &started, &finished, &c.Recorded, &c.Successes); err != nil {
		return Campaign{}, err
	}
	if err := json.Unmarshal([]byte(axes), &c.Axes); err != nil {
		return Campaign{}, fmt.Errorf("campaign %s axes: %w", c.ID, err)
	}
	c.ConfigJSON = cfg.String
	c.Error = msg.String
	c.StartedAt = fromUnix(started)
	if finished.Valid {
		t := fromUnix(finished.Float64)
		c.FinishedAt = &t
	}
	return c, nil
}

// ListCampaigns returns all campaigns, newest first.
func (db *DB) ListCampaigns() ([]Campaign, error) {
	rows, err := db.Query(`SELECT ` + campaignColumns + ` FROM campaigns c ORDER BY c.started_unix DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCampaign returns one campaign by id.
func (db *DB) GetCampaign(id string) (Campaign, error) {
	c, err := scanCampaign(db.QueryRow(`SELECT `+campaignColumns+` FROM campaigns c WHERE c.campaign_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Campaign{}, fmt.Errorf("%w: %s", ErrCampaignNotFound, id)
	}
	return c, err
}

// LoadResult rebuilds the result log of a stored campaign.
func (db *DB) LoadResult(id string) (*campaign.Result, error) {
	c, err := db.GetCampaign(id)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(
		`SELECT setting_index, repeat, setting_json, outcome, reason, payload, error_code, recovered, at_unix
		 FROM trials WHERE campaign_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := campaign.NewResult(c.ID, c.Axes, c.StartedAt)
	for rows.Next() {
		var (
			rec    campaign.Record
			index  int
			values string
			at     float64
		)
		if err := rows.Scan(&index, &rec.Repeat, &values, &rec.Outcome, &rec.Reason,
			&rec.Payload, &rec.ErrorCode, &rec.Recovered, &at); err != nil {
			return nil, err
		}
		var vals []float64
		if err := json.Unmarshal([]byte(values), &vals); err != nil {
			return nil, fmt.Errorf("trial values: %w", err)
		}
		if len(vals) != len(c.Axes) {
			return nil, fmt.Errorf("trial has %d values for %d axes", len(vals), len(c.Axes))
		}
		rec.Setting = sweep.NewSetting(index, c.Axes, vals)
		rec.At = fromUnix(at)
		res.Append(rec)
	}
	return res, rows.Err()
}

// DeleteCampaign removes a campaign and its trials.
func (db *DB) DeleteCampaign(id string) error {
	res, err := db.Exec(`DELETE FROM campaigns WHERE campaign_id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrCampaignNotFound, id)
	}
	return nil
}
