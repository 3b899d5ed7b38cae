package migrator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	aerrors "go.hackfix.me/dbmig/app/errors"
)

// Direction is the direction of a migration plan.
type Direction int

const (
	// DirectionNone means the database is already at the target.
	DirectionNone Direction = iota
	// DirectionUp means pending units must be applied.
	DirectionUp
	// DirectionDown means applied units must be reverted.
	DirectionDown
)

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	default:
		return "none"
	}
}

// Plan is the ordered list of versions to apply or revert to reach a target.
type Plan struct {
	Direction Direction
	// Versions in execution order: ascending when applying, most recent
	// first when reverting.
	Versions []string
	// Target is the version the plan was resolved to, in canonical form.
	Target string
	// Resolved is set when the target was a point in time, and contains the
	// history record it was resolved to.
	Resolved *Record
}

// Resolver turns user supplied targets into migration plans.
type Resolver struct {
	catalog Catalog
	history *History
	loc     *time.Location
	logger  *slog.Logger
}

// NewResolver returns a resolver that interprets datetime targets in loc. If
// loc is nil the local time zone is used.
func NewResolver(c Catalog, h *History, loc *time.Location, logger *slog.Logger) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{catalog: c, history: h, loc: loc, logger: logger}
}

// Pending returns the first step pending versions in ascending order. A step
// of 0 returns all of them. The total number of pending versions is also
// returned.
func (r *Resolver) Pending(ctx context.Context, step int) (versions []string, total int, err error) {
	if step < 0 {
		return nil, 0, ErrInvalidStep
	}

	applied, err := r.history.Versions(ctx)
	if err != nil {
		return nil, 0, err
	}

	pending, err := Pending(ctx, r.catalog, applied)
	if err != nil {
		return nil, 0, err
	}
	total = len(pending)
	if step > 0 && step < total {
		pending = pending[:step]
	}

	return pending, total, nil
}

// Applied returns the step most recently applied versions, most recent first.
// BaseVersion is never included, so fewer than step versions may be returned.
func (r *Resolver) Applied(ctx context.Context, step int) ([]string, error) {
	if step < 1 {
		return nil, ErrInvalidStep
	}

	records, err := r.history.Recent(ctx, step)
	if err != nil {
		return nil, err
	}

	versions := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.Version == BaseVersion {
			continue
		}
		versions = append(versions, rec.Version)
	}

	return versions, nil
}

// Resolve returns the plan to reach target, which is one of:
//   - a version, either the full unit name or its yymmdd_hhmmss timestamp,
//     with an optional "m" prefix
//   - a UNIX timestamp in seconds
//   - a date and time in any format understood by dateparse
//
// Times resolve to the most recent version applied at or before them.
func (r *Resolver) Resolve(ctx context.Context, target string) (*Plan, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, aerrors.WithCause(ErrInvalidVersionTarget, nil, "target", target)
	}

	if isDigits(target) {
		sec, err := strconv.ParseInt(target, 10, 64)
		if err != nil {
			return nil, aerrors.WithCause(ErrInvalidVersionTarget, err, "target", target)
		}
		return r.resolveTime(ctx, target, time.Unix(sec, 0))
	}

	if version, ok := ParseVersion(target); ok {
		return r.resolveVersion(ctx, target, version)
	}

	t, err := dateparse.ParseIn(target, r.loc)
	if err != nil {
		return nil, aerrors.WithCause(ErrInvalidVersionTarget, err, "target", target)
	}

	return r.resolveTime(ctx, target, t)
}

func (r *Resolver) resolveTime(ctx context.Context, target string, t time.Time) (*Plan, error) {
	rec, ok, err := r.history.FindAppliedBefore(ctx, t)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, aerrors.With(
			fmt.Errorf("%w: %s", ErrNoVersionBeforeTimestamp, t.In(r.loc).Format(time.DateTime)),
			"target", target)
	}

	r.logger.Debug("resolved time target",
		"target", target, "version", rec.Version, "applied_at", rec.AppliedAt)

	plan, err := r.resolveVersion(ctx, target, "m"+versionKey(rec.Version))
	if err != nil {
		return nil, err
	}
	plan.Resolved = &rec

	return plan, nil
}

// resolveVersion first looks for version among the pending units, and then
// among the applied ones.
func (r *Resolver) resolveVersion(ctx context.Context, target, version string) (*Plan, error) {
	applied, err := r.history.Versions(ctx)
	if err != nil {
		return nil, err
	}

	pending, err := Pending(ctx, r.catalog, applied)
	if err != nil {
		return nil, err
	}

	if i := r.find(pending, version); i >= 0 {
		return &Plan{
			Direction: DirectionUp,
			Versions:  pending[:i+1],
			Target:    version,
		}, nil
	}

	if i := r.find(applied, version); i >= 0 {
		plan := &Plan{Direction: DirectionNone, Target: version}
		if i > 0 {
			plan.Direction = DirectionDown
			plan.Versions = applied[:i]
		}
		return plan, nil
	}

	return nil, aerrors.With(fmt.Errorf("%w '%s'", ErrUnknownVersion, target), "target", target)
}

// find returns the index of the first version identified by prefix, or -1.
// If more than one version shares the same timestamp, the first one wins.
func (r *Resolver) find(versions []string, prefix string) int {
	idx := -1
	for i, v := range versions {
		if !matchesVersion(v, prefix) {
			continue
		}
		if idx >= 0 {
			r.logger.Warn("ambiguous version, using the first match",
				"target", prefix, "version", versions[idx], "ignored", v)
			break
		}
		idx = i
	}

	return idx
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
