package migrator

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"go.hackfix.me/dbmig/db/types"
)

// Unit is a single versioned schema change. The executor is passed on every
// call, and is a transaction whenever the database supports one.
//
// An explicit failure must be reported by returning an error that wraps
// ErrUnitFailed. Any other error is treated as an execution error. Both abort
// the batch the unit is part of.
type Unit interface {
	Up(ctx context.Context, q types.Querier) error
	Down(ctx context.Context, q types.Querier) error
}

// Funcs adapts plain functions into a Unit. A nil function succeeds without
// doing anything.
type Funcs struct {
	UpFn   func(ctx context.Context, q types.Querier) error
	DownFn func(ctx context.Context, q types.Querier) error
}

var _ Unit = Funcs{}

// Up runs UpFn.
func (f Funcs) Up(ctx context.Context, q types.Querier) error {
	if f.UpFn == nil {
		return nil
	}
	return f.UpFn(ctx, q)
}

// Down runs DownFn.
func (f Funcs) Down(ctx context.Context, q types.Querier) error {
	if f.DownFn == nil {
		return nil
	}
	return f.DownFn(ctx, q)
}

const (
	directivePrefix = "-- +migrate "
	directiveUp     = "up"
	directiveDown   = "down"
	directiveFail   = "fail"
)

// sqlSection is the SQL of one direction of a unit.
type sqlSection struct {
	stmt string
	// fail makes the section report an explicit failure instead of running.
	fail bool
}

func (s sqlSection) run(ctx context.Context, q types.Querier, version, direction string) error {
	if s.fail {
		return fmt.Errorf("%w: %s does not support migration %s", ErrUnitFailed, version, direction)
	}
	if strings.TrimSpace(s.stmt) == "" {
		return nil
	}
	if _, err := q.ExecContext(ctx, s.stmt); err != nil {
		return fmt.Errorf("failed executing migration %s: %w", direction, err)
	}

	return nil
}

// sqlUnit is a unit read from a SQL file with "-- +migrate Up" and
// "-- +migrate Down" sections.
type sqlUnit struct {
	version string
	up      sqlSection
	down    sqlSection
}

var _ Unit = (*sqlUnit)(nil)

func (u *sqlUnit) Up(ctx context.Context, q types.Querier) error {
	return u.up.run(ctx, q, u.version, directiveUp)
}

func (u *sqlUnit) Down(ctx context.Context, q types.Querier) error {
	return u.down.run(ctx, q, u.version, directiveDown)
}

// parseSQLUnit splits the content of a SQL unit file into its sections.
// Anything before the first section marker is ignored.
func parseSQLUnit(version string, content []byte) (*sqlUnit, error) {
	var (
		u       = &sqlUnit{version: version}
		cur     *sqlSection
		buf     strings.Builder
		seen    = map[string]bool{}
		scanner = bufio.NewScanner(strings.NewReader(string(content)))
	)
	scanner.Buffer(make([]byte, 0, 64*1024), len(content)+1)

	flush := func() {
		if cur != nil {
			cur.stmt = strings.TrimSpace(buf.String())
		}
		buf.Reset()
	}

	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if len(trimmed) >= len(directivePrefix) &&
			strings.EqualFold(trimmed[:len(directivePrefix)], directivePrefix) {
			directive := strings.ToLower(strings.TrimSpace(trimmed[len(directivePrefix):]))
			switch directive {
			case directiveUp, directiveDown:
				if seen[directive] {
					return nil, fmt.Errorf("line %d: duplicate %q section", lineNo, directive)
				}
				seen[directive] = true
				flush()
				if directive == directiveUp {
					cur = &u.up
				} else {
					cur = &u.down
				}
			case directiveFail:
				if cur == nil {
					return nil, fmt.Errorf("line %d: %q directive outside of a section", lineNo, directive)
				}
				cur.fail = true
			default:
				return nil, fmt.Errorf("line %d: unknown directive %q", lineNo, directive)
			}
			continue
		}

		if cur != nil {
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed reading migration %s: %w", version, err)
	}
	flush()

	if !seen[directiveUp] && !seen[directiveDown] {
		return nil, fmt.Errorf("migration %s has no %q or %q section",
			version, directivePrefix+"Up", directivePrefix+"Down")
	}

	return u, nil
}
