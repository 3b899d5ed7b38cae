package cli

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"

	"go.hackfix.me/dbmig/xtime"
)

// DurationMapper parses durations with the extended units of
// xtime.ParseDuration, e.g. "90s" or "1d".
type DurationMapper struct{}

var _ kong.Mapper = (*DurationMapper)(nil)

// Decode implements the kong.Mapper interface.
func (DurationMapper) Decode(kctx *kong.DecodeContext, target reflect.Value) error {
	var value string
	err := kctx.Scan.PopValueInto("duration", &value)
	if err != nil {
		return err
	}

	dur, err := xtime.ParseDuration(value)
	if err != nil {
		return err
	}
	if dur < 0 {
		return errors.New("duration must not be negative")
	}

	target.SetInt(int64(dur))

	return nil
}

// limitArg is the number of entries shown by listing commands. The value
// "all" is stored as -1.
type limitArg int

var _ kong.MapperValue = (*limitArg)(nil)

// Decode implements the kong.MapperValue interface.
func (l *limitArg) Decode(kctx *kong.DecodeContext) error {
	var value string
	if err := kctx.Scan.PopValueInto("limit", &value); err != nil {
		return err
	}

	if strings.EqualFold(value, "all") {
		*l = -1
		return nil
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid limit '%s': must be a number or 'all'", value)
	}
	if n < 1 {
		return errors.New("the limit must be greater than 0")
	}
	*l = limitArg(n)

	return nil
}

// stepArg is the number of migrations an operation is applied to.
type stepArg int

func (s stepArg) Validate() error {
	if s < 1 {
		return errors.New("the step parameter must be greater than 0")
	}
	return nil
}
