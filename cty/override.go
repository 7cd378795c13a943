package cty

import (
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// OverrideKind identifies one of the annotations an alias token may carry to
// replace a field inherited from its primary record.
type OverrideKind uint8

const (
	OverrideCQZone      OverrideKind = iota // (n)
	OverrideITUZone                         // [n]
	OverrideCoordinates                     // <lat/lon>
	OverrideContinent                       // {code}
	OverrideUTCOffset                       // ~hours~
	numOverrideKinds
)

var overrideNames = [numOverrideKinds]string{
	OverrideCQZone:      "cq zone",
	OverrideITUZone:     "itu zone",
	OverrideCoordinates: "coordinates",
	OverrideContinent:   "continent",
	OverrideUTCOffset:   "utc offset",
}

var overrideDelims = [numOverrideKinds]struct{ open, close byte }{
	OverrideCQZone:      {'(', ')'},
	OverrideITUZone:     {'[', ']'},
	OverrideCoordinates: {'<', '>'},
	OverrideContinent:   {'{', '}'},
	OverrideUTCOffset:   {'~', '~'},
}

// overrideOpeners ends the key part of an alias token.
var overrideOpeners = func() string {
	var b strings.Builder
	for _, d := range overrideDelims {
		b.WriteByte(d.open)
	}
	return b.String()
}()

func (k OverrideKind) String() string {
	if k < numOverrideKinds {
		return overrideNames[k]
	}
	return "override(" + strconv.Itoa(int(k)) + ")"
}

const maxUTCOffsetSeconds = 24 * 3600

// decodeAlias splits an alias token into its table key and the entity it maps
// to: a copy of base with the token's overrides applied.
func decodeAlias(token string, base Entity, line int) (string, Entity, error) {
	exact := strings.HasPrefix(token, "=")
	body := strings.TrimLeft(token, "=")

	key, annotations := body, ""
	if cut := strings.IndexAny(body, overrideOpeners); cut >= 0 {
		key, annotations = body[:cut], body[cut:]
	}
	if key == "" {
		return "", Entity{}, &MalformedRecordError{Line: line, Text: token, Reason: "alias without a key"}
	}

	e := base
	e.ExactMatch = exact
	for kind := OverrideKind(0); kind < numOverrideKinds; kind++ {
		value, found, err := captureOverride(annotations, kind)
		if err != nil {
			return "", Entity{}, &OverrideFormatError{Line: line, Kind: kind, Token: token, Err: err}
		}
		if !found {
			continue
		}
		if err := applyOverride(&e, kind, value); err != nil {
			var tzErr *InvalidTimezoneError
			if errors.As(err, &tzErr) {
				tzErr.Line = line
				tzErr.Token = token
				return "", Entity{}, tzErr
			}
			return "", Entity{}, &OverrideFormatError{Line: line, Kind: kind, Token: token, Err: err}
		}
	}
	return key, e, nil
}

// captureOverride returns the text between the first delimiter pair of kind in
// s. Each kind is scanned independently so annotation order does not matter.
func captureOverride(s string, kind OverrideKind) (string, bool, error) {
	d := overrideDelims[kind]
	start := strings.IndexByte(s, d.open)
	if start < 0 {
		return "", false, nil
	}
	rest := s[start+1:]
	end := strings.IndexByte(rest, d.close)
	if end < 0 {
		return "", false, errors.Newf("unterminated %q", string(d.open))
	}
	return rest[:end], true, nil
}

func applyOverride(e *Entity, kind OverrideKind, value string) error {
	switch kind {
	case OverrideCQZone:
		n, err := parseZone(value)
		if err != nil {
			return err
		}
		e.CQZone = n
	case OverrideITUZone:
		n, err := parseZone(value)
		if err != nil {
			return err
		}
		e.ITUZone = n
	case OverrideCoordinates:
		latText, lonText, ok := strings.Cut(value, "/")
		if !ok {
			return errors.Newf("want lat/lon, got %q", value)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(latText), 64)
		if err != nil {
			return errors.Wrap(err, "latitude")
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(lonText), 64)
		if err != nil {
			return errors.Wrap(err, "longitude")
		}
		e.Latitude, e.Longitude = lat, lon
	case OverrideContinent:
		e.Continent = value
	case OverrideUTCOffset:
		secs, err := parseUTCOffset(value)
		if err != nil {
			return err
		}
		e.UTCOffset = secs
	default:
		return errors.Newf("unhandled override kind %d", kind)
	}
	return nil
}

func parseZone(value string) (int, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// parseUTCOffset converts an hour offset (fractions allowed, e.g. 5.5) to
// seconds. Offsets of a full day or more are rejected.
func parseUTCOffset(value string) (int, error) {
	hours, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(hours) || math.IsInf(hours, 0) {
		return 0, errors.Newf("utc offset %q is not a number", value)
	}
	secs := math.Round(hours * 3600)
	if math.Abs(secs) >= maxUTCOffsetSeconds {
		return 0, &InvalidTimezoneError{Offset: hours}
	}
	return int(secs), nil
}
