package cty

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"
	"howett.net/plist"
)

// Format names a CTY source encoding.
type Format string

const (
	FormatAuto  Format = "auto"
	FormatDat   Format = "dat"
	FormatPlist Format = "plist"
)

// ParseFormat validates a format name. The empty string means FormatAuto.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatAuto, nil
	case FormatAuto, FormatDat, FormatPlist:
		return f, nil
	default:
		return "", errors.Newf("unknown cty format %q", s)
	}
}

// DetectFormat resolves FormatAuto for path: a .plist extension selects the
// plist decoder and anything else cty.dat. Explicit formats are returned as is.
func DetectFormat(path string, format Format) Format {
	if format != FormatAuto && format != "" {
		return format
	}
	if strings.EqualFold(filepath.Ext(path), ".plist") {
		return FormatPlist
	}
	return FormatDat
}

// LoadFile loads path using the given format, see DetectFormat.
func LoadFile(path string, format Format, opts ...Option) (*Table, error) {
	switch DetectFormat(path, format) {
	case FormatDat:
		return Load(path, opts...)
	case FormatPlist:
		return LoadPlist(path, opts...)
	default:
		return nil, errors.Newf("unknown cty format %q", format)
	}
}

// plistRecord is one value of the top-level cty.plist dictionary.
type plistRecord struct {
	Country       string  `plist:"Country"`
	Prefix        string  `plist:"Prefix"`
	ADIF          int     `plist:"ADIF"`
	CQZone        int     `plist:"CQZone"`
	ITUZone       int     `plist:"ITUZone"`
	Continent     string  `plist:"Continent"`
	Latitude      float64 `plist:"Latitude"`
	Longitude     float64 `plist:"Longitude"`
	GMTOffset     float64 `plist:"GMTOffset"`
	ExactCallsign bool    `plist:"ExactCallsign"`
}

// LoadPlist reads and decodes a cty.plist file.
func LoadPlist(path string, opts ...Option) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}
	defer f.Close()

	t, err := ParsePlist(f)
	if err != nil {
		var ioErr *IOError
		if errors.As(err, &ioErr) && ioErr.Path == "" {
			ioErr.Path = path
			return nil, ioErr
		}
		return nil, errors.Wrapf(err, "cty plist %s", path)
	}
	o := buildOptions(opts)
	o.logger.Info("loaded cty plist",
		zap.String("path", path),
		zap.Int("keys", t.Len()),
		zap.String("fingerprint", fmt.Sprintf("%016x", t.Fingerprint())),
	)
	return t, nil
}

// ParsePlist decodes cty.plist content. Keys are used verbatim. Longitudes are
// stored west-positive to match cty.dat, and GMTOffset hours become seconds.
func ParsePlist(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &IOError{Err: err}
	}
	var raw map[string]plistRecord
	if err := plist.NewDecoder(bytes.NewReader(data)).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decode plist")
	}

	entries := make(map[string]Entity, len(raw))
	for key, rec := range raw {
		if key == "" {
			return nil, &MalformedRecordError{Text: rec.Country, Reason: "empty plist key"}
		}
		secs := math.Round(rec.GMTOffset * 3600)
		if math.Abs(secs) >= maxUTCOffsetSeconds {
			return nil, &InvalidTimezoneError{Token: key, Offset: rec.GMTOffset}
		}
		entries[key] = Entity{
			Name:          rec.Country,
			CQZone:        rec.CQZone,
			ITUZone:       rec.ITUZone,
			Continent:     rec.Continent,
			Latitude:      rec.Latitude,
			Longitude:     -rec.Longitude,
			UTCOffset:     int(secs),
			PrimaryPrefix: strings.TrimLeft(rec.Prefix, waedcMarker),
			WAEDC:         strings.HasPrefix(rec.Prefix, waedcMarker),
			ExactMatch:    rec.ExactCallsign,
		}
	}
	return newTable(entries, xxh3.Hash(data)), nil
}
