package cty

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"
)

const (
	fieldSeparator   = ":"
	primaryMinFields = 8
	waedcMarker      = "*"
	aliasSeparator   = ","
	aliasTerminator  = ";"
	maxLineBytes     = 1 << 20
)

// Primary record field positions.
const (
	fieldName = iota
	fieldCQ
	fieldITU
	fieldContinent
	fieldLatitude
	fieldLongitude
	fieldTimeOffset // ignored; offsets come only from alias overrides
	fieldPrefix
)

// Option configures a loader.
type Option func(*loadOptions)

type loadOptions struct {
	logger *zap.Logger
}

// WithLogger sets the logger used to report load summaries.
func WithLogger(l *zap.Logger) Option {
	return func(o *loadOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) loadOptions {
	o := loadOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Load reads and decodes a cty.dat file. The first error aborts the load and
// no table is returned.
func Load(path string, opts ...Option) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}
	defer f.Close()

	o := buildOptions(opts)
	t, stats, err := parse(f)
	if err != nil {
		var ioErr *IOError
		if errors.As(err, &ioErr) && ioErr.Path == "" {
			ioErr.Path = path
			return nil, ioErr
		}
		return nil, errors.Wrapf(err, "cty %s", path)
	}
	o.logger.Info("loaded cty table",
		zap.String("path", path),
		zap.Int("keys", t.Len()),
		zap.Int("primaries", stats.primaries),
		zap.Int("aliases", stats.aliases),
		zap.String("fingerprint", fmt.Sprintf("%016x", t.Fingerprint())),
	)
	return t, nil
}

// Parse decodes cty.dat content from r.
func Parse(r io.Reader, opts ...Option) (*Table, error) {
	o := buildOptions(opts)
	t, stats, err := parse(r)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("parsed cty table",
		zap.Int("keys", t.Len()),
		zap.Int("primaries", stats.primaries),
		zap.Int("aliases", stats.aliases),
	)
	return t, nil
}

// parseState carries what one line needs from the lines before it: the
// primary record that alias lines extend.
type parseState struct {
	line      int
	base      Entity
	hasBase   bool
	primaries int
	aliases   int
}

func parse(r io.Reader) (*Table, parseState, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, parseState{}, &IOError{Err: err}
	}

	entries := make(map[string]Entity)
	var st parseState
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		st, err = st.step(scanner.Text(), entries)
		if err != nil {
			return nil, st, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, st, &IOError{Err: err}
	}
	return newTable(entries, xxh3.Hash(data)), st, nil
}

// step consumes one line, adding its keys to entries, and returns the state
// for the next line.
func (st parseState) step(text string, entries map[string]Entity) (parseState, error) {
	st.line++
	fields := strings.Split(text, fieldSeparator)
	if len(fields) > 2 {
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		base, err := parsePrimary(fields, text, st.line)
		if err != nil {
			return st, err
		}
		entries[base.PrimaryPrefix] = base
		st.base = base
		st.hasBase = true
		st.primaries++
		return st, nil
	}

	for _, token := range splitAliases(text) {
		if !st.hasBase {
			err := &MalformedRecordError{Line: st.line, Text: text, Reason: "alias line before any primary record"}
			return st, errors.WithHint(err, "each alias list must follow its entity line")
		}
		key, e, err := decodeAlias(token, st.base, st.line)
		if err != nil {
			return st, err
		}
		entries[key] = e
		st.aliases++
	}
	return st, nil
}

func parsePrimary(fields []string, text string, line int) (Entity, error) {
	if len(fields) < primaryMinFields {
		return Entity{}, &MalformedRecordError{
			Line:   line,
			Text:   text,
			Reason: fmt.Sprintf("want %d fields, got %d", primaryMinFields, len(fields)),
		}
	}

	fieldErr := func(name, value string, err error) error {
		return &FieldFormatError{Line: line, Field: name, Value: value, Text: text, Err: err}
	}
	cq, err := strconv.ParseUint(fields[fieldCQ], 10, 32)
	if err != nil {
		return Entity{}, fieldErr("cq zone", fields[fieldCQ], err)
	}
	itu, err := strconv.ParseUint(fields[fieldITU], 10, 32)
	if err != nil {
		return Entity{}, fieldErr("itu zone", fields[fieldITU], err)
	}
	lat, err := strconv.ParseFloat(fields[fieldLatitude], 64)
	if err != nil {
		return Entity{}, fieldErr("latitude", fields[fieldLatitude], err)
	}
	lon, err := strconv.ParseFloat(fields[fieldLongitude], 64)
	if err != nil {
		return Entity{}, fieldErr("longitude", fields[fieldLongitude], err)
	}

	prefix := fields[fieldPrefix]
	waedc := strings.HasPrefix(prefix, waedcMarker)
	prefix = strings.TrimLeft(prefix, waedcMarker)
	if prefix == "" {
		return Entity{}, &MalformedRecordError{Line: line, Text: text, Reason: "empty prefix"}
	}

	return Entity{
		Name:          fields[fieldName],
		CQZone:        int(cq),
		ITUZone:       int(itu),
		Continent:     fields[fieldContinent],
		Latitude:      lat,
		Longitude:     lon,
		PrimaryPrefix: prefix,
		WAEDC:         waedc,
	}, nil
}

// splitAliases returns the non-empty trimmed tokens of an alias line.
func splitAliases(text string) []string {
	text = strings.TrimRight(strings.TrimSpace(text), aliasTerminator)
	parts := strings.Split(text, aliasSeparator)
	tokens := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}
