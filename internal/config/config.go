// Package config implements the layered key/value configuration store:
// a line-oriented, multi-map text format (one Key = Value per line)
// with bool/int/string/choice/period coercions, grounded on the
// accessor-interface idiom of a BaseConfig-style config layer (see
// _examples/telepresenceio-telepresence/pkg/client/config.go) but with
// YAML unmarshalling replaced by this format: keys are case-insensitive,
// values keep original case, a key may repeat, and embedded
// `-----BEGIN`/`-----END` blocks are passed through verbatim so that
// credential blobs can be inlined in the same file.
package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/relaymesh/relayd/internal/relayerr"
)

// entry is one parsed "Key = Value" line, retaining insertion order so that
// next(entry) walks same-keyed entries the order they were declared in.
type entry struct {
	key   string // folded to lower case
	value string
}

// Store is a case-insensitive, repeatable-key configuration multi-map. The
// zero value is an empty store.
type Store struct {
	entries []entry
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

func foldKey(key string) string {
	return strings.ToLower(key)
}

// Parse reads one configuration file's worth of "Key = Value" lines from r
// and appends them to the store, preserving declaration order. Blank lines
// and lines whose first non-space character is '#' are ignored. A line
// equal to a `-----BEGIN ...-----` marker switches the parser into verbatim
// passthrough mode, copied under the key most recently parsed with the
// suffix ".block", terminated by the matching `-----END ...-----` marker;
// neither marker line itself is stored.
func (s *Store) Parse(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var blockKey string
	var block strings.Builder
	inBlock := false

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if inBlock {
			if strings.HasPrefix(trimmed, "-----END") {
				s.entries = append(s.entries, entry{key: foldKey(blockKey + ".block"), value: block.String()})
				inBlock = false
				block.Reset()
				continue
			}
			block.WriteString(line)
			block.WriteByte('\n')
			continue
		}

		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if strings.HasPrefix(trimmed, "-----BEGIN") {
			if blockKey == "" {
				return relayerr.Newf(relayerr.ConfigError, "config: %q with no preceding key to attach the block to", trimmed)
			}
			inBlock = true
			continue
		}

		key, value, ok := splitKeyValue(trimmed)
		if !ok {
			return relayerr.Newf(relayerr.ConfigError, "config: malformed line %q, expected Key = Value", line)
		}
		blockKey = key
		s.entries = append(s.entries, entry{key: foldKey(key), value: value})
	}
	if err := scanner.Err(); err != nil {
		return relayerr.Wrap(relayerr.ConfigError, err)
	}
	if inBlock {
		return relayerr.New(relayerr.ConfigError, "config: unterminated -----BEGIN block")
	}
	return nil
}

func splitKeyValue(line string) (key, value string, ok bool) {
	i := strings.IndexByte(line, '=')
	if i < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:i])
	value = strings.TrimSpace(line[i+1:])
	if key == "" {
		return "", "", false
	}
	return key, value, true
}

// First returns the first-inserted value for key, case-insensitively.
func (s *Store) First(key string) (string, bool) {
	key = foldKey(key)
	for _, e := range s.entries {
		if e.key == key {
			return e.value, true
		}
	}
	return "", false
}

// All returns every value stored under key, in insertion order.
func (s *Store) All(key string) []string {
	key = foldKey(key)
	var out []string
	for _, e := range s.entries {
		if e.key == key {
			out = append(out, e.value)
		}
	}
	return out
}

// Has reports whether key occurs at least once.
func (s *Store) Has(key string) bool {
	_, ok := s.First(key)
	return ok
}

// Bool coerces key's first value ("yes"/"no", case-insensitive) or returns
// def if the key is absent.
func (s *Store) Bool(key string, def bool) (bool, error) {
	v, ok := s.First(key)
	if !ok {
		return def, nil
	}
	switch strings.ToLower(v) {
	case "yes", "true":
		return true, nil
	case "no", "false":
		return false, nil
	default:
		return false, relayerr.Newf(relayerr.ConfigError, "config: %s: %q is not yes/no", key, v)
	}
}

// Int coerces key's first value to an integer, or returns def if absent.
func (s *Store) Int(key string, def int) (int, error) {
	v, ok := s.First(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, relayerr.Newf(relayerr.ConfigError, "config: %s: %q is not an integer", key, v)
	}
	return n, nil
}

// String returns key's first value verbatim, or def if absent.
func (s *Store) String(key, def string) string {
	v, ok := s.First(key)
	if !ok {
		return def
	}
	return v
}

// Choice coerces key's first value against a label->integer table,
// case-insensitively, or returns def if the key is absent.
func (s *Store) Choice(key string, choices map[string]int, def int) (int, error) {
	v, ok := s.First(key)
	if !ok {
		return def, nil
	}
	for label, n := range choices {
		if strings.EqualFold(label, v) {
			return n, nil
		}
	}
	return 0, relayerr.Newf(relayerr.ConfigError, "config: %s: %q is not one of the recognized choices", key, v)
}

// periodUnits maps the suffix of a period value to seconds-per-unit.
// "s" (default when no suffix is given) and "m" are seconds and minutes;
// the remaining letters follow the <int>[smhdWMY] grammar: hours,
// days, weeks, months (30 days) and years (365 days).
var periodUnits = map[byte]int64{
	's': 1,
	'm': 60,
	'h': 60 * 60,
	'd': 24 * 60 * 60,
	'W': 7 * 24 * 60 * 60,
	'M': 30 * 24 * 60 * 60,
	'Y': 365 * 24 * 60 * 60,
}

// Period coerces key's first value, formatted <int>[smhdWMY], to a duration
// in seconds. A bare integer with no suffix is seconds. Returns def if the
// key is absent.
func (s *Store) Period(key string, def int64) (int64, error) {
	v, ok := s.First(key)
	if !ok {
		return def, nil
	}
	return parsePeriod(v)
}

func parsePeriod(v string) (int64, error) {
	if v == "" {
		return 0, relayerr.New(relayerr.ConfigError, "config: empty period value")
	}
	last := v[len(v)-1]
	numPart := v
	unit := int64(1)
	if mult, ok := periodUnits[last]; ok {
		numPart = v[:len(v)-1]
		unit = mult
	}
	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, relayerr.Newf(relayerr.ConfigError, "config: %q is not a valid period", v)
	}
	return n * unit, nil
}

// Merge returns a new store holding other's entries ahead of this store's
// own, so that for keys present in both, First returns other's value and
// All lists other's values before this store's. This mirrors the usual
// config layering: a global file's values merge with a per-network
// override, override first.
func (s *Store) Merge(other *Store) *Store {
	merged := &Store{entries: make([]entry, 0, len(s.entries)+len(other.entries))}
	merged.entries = append(merged.entries, other.entries...)
	merged.entries = append(merged.entries, s.entries...)
	return merged
}

// String renders the store back to "Key = Value" lines, for diagnostics.
func (s *Store) String() string {
	var b strings.Builder
	for _, e := range s.entries {
		fmt.Fprintf(&b, "%s = %s\n", e.key, e.value)
	}
	return b.String()
}
