// Package data reads the beach volleyball match file: fetching it over HTTP
// (or from disk), caching the body, and decoding CSV records into Match
// values.
package data

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"

	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
)

// Stat is one of the per-player match totals recorded in the file.
type Stat int

const (
	Attacks Stat = iota
	Kills
	Errors
	Aces
	ServeErrors
	Blocks
	Digs

	NumStats = int(Digs) + 1
)

var statNames = [NumStats]string{
	"attacks", "kills", "errors", "aces", "serve_errors", "blocks", "digs",
}

// Stats lists every Stat in column order.
var Stats = [NumStats]Stat{Attacks, Kills, Errors, Aces, ServeErrors, Blocks, Digs}

// String returns the column suffix of s, e.g. "serve_errors".
func (s Stat) String() string {
	if s < 0 || int(s) >= NumStats {
		return "Stat(" + strconv.Itoa(int(s)) + ")"
	}
	return statNames[s]
}

// Totals holds one player's totals indexed by Stat. Missing values are NaN.
type Totals [NumStats]float64

// Missing is the value stored for an empty or NA numeric cell.
var Missing = math.NaN()

// IsMissing reports whether v is a missing numeric value.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// Match is one row of vb_matches.csv restricted to the columns the analysis
// uses. Empty or NA string cells are stored as "".
type Match struct {
	Circuit    string
	Tournament string
	Gender     string
	Year       float64

	// Winners and Losers hold players 1 and 2 of each team.
	Winners [2]Totals
	Losers  [2]Totals
}

// player column prefixes, in the order Winners[0], Winners[1], Losers[0], Losers[1]
var playerPrefixes = [4]string{"w_p1", "w_p2", "l_p1", "l_p2"}

// StatColumn returns the CSV column holding stat s of the player with the
// given prefix, e.g. StatColumn("w_p1", Kills) == "w_p1_tot_kills".
func StatColumn(prefix string, s Stat) string {
	return prefix + "_tot_" + s.String()
}

// RequiredColumns lists the header names ParseMatches needs.
func RequiredColumns() []string {
	cols := []string{"circuit", "tournament", "gender", "year"}
	for _, p := range playerPrefixes {
		for _, s := range Stats {
			cols = append(cols, StatColumn(p, s))
		}
	}
	return cols
}

func isNA(cell string) bool {
	cell = strings.TrimSpace(cell)
	return cell == "" || cell == "NA"
}

// ParseMatches decodes vb_matches.csv. Columns are located by header name;
// columns the analysis does not use are ignored, and a missing required
// column is a ParseError naming it. Numeric cells that are empty or NA
// decode as Missing; any other unparsable numeric cell is a ParseError with
// its line and column.
func ParseMatches(r io.Reader) ([]Match, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, vberrors.WithStack(vberrors.ErrEmptyData)
	}
	if err != nil {
		return nil, vberrors.NewParseError(1, "", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	for _, col := range RequiredColumns() {
		if _, ok := index[col]; !ok {
			return nil, vberrors.NewParseError(1, col, vberrors.New("required column not found"))
		}
	}

	var (
		statIdx [4][NumStats]int
		matches []Match
	)
	for p, prefix := range playerPrefixes {
		for _, s := range Stats {
			statIdx[p][s] = index[StatColumn(prefix, s)]
		}
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line := 0
			var csvErr *csv.ParseError
			if vberrors.As(err, &csvErr) {
				line = csvErr.Line
			}
			return nil, vberrors.NewParseError(line, "", err)
		}
		line, _ := cr.FieldPos(0)

		str := func(col string) string {
			v := rec[index[col]]
			if isNA(v) {
				return ""
			}
			return strings.TrimSpace(v)
		}
		num := func(col string, i int) (float64, error) {
			cell := rec[i]
			if isNA(cell) {
				return Missing, nil
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return 0, vberrors.NewParseError(line, col, err)
			}
			return v, nil
		}

		m := Match{
			Circuit:    str("circuit"),
			Tournament: str("tournament"),
			Gender:     str("gender"),
		}
		if m.Year, err = num("year", index["year"]); err != nil {
			return nil, err
		}
		for p, prefix := range playerPrefixes {
			var t Totals
			for _, s := range Stats {
				if t[s], err = num(StatColumn(prefix, s), statIdx[p][s]); err != nil {
					return nil, err
				}
			}
			if p < 2 {
				m.Winners[p] = t
			} else {
				m.Losers[p-2] = t
			}
		}
		matches = append(matches, m)
	}

	if len(matches) == 0 {
		return nil, vberrors.WithStack(vberrors.ErrEmptyData)
	}
	return matches, nil
}
