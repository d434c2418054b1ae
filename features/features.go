// Package features turns match records into the team-level modelling table:
// per-team stat sums, one row per team and match, missing-value filtering and
// a stratified train/test split.
package features

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/YuminosukeSato/vbtune/data"
	"github.com/YuminosukeSato/vbtune/pkg/log"
	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
)

// TeamRow is one team's side of a match.
type TeamRow struct {
	Circuit string
	Gender  string
	Year    float64
	// Stats holds the sum over both players, indexed by data.Stat.
	Stats [data.NumStats]float64
	Win   bool
}

// Outcome returns "win" or "lose".
func (r TeamRow) Outcome() string {
	return Outcome(r.Win)
}

// Outcome names a label value the way the reports print it.
func Outcome(win bool) string {
	if win {
		return "win"
	}
	return "lose"
}

// Label returns 1 for a win and 0 for a loss.
func (r TeamRow) Label() float64 {
	if r.Win {
		return 1
	}
	return 0
}

func teamSums(players [2]data.Totals) (sums [data.NumStats]float64) {
	for _, s := range data.Stats {
		sums[s] = players[0][s] + players[1][s]
	}
	return sums
}

func complete(m data.Match, w, l [data.NumStats]float64) bool {
	if m.Circuit == "" || m.Gender == "" || data.IsMissing(m.Year) {
		return false
	}
	for i := range w {
		if data.IsMissing(w[i]) || data.IsMissing(l[i]) {
			return false
		}
	}
	return true
}

// Pivot sums player totals into team totals and emits a winners row and a
// losers row per match. A match with any missing identity field or team sum
// is dropped entirely; dropped counts those matches.
func Pivot(matches []data.Match) (rows []TeamRow, dropped int) {
	rows = make([]TeamRow, 0, 2*len(matches))
	for _, m := range matches {
		w, l := teamSums(m.Winners), teamSums(m.Losers)
		if !complete(m, w, l) {
			dropped++
			continue
		}
		rows = append(rows,
			TeamRow{Circuit: m.Circuit, Gender: m.Gender, Year: m.Year, Stats: w, Win: true},
			TeamRow{Circuit: m.Circuit, Gender: m.Gender, Year: m.Year, Stats: l, Win: false},
		)
	}

	log.GetLoggerWithName("features").Info("rows with missing values dropped",
		log.OperationKey, log.OperationTransform,
		log.PhaseKey, log.PhasePreprocessing,
		log.SamplesKey, len(rows),
		log.DroppedKey, dropped,
	)
	return rows, dropped
}

// Labels returns the 0/1 outcome column of rows.
func Labels(rows []TeamRow) *mat.VecDense {
	y := make([]float64, len(rows))
	for i, r := range rows {
		y[i] = r.Label()
	}
	return mat.NewVecDense(len(rows), y)
}

// splitStream separates the split's random stream from others seeded alike.
const splitStream = 0x5851f42d4c957f2d

// Split holds out a stratified test set: round((1-prop)·n) rows of each
// outcome, drawn without replacement from a source seeded with seed. Both
// halves keep the input order.
func Split(rows []TeamRow, prop float64, seed int64) (train, test []TeamRow, err error) {
	if prop <= 0 || prop >= 1 || math.IsNaN(prop) {
		return nil, nil, vberrors.NewValidationError("split_prop", "must be in (0, 1)", prop)
	}

	// losers first, then winners; the draw order is part of the seed contract
	var strata [2][]int
	for i, r := range rows {
		strata[int(r.Label())] = append(strata[int(r.Label())], i)
	}

	src := rand.NewPCG(uint64(seed), uint64(seed)^splitStream)
	held := make([]bool, len(rows))
	nHeld := 0
	for _, idx := range strata {
		k := int(math.Round((1 - prop) * float64(len(idx))))
		if k == 0 {
			continue
		}
		pos := make([]int, k)
		sampleuv.WithoutReplacement(pos, len(idx), src)
		for _, p := range pos {
			held[idx[p]] = true
		}
		nHeld += k
	}
	if nHeld == 0 || nHeld == len(rows) {
		return nil, nil, vberrors.NewValueError("features.Split",
			fmt.Sprintf("%d rows cannot be split with prop %.3g", len(rows), prop))
	}

	train = make([]TeamRow, 0, len(rows)-nHeld)
	test = make([]TeamRow, 0, nHeld)
	for i, r := range rows {
		if held[i] {
			test = append(test, r)
		} else {
			train = append(train, r)
		}
	}
	return train, test, nil
}

// GroupKey identifies an EDA cell.
type GroupKey struct {
	Gender string
	Win    bool
}

// StatValues groups the values of stat s by gender and outcome.
func StatValues(rows []TeamRow, s data.Stat) map[GroupKey][]float64 {
	out := make(map[GroupKey][]float64)
	for _, r := range rows {
		k := GroupKey{Gender: r.Gender, Win: r.Win}
		out[k] = append(out[k], r.Stats[s])
	}
	return out
}

// Summary describes one stat within one gender × outcome group.
type Summary struct {
	Stat   data.Stat
	Gender string
	Win    bool
	N      int
	Mean   float64
	// Median is the empirical 0.5 quantile (the lower middle value for even N).
	Median float64
}

// Summarize computes count, mean and median of every stat per gender and
// outcome, ordered by stat, then gender, then losses before wins.
func Summarize(rows []TeamRow) []Summary {
	var out []Summary
	for _, s := range data.Stats {
		groups := StatValues(rows, s)
		keys := make([]GroupKey, 0, len(groups))
		for k := range groups {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].Gender != keys[j].Gender {
				return keys[i].Gender < keys[j].Gender
			}
			return !keys[i].Win && keys[j].Win
		})

		for _, k := range keys {
			vals := append([]float64(nil), groups[k]...)
			sort.Float64s(vals)
			out = append(out, Summary{
				Stat:   s,
				Gender: k.Gender,
				Win:    k.Win,
				N:      len(vals),
				Mean:   stat.Mean(vals, nil),
				Median: stat.Quantile(0.5, stat.Empirical, vals, nil),
			})
		}
	}
	return out
}
