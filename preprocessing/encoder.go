// Package preprocessing は TeamRow を勾配ブースティング用の数値行列に変換する
package preprocessing

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/vbtune/core/model"
	"github.com/YuminosukeSato/vbtune/core/parallel"
	"github.com/YuminosukeSato/vbtune/data"
	"github.com/YuminosukeSato/vbtune/features"
	"github.com/YuminosukeSato/vbtune/pkg/errors"
)

// parallelThreshold 以下の行数では逐次処理する
const parallelThreshold = 10000

// OneHotEncoder は因子列（circuit, gender）をダミー変数に展開し、
// year と7つのスタッツ列をそのまま並べた行列を作る。
//
// 列の順序:
//
//	circuit_<水準>..., gender_<水準>..., year, attacks, kills, errors, aces, serve_errors, blocks, digs
//
// 水準はFit時に観測されたものをソートして全て保持する（基準水準は落とさない）。
type OneHotEncoder struct {
	state *model.StateManager

	// Circuits は学習時に観測された circuit の水準
	Circuits []string

	// Genders は学習時に観測された gender の水準
	Genders []string

	circuitIdx map[string]int
	genderIdx  map[string]int
	names      []string

	warnMu sync.Mutex
	warned map[[2]string]bool
}

var _ model.Transformer[features.TeamRow] = (*OneHotEncoder)(nil)

// NewOneHotEncoder は新しいOneHotEncoderを作成する
//
// 使用例:
//
//	enc := preprocessing.NewOneHotEncoder()
//	if err := enc.Fit(train); err != nil { ... }
//	X, err := enc.Transform(train)
func NewOneHotEncoder() *OneHotEncoder {
	return &OneHotEncoder{
		state:  model.NewStateManager("OneHotEncoder"),
		warned: make(map[[2]string]bool),
	}
}

func levels(rows []features.TeamRow, get func(features.TeamRow) string) ([]string, map[string]int) {
	seen := make(map[string]bool)
	for _, r := range rows {
		seen[get(r)] = true
	}
	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)

	idx := make(map[string]int, len(out))
	for i, l := range out {
		idx[l] = i
	}
	return out, idx
}

// Fit は circuit と gender の水準を学習する
//
// パラメータ:
//   - rows: 訓練データ
//
// 戻り値:
//   - error: rows が空の場合
func (e *OneHotEncoder) Fit(rows []features.TeamRow) error {
	if len(rows) == 0 {
		return errors.NewModelError("OneHotEncoder.Fit", "empty data", errors.ErrEmptyData)
	}

	e.Circuits, e.circuitIdx = levels(rows, func(r features.TeamRow) string { return r.Circuit })
	e.Genders, e.genderIdx = levels(rows, func(r features.TeamRow) string { return r.Gender })

	e.names = make([]string, 0, len(e.Circuits)+len(e.Genders)+1+data.NumStats)
	for _, l := range e.Circuits {
		e.names = append(e.names, "circuit_"+l)
	}
	for _, l := range e.Genders {
		e.names = append(e.names, "gender_"+l)
	}
	e.names = append(e.names, "year")
	for _, s := range data.Stats {
		e.names = append(e.names, s.String())
	}

	e.warnMu.Lock()
	e.warned = make(map[[2]string]bool)
	e.warnMu.Unlock()

	e.state.SetFitted(len(e.names), len(rows))
	return nil
}

// Transform は rows を (len(rows) × NumFeatures) の行列に変換する。
// 学習時に存在しなかった水準は全て0として符号化し、(列, 水準) ごとに一度だけ警告する。
func (e *OneHotEncoder) Transform(rows []features.TeamRow) (*mat.Dense, error) {
	if err := e.state.RequireFitted("Transform"); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.NewModelError("OneHotEncoder.Transform", "empty data", errors.ErrEmptyData)
	}

	nCols := len(e.names)
	X := mat.NewDense(len(rows), nCols, nil)
	offGender := len(e.Circuits)
	offNum := offGender + len(e.Genders)

	var (
		mu      sync.Mutex
		unknown [][2]string
	)
	parallel.ParallelizeWithThreshold(len(rows), parallelThreshold, func(start, end int) {
		var local [][2]string
		for i := start; i < end; i++ {
			r := rows[i]
			row := X.RawRowView(i)

			if j, ok := e.circuitIdx[r.Circuit]; ok {
				row[j] = 1
			} else {
				local = append(local, [2]string{"circuit", r.Circuit})
			}
			if j, ok := e.genderIdx[r.Gender]; ok {
				row[offGender+j] = 1
			} else {
				local = append(local, [2]string{"gender", r.Gender})
			}

			row[offNum] = r.Year
			copy(row[offNum+1:], r.Stats[:])
		}
		if len(local) > 0 {
			mu.Lock()
			unknown = append(unknown, local...)
			mu.Unlock()
		}
	})

	e.warnUnknown(unknown)
	return X, nil
}

func (e *OneHotEncoder) warnUnknown(unknown [][2]string) {
	e.warnMu.Lock()
	defer e.warnMu.Unlock()
	for _, u := range unknown {
		if e.warned[u] {
			continue
		}
		e.warned[u] = true
		errors.Warn(errors.NewUnknownCategoryWarning(u[0], u[1]))
	}
}

// FitTransform はFitとTransformを続けて実行する
func (e *OneHotEncoder) FitTransform(rows []features.TeamRow) (*mat.Dense, error) {
	if err := e.Fit(rows); err != nil {
		return nil, err
	}
	return e.Transform(rows)
}

// FeatureNames は出力列の名前を返す（未学習の場合は nil）
func (e *OneHotEncoder) FeatureNames() []string {
	if !e.state.IsFitted() {
		return nil
	}
	return append([]string(nil), e.names...)
}

// NumFeatures は出力列数（予測子の数 p）を返す
func (e *OneHotEncoder) NumFeatures() int {
	n, _ := e.state.GetDimensions()
	return n
}
