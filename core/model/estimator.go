package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる。y は 0/1 のラベル列
	Fit(X, y mat.Matrix) error
}

// ProbaPredictor は陽性クラス（勝ち）の確率を予測するモデルのインターフェース
type ProbaPredictor interface {
	// PredictProba は各行の陽性クラス確率を返す
	PredictProba(X mat.Matrix) ([]float64, error)
}

// Classifier は二値分類器のインターフェース。
// チューナーはこのインターフェース経由で候補ごとのモデルを学習・評価する。
type Classifier interface {
	Fitter
	ProbaPredictor

	// Predict は閾値0.5でクラスラベル（0/1）を返す
	Predict(X mat.Matrix) ([]float64, error)

	// FeatureImportance は特徴量ごとの重要度（gain、合計1に正規化）を返す
	FeatureImportance() ([]float64, error)
}
