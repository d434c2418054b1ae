package model

import "gonum.org/v1/gonum/mat"

// Transformer は行データを数値行列に変換するインターフェース
type Transformer[R any] interface {
	// Fit は変換に必要なパラメータ（カテゴリ水準など）を学習する
	Fit(rows []R) error

	// Transform はデータを行列に変換する
	Transform(rows []R) (*mat.Dense, error)

	// FeatureNames は Transform が出力する列の名前を返す
	FeatureNames() []string
}
