package model

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"

	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
)

// SaveModel はvをgobでエンコードしてpathに書き込む。親ディレクトリは必要に応じて作成する。
//
//	err := model.SaveModel(snapshot, "out/final_model.gob")
func SaveModel(v any, path string) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return vberrors.Wrapf(err, "create directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return vberrors.Wrapf(err, "create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = vberrors.Wrapf(cerr, "close %s", path)
		}
	}()
	return SaveModelToWriter(v, f)
}

// LoadModel はpathのgobをvにデコードする。vはポインタでなければならない。
func LoadModel(v any, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return vberrors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return LoadModelFromReader(v, f)
}

// SaveModelToWriter はvをwにgobで書き込む。
func SaveModelToWriter(v any, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(v); err != nil {
		return vberrors.Wrap(err, "encode model")
	}
	return nil
}

// LoadModelFromReader はrからgobを読み込みvにデコードする。
func LoadModelFromReader(v any, r io.Reader) error {
	if err := gob.NewDecoder(r).Decode(v); err != nil {
		return vberrors.Wrap(err, "decode model")
	}
	return nil
}
