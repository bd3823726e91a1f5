package dataset

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
	"go-ml.dev/pkg/harness/config"
	"golang.org/x/xerrors"
	"gotest.tools/assert"
)

func csvText(rows int) string {
	b := strings.Builder{}
	b.WriteString("f1,f2,f3,f4,f5,target\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "%d,%d.5,%d,-%d,1e-3,%d\n", i, i, i*i, i, 2*i)
	}
	return b.String()
}

func Test_LoadCsv(t *testing.T) {
	dir := t.TempDir()
	assert.NilError(t, os.WriteFile(filepath.Join(dir, "train.csv"), []byte(csvText(100)), 0644))
	ds, err := Load(config.Data{File: "train.csv", Root: dir})
	assert.NilError(t, err)
	assert.Equal(t, ds.Len(), 100)
	assert.DeepEqual(t, ds.Features, []string{"f1", "f2", "f3", "f4", "f5"})
	assert.Equal(t, ds.Label, "target")
	assert.DeepEqual(t, ds.X[3], []float64{3, 3.5, 9, -3, 1e-3})
	assert.Equal(t, ds.Y[3], 6.0)
}

func Test_LoadCompressedCsv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.csv.gz")
	f, err := os.Create(path)
	assert.NilError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(csvText(10)))
	assert.NilError(t, err)
	assert.NilError(t, gz.Close())
	assert.NilError(t, f.Close())
	ds, err := Load(config.Data{File: path})
	assert.NilError(t, err)
	assert.Equal(t, ds.Len(), 10)
}

func Test_LoadSqlite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.db")
	db, err := sql.Open("sqlite3", path)
	assert.NilError(t, err)
	_, err = db.Exec(`create table dataset (a real, b integer, y real)`)
	assert.NilError(t, err)
	for i := 0; i < 5; i++ {
		_, err = db.Exec(`insert into dataset values (?,?,?)`, float64(i)/2, i, float64(i)*3)
		assert.NilError(t, err)
	}
	assert.NilError(t, db.Close())
	ds, err := Load(config.Data{File: path, Table: "dataset"})
	assert.NilError(t, err)
	assert.Equal(t, ds.Len(), 5)
	assert.DeepEqual(t, ds.Features, []string{"a", "b"})
	assert.DeepEqual(t, ds.X[4], []float64{2, 4})
	assert.Equal(t, ds.Y[4], 12.0)

	_, err = Load(config.Data{File: path, Table: "absent"})
	var u *Unavailable
	assert.Assert(t, xerrors.As(err, &u))
}

func Test_LoadUnavailable(t *testing.T) {
	dir := t.TempDir()
	var u *Unavailable
	_, err := Load(config.Data{File: "absent.csv", Root: dir})
	assert.Assert(t, xerrors.As(err, &u))
	assert.Assert(t, xerrors.Is(err, os.ErrNotExist))

	assert.NilError(t, os.WriteFile(filepath.Join(dir, "bad.csv"), []byte("a,y\n1,x\n"), 0644))
	_, err = Load(config.Data{File: "bad.csv", Root: dir})
	assert.Assert(t, xerrors.As(err, &u))
	assert.ErrorContains(t, err, "not a number")

	assert.NilError(t, os.WriteFile(filepath.Join(dir, "empty.csv"), []byte("a,y\n"), 0644))
	_, err = Load(config.Data{File: "empty.csv", Root: dir})
	assert.ErrorContains(t, err, "no rows")

	assert.NilError(t, os.WriteFile(filepath.Join(dir, "data.feather"), []byte("ARROW1"), 0644))
	_, err = Load(config.Data{File: "data.feather", Root: dir})
	assert.ErrorContains(t, err, "unsupported")

	assert.NilError(t, os.WriteFile(filepath.Join(dir, "data.parquet"), []byte("PAR1"), 0644))
	_, err = Load(config.Data{File: "data.parquet", Root: dir})
	assert.Assert(t, xerrors.As(err, &u))
	assert.ErrorContains(t, err, "malformed parquet")
}

type parquetRow struct {
	A float64 `parquet:"a"`
	B int64   `parquet:"b"`
	C float32 `parquet:"c"`
	Y float64 `parquet:"y"`
}

func Test_LoadParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.parquet")
	rows := make([]parquetRow, 300)
	for i := range rows {
		rows[i] = parquetRow{A: float64(i) / 2, B: int64(i), C: 0.25, Y: float64(i) * 3}
	}
	assert.NilError(t, parquet.WriteFile(path, rows))
	ds, err := Load(config.Data{File: path})
	assert.NilError(t, err)
	assert.Equal(t, ds.Len(), 300)
	assert.DeepEqual(t, ds.Features, []string{"a", "b", "c"})
	assert.Equal(t, ds.Label, "y")
	assert.DeepEqual(t, ds.X[299], []float64{149.5, 299, 0.25})
	assert.Equal(t, ds.Y[299], 897.0)
}

func Test_Path(t *testing.T) {
	assert.Equal(t, Path(config.Data{File: "a.csv"}), filepath.Join("data", "a.csv"))
	assert.Equal(t, Path(config.Data{File: "/x/a.csv", Root: "r"}), "/x/a.csv")
}
