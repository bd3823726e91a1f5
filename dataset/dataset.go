/*
Package dataset loads a tabular dataset into memory,
the last column is the target and all preceding columns are features
*/
package dataset

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/parquet-go/parquet-go"
	"go-ml.dev/pkg/harness/config"
	"go-ml.dev/pkg/harness/model"
	"go-ml.dev/pkg/iokit"
	"go-ml.dev/pkg/zorros/zlog"
	"golang.org/x/xerrors"
)

/*
Unavailable is returned when dataset is missing, unreadable or malformed
*/
type Unavailable struct {
	Path string
	Err  error
}

func (e *Unavailable) Error() string {
	return fmt.Sprintf("dataset %v is unavailable: %v", e.Path, e.Err)
}

func (e *Unavailable) Unwrap() error {
	return e.Err
}

func unavailable(path string, format string, a ...interface{}) error {
	return &Unavailable{path, xerrors.Errorf(format, a...)}
}

/*
Path resolves data file under the data root, absolute paths are kept
*/
func Path(cfg config.Data) string {
	if filepath.IsAbs(cfg.File) {
		return cfg.File
	}
	root := cfg.Root
	if root == "" {
		root = config.DefaultDataRoot
	}
	return filepath.Join(root, cfg.File)
}

/*
Load reads the whole dataset, format is chosen by file extension
*/
func Load(cfg config.Data) (model.Dataset, error) {
	path := Path(cfg)
	zlog.Infof("Loading dataset %v", path)
	if _, err := os.Stat(path); err != nil {
		return model.Dataset{}, &Unavailable{path, err}
	}
	var (
		ds  model.Dataset
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(trimCompression(path))); ext {
	case ".csv":
		ds, err = loadCsv(path)
	case ".parquet":
		ds, err = loadParquet(path)
	case ".sqlite", ".sqlite3", ".db":
		table := cfg.Table
		if table == "" {
			table = config.DefaultTable
		}
		ds, err = loadSqlite(path, table)
	default:
		err = unavailable(path, "unsupported dataset format `%v`", ext)
	}
	if err != nil {
		return model.Dataset{}, err
	}
	if err = ds.Validate(); err != nil {
		return model.Dataset{}, &Unavailable{path, err}
	}
	zlog.Infof("Dataset loaded: %d rows, %d features, target `%v`", ds.Len(), len(ds.Features), ds.Label)
	return ds, nil
}

func trimCompression(path string) string {
	for _, ext := range []string{".gz", ".bz2", ".xz"} {
		if strings.HasSuffix(strings.ToLower(path), ext) {
			return path[:len(path)-len(ext)]
		}
	}
	return path
}

func split(path string, header []string) (model.Dataset, error) {
	if len(header) < 2 {
		return model.Dataset{}, unavailable(path, "dataset needs at least one feature and a target, got %d columns", len(header))
	}
	n := len(header) - 1
	return model.Dataset{Features: append([]string(nil), header[:n]...), Label: header[n]}, nil
}

func loadCsv(path string) (ds model.Dataset, err error) {
	rd, err := iokit.Compressed(iokit.File(path)).Open()
	if err != nil {
		return ds, &Unavailable{path, err}
	}
	defer rd.Close()
	cr := csv.NewReader(rd)
	header, err := cr.Read()
	if err != nil {
		return ds, unavailable(path, "failed to read header: %w", err)
	}
	if ds, err = split(path, header); err != nil {
		return
	}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ds, unavailable(path, "malformed csv: %w", err)
		}
		row := make([]float64, len(rec))
		for i, s := range rec {
			if row[i], err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
				return ds, unavailable(path, "line %d column `%v` is not a number: %q", line, header[i], s)
			}
		}
		ds.X = append(ds.X, row[:len(row)-1])
		ds.Y = append(ds.Y, row[len(row)-1])
	}
	if ds.Len() == 0 {
		return ds, unavailable(path, "dataset has no rows")
	}
	return ds, nil
}

func loadSqlite(path, table string) (ds model.Dataset, err error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return ds, &Unavailable{path, err}
	}
	defer db.Close()
	rows, err := db.Query(`select * from "` + strings.ReplaceAll(table, `"`, `""`) + `"`)
	if err != nil {
		return ds, unavailable(path, "failed to query table `%v`: %w", table, err)
	}
	defer rows.Close()
	header, err := rows.Columns()
	if err != nil {
		return ds, &Unavailable{path, err}
	}
	if ds, err = split(path, header); err != nil {
		return
	}
	for rows.Next() {
		row := make([]float64, len(header))
		refs := make([]interface{}, len(row))
		for i := range row {
			refs[i] = &row[i]
		}
		if err = rows.Scan(refs...); err != nil {
			return ds, unavailable(path, "row %d is not numeric: %w", ds.Len()+1, err)
		}
		ds.X = append(ds.X, row[:len(row)-1])
		ds.Y = append(ds.Y, row[len(row)-1])
	}
	if err = rows.Err(); err != nil {
		return ds, &Unavailable{path, err}
	}
	if ds.Len() == 0 {
		return ds, unavailable(path, "table `%v` has no rows", table)
	}
	return ds, nil
}

func loadParquet(path string) (ds model.Dataset, err error) {
	fd, err := os.Open(path)
	if err != nil {
		return ds, &Unavailable{path, err}
	}
	defer fd.Close()
	st, err := fd.Stat()
	if err != nil {
		return ds, &Unavailable{path, err}
	}
	f, err := parquet.OpenFile(fd, st.Size())
	if err != nil {
		return ds, unavailable(path, "malformed parquet: %w", err)
	}
	columns := f.Schema().Columns()
	header := make([]string, len(columns))
	for i, c := range columns {
		if len(c) != 1 {
			return ds, unavailable(path, "nested column `%v` is not supported", strings.Join(c, "."))
		}
		header[i] = c[0]
	}
	if ds, err = split(path, header); err != nil {
		return
	}
	rd := parquet.NewReader(f)
	defer rd.Close()
	rows := make([]parquet.Row, 128)
	for {
		n, rerr := rd.ReadRows(rows)
		for _, r := range rows[:n] {
			row := make([]float64, len(header))
			for _, v := range r {
				c := v.Column()
				if c < 0 || c >= len(row) {
					return ds, unavailable(path, "row %d has unexpected column %d", ds.Len()+1, c)
				}
				if row[c], err = parquetNumber(v); err != nil {
					return ds, unavailable(path, "row %d column `%v`: %w", ds.Len()+1, header[c], err)
				}
			}
			ds.X = append(ds.X, row[:len(row)-1])
			ds.Y = append(ds.Y, row[len(row)-1])
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return ds, unavailable(path, "malformed parquet: %w", rerr)
		}
	}
	if ds.Len() == 0 {
		return ds, unavailable(path, "dataset has no rows")
	}
	return ds, nil
}

func parquetNumber(v parquet.Value) (float64, error) {
	if v.IsNull() {
		return 0, xerrors.New("value is null")
	}
	switch v.Kind() {
	case parquet.Boolean:
		if v.Boolean() {
			return 1, nil
		}
		return 0, nil
	case parquet.Int32:
		return float64(v.Int32()), nil
	case parquet.Int64:
		return float64(v.Int64()), nil
	case parquet.Float:
		return float64(v.Float()), nil
	case parquet.Double:
		return v.Double(), nil
	case parquet.ByteArray:
		return strconv.ParseFloat(strings.TrimSpace(string(v.ByteArray())), 64)
	}
	return 0, xerrors.Errorf("unsupported parquet type %v", v.Kind())
}
