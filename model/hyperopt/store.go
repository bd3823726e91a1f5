package hyperopt

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go-ml.dev/pkg/zorros/zorros"
)

const schema = `
create table if not exists trials (
	study       text    not null,
	number      integer not null,
	params      text    not null,
	score       real    not null,
	state       text    not null,
	error       text    not null default '',
	duration_ms integer not null,
	created_at  text    not null,
	primary key (study, number)
)`

/*
Store keeps trials of studies in sqlite database
*/
type Store struct {
	db *sql.DB
}

func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, zorros.Trace(err)
	}
	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return nil, zorros.Wrapf(err, "failed to create trials table in %v: %v", path, err.Error())
	}
	return &Store{db}, nil
}

func (s *Store) Append(study string, t Trial) error {
	p, err := json.Marshal(t.Params)
	if err != nil {
		return zorros.Trace(err)
	}
	_, err = s.db.Exec(
		`insert into trials(study, number, params, score, state, error, duration_ms, created_at) values(?,?,?,?,?,?,?,?)`,
		study, t.Number, string(p), t.Score, t.State.String(), t.Err, t.Duration.Milliseconds(), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return zorros.Wrapf(err, "failed to store trial %d of study %v: %v", t.Number, study, err.Error())
	}
	return nil
}

/*
Trials returns stored trials of study ordered by number
*/
func (s *Store) Trials(study string) ([]Trial, error) {
	rows, err := s.db.Query(`select number, params, score, state, error, duration_ms from trials where study = ? order by number`, study)
	if err != nil {
		return nil, zorros.Trace(err)
	}
	defer rows.Close()
	r := []Trial{}
	for rows.Next() {
		var (
			t      Trial
			params string
			state  string
			ms     int64
		)
		if err = rows.Scan(&t.Number, &params, &t.Score, &state, &t.Err, &ms); err != nil {
			return nil, zorros.Trace(err)
		}
		if err = json.Unmarshal([]byte(params), &t.Params); err != nil {
			return nil, zorros.Trace(err)
		}
		if state == Failed.String() {
			t.State = Failed
		}
		t.Duration = time.Duration(ms) * time.Millisecond
		r = append(r, t)
	}
	if err = rows.Err(); err != nil {
		return nil, zorros.Trace(err)
	}
	return r, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
