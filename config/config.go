/*
Package config loads the run configuration from YAML and the process environment from .env
*/
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"go-ml.dev/pkg/zorros/zlog"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

/*
Error is a configuration error, it's fatal and surfaced before any stage runs
*/
type Error struct {
	Source string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("configuration error in %v: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func errorf(source, format string, a ...interface{}) error {
	return &Error{source, xerrors.Errorf(format, a...)}
}

type Data struct {
	File  string `yaml:"file"`
	Table string `yaml:"table"`
	Root  string `yaml:"root"`
}

/*
Pipeline is a per model section of configuration
*/
type Pipeline struct {
	NProcess  int     `yaml:"n_process"`
	Verbose   int     `yaml:"verbose"`
	SaveModel bool    `yaml:"save_model"`
	Trials    int     `yaml:"n_trials"`
	TestSize  float64 `yaml:"test_size"`
	Seed      int64   `yaml:"seed"`
}

type Config struct {
	Model          string   `yaml:"model"`
	Monitoring     bool     `yaml:"monitoring"`
	MonitoringAddr string   `yaml:"monitoring_addr"`
	Data           Data     `yaml:"data"`
	OutputDir      string   `yaml:"output_dir"`
	StudyDB        string   `yaml:"study_db"`
	Model1         Pipeline `yaml:"model1"`
	Model2         Pipeline `yaml:"model2"`
}

const (
	DefaultTrials    = 3
	DefaultTestSize  = 0.1
	DefaultSeed      = 123
	DefaultDataRoot  = "data"
	DefaultTable     = "dataset"
	DefaultOutputDir = "data"
)

func DefaultPipeline() Pipeline {
	return Pipeline{NProcess: -1, Verbose: -1, Trials: DefaultTrials, TestSize: DefaultTestSize, Seed: DefaultSeed}
}

/*
Default returns configuration used for keys absent in the file
*/
func Default() Config {
	return Config{
		Data:      Data{Root: DefaultDataRoot, Table: DefaultTable},
		OutputDir: DefaultOutputDir,
		Model1:    DefaultPipeline(),
		Model2:    DefaultPipeline(),
	}
}

type codepage struct {
	name string
	enc  encoding.Encoding
}

// CP932 is served by the same decoder as Shift-JIS
var codepages = []codepage{
	{"Shift-JIS", japanese.ShiftJIS},
	{"UTF-8", nil},
	{"CP932", japanese.ShiftJIS},
}

func decode(cp codepage, bs []byte) (string, bool) {
	if cp.enc == nil {
		return string(bs), utf8.Valid(bs)
	}
	s, err := cp.enc.NewDecoder().Bytes(bs)
	if err != nil {
		return "", false
	}
	// decoder replaces invalid sequences instead of failing
	if bytes.ContainsRune(s, utf8.RuneError) && !bytes.ContainsRune(bs, utf8.RuneError) {
		return "", false
	}
	return string(s), true
}

/*
Load reads YAML configuration trying encodings one by one
*/
func Load(path string) (*Config, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{path, xerrors.Errorf("YAML file not found: %w", err)}
	}
	c, err := Parse(bs)
	if err != nil {
		return nil, &Error{path, err}
	}
	return c, nil
}

/*
Parse decodes configuration text with the first encoding which works
*/
func Parse(bs []byte) (*Config, error) {
	var last error = xerrors.New("no encoding matched")
	for _, cp := range codepages {
		text, ok := decode(cp, bs)
		if !ok {
			continue
		}
		c := Default()
		if err := yaml.Unmarshal([]byte(text), &c); err != nil {
			last = err
			continue
		}
		zlog.Infof("The following encoding worked: %v", cp.name)
		if err := c.Validate(); err != nil {
			return nil, err
		}
		return &c, nil
	}
	return nil, xerrors.Errorf("loading yaml failed, try different encoding: %w", last)
}

func (c *Config) Validate() error {
	if c.Model == "" {
		return xerrors.New("`model` is required")
	}
	if c.Data.File == "" {
		return xerrors.New("`data.file` is required")
	}
	for name, p := range map[string]Pipeline{"model1": c.Model1, "model2": c.Model2} {
		if p.Trials <= 0 {
			return xerrors.Errorf("`%v.n_trials` must be positive, got %v", name, p.Trials)
		}
		if !(p.TestSize > 0 && p.TestSize < 1) {
			return xerrors.Errorf("`%v.test_size` must be in (0,1), got %v", name, p.TestSize)
		}
	}
	return nil
}

/*
LoadEnv sets variables from .env file not already present in the environment,
missing file is not an error
*/
func LoadEnv(path string) error {
	bs, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			zlog.Infof("Env file %v not found, using process environment", path)
			return nil
		}
		return &Error{path, err}
	}
	var last error = xerrors.New("no encoding matched")
	for _, cp := range codepages {
		text, ok := decode(cp, bs)
		if !ok {
			continue
		}
		env, err := godotenv.Unmarshal(text)
		if err != nil {
			last = err
			continue
		}
		zlog.Infof("The following encoding worked: %v", cp.name)
		for k, v := range env {
			if _, ok := os.LookupEnv(k); !ok {
				if err := os.Setenv(k, v); err != nil {
					return &Error{path, err}
				}
			}
		}
		return nil
	}
	return &Error{path, xerrors.Errorf("loading .env failed, try different encoding: %w", last)}
}

const LogIntervalEnv = "LOG_INTERVAL"

/*
LogInterval reads monitoring interval in whole seconds from LOG_INTERVAL
*/
func LogInterval() (time.Duration, error) {
	s, ok := os.LookupEnv(LogIntervalEnv)
	if !ok || s == "" {
		return 0, errorf(LogIntervalEnv, "variable is not set")
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errorf(LogIntervalEnv, "must be a positive integer number of seconds, got %q", s)
	}
	return time.Duration(n) * time.Second, nil
}
