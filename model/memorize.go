package model

import (
	"encoding"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/ulikunitz/xz"
	"go-ml.dev/pkg/iokit"
	"go-ml.dev/pkg/zorros/zorros"
)

/*
Decoder restores a model from its native serialization
*/
type Decoder func([]byte) (PredictionModel, error)

var (
	decodersMu sync.RWMutex
	decoders   = map[string]Decoder{}
)

/*
Register makes algorithm restorable by Restore, it's called from algorithm package init
*/
func Register(algorithm string, d Decoder) {
	decodersMu.Lock()
	defer decodersMu.Unlock()
	decoders[algorithm] = d
}

type artifact struct {
	Algorithm string          `cbor:"algorithm"`
	Features  []string        `cbor:"features"`
	Scaler    *StandardScaler `cbor:"scaler,omitempty"`
	Model     []byte          `cbor:"model"`
}

/*
Memorize writes xz compressed pipeline with the model native blob to output
*/
func Memorize(output iokit.Output, p *Pipeline) (err error) {
	m, ok := p.Model.(encoding.BinaryMarshaler)
	if !ok {
		return zorros.Errorf("model `%v` can't be memorized", p.Model.Algorithm())
	}
	blob, err := m.MarshalBinary()
	if err != nil {
		return zorros.Wrapf(err, "failed to serialize model: %v", err.Error())
	}
	bs, err := cbor.Marshal(artifact{p.Model.Algorithm(), p.Model.Features(), p.Scaler, blob})
	if err != nil {
		return zorros.Trace(err)
	}
	wh, err := iokit.Lzma2(output).Create()
	if err != nil {
		return zorros.Trace(err)
	}
	defer wh.End()
	if _, err = wh.Write(bs); err != nil {
		return zorros.Trace(err)
	}
	if err = wh.Commit(); err != nil {
		return zorros.Trace(err)
	}
	return nil
}

/*
Save memorizes pipeline into file
*/
func Save(path string, p *Pipeline) error {
	return Memorize(iokit.File(path), p)
}

/*
Restore reads pipeline written by Memorize
*/
func Restore(input iokit.Input) (*Pipeline, error) {
	rd, err := input.Open()
	if err != nil {
		return nil, zorros.Trace(err)
	}
	defer rd.Close()
	xr, err := xz.NewReader(rd)
	if err != nil {
		return nil, zorros.Wrapf(err, "model artifact is not xz stream: %v", err.Error())
	}
	bs, err := io.ReadAll(xr)
	if err != nil {
		return nil, zorros.Trace(err)
	}
	a := artifact{}
	if err = cbor.Unmarshal(bs, &a); err != nil {
		return nil, zorros.Wrapf(err, "malformed model artifact: %v", err.Error())
	}
	decodersMu.RLock()
	decode, ok := decoders[a.Algorithm]
	decodersMu.RUnlock()
	if !ok {
		return nil, zorros.Errorf("unknown model algorithm `%v`", a.Algorithm)
	}
	m, err := decode(a.Model)
	if err != nil {
		return nil, err
	}
	return &Pipeline{Scaler: a.Scaler, Model: m}, nil
}

/*
Load restores pipeline from file
*/
func Load(path string) (*Pipeline, error) {
	return Restore(iokit.File(path))
}
