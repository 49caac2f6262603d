// Package compress implements the compression layer of skiff.
// The stream format looks like this:
//
// [[SIZE][COMPRESSED CHUNK]]...
//
// SIZE is the compressed length of the chunk as uvarint. Every chunk
// holds up to maxChunkSize raw bytes; only the last one may hold less.
// The stream ends where the underlying reader ends. Which algorithm
// was used is a stream setting that skiff keeps in the metadata of
// each generation, so there is no header.
package compress

import (
	"errors"

	lz4 "github.com/bkaradzic/go-lz4"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

var (
	// ErrBadAlgo is returned on an unsupported/unknown algorithm.
	ErrBadAlgo = errors.New("invalid algorithm type")
)

// AlgorithmType is the identifier of a compression algorithm.
type AlgorithmType uint16

const (
	// AlgoNone passes the data through unchanged.
	AlgoNone = AlgorithmType(iota)

	// AlgoSnappy is fast and a good default.
	AlgoSnappy

	// AlgoLZ4 is slightly slower than snappy with better ratios.
	AlgoLZ4

	// AlgoZstd has the best ratios at still decent speed.
	AlgoZstd
)

// Algorithm is the common interface for all supported algorithms.
type Algorithm interface {
	Encode([]byte) ([]byte, error)
	Decode([]byte) ([]byte, error)
}

type noneAlgo struct{}
type snappyAlgo struct{}
type lz4Algo struct{}
type zstdAlgo struct{}

var (
	// AlgoMap is a map of available algorithms.
	AlgoMap = map[AlgorithmType]Algorithm{
		AlgoNone:   noneAlgo{},
		AlgoSnappy: snappyAlgo{},
		AlgoLZ4:    lz4Algo{},
		AlgoZstd:   zstdAlgo{},
	}

	algoToString = map[AlgorithmType]string{
		AlgoNone:   "none",
		AlgoSnappy: "snappy",
		AlgoLZ4:    "lz4",
		AlgoZstd:   "zstd",
	}

	stringToAlgo = map[string]AlgorithmType{
		"none":   AlgoNone,
		"snappy": AlgoSnappy,
		"lz4":    AlgoLZ4,
		"zstd":   AlgoZstd,
	}

	// Shared zstd coders; safe for concurrent use with
	// EncodeAll/DecodeAll.
	zstdEnc, _ = zstd.NewWriter(nil)
	zstdDec, _ = zstd.NewReader(nil)
)

// IsValid tells you if `at` is an algorithm this package knows about.
func (at AlgorithmType) IsValid() bool {
	_, ok := AlgoMap[at]
	return ok
}

func (at AlgorithmType) String() string {
	return AlgoToString(at)
}

// AlgoNone
func (a noneAlgo) Encode(src []byte) ([]byte, error) {
	return src, nil
}

func (a noneAlgo) Decode(src []byte) ([]byte, error) {
	return src, nil
}

// AlgoSnappy
func (a snappyAlgo) Encode(src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}

func (a snappyAlgo) Decode(src []byte) ([]byte, error) {
	return snappy.Decode(nil, src)
}

// AlgoLZ4
func (a lz4Algo) Encode(src []byte) ([]byte, error) {
	return lz4.Encode(nil, src)
}

func (a lz4Algo) Decode(src []byte) ([]byte, error) {
	return lz4.Decode(nil, src)
}

// AlgoZstd
func (a zstdAlgo) Encode(src []byte) ([]byte, error) {
	return zstdEnc.EncodeAll(src, nil), nil
}

func (a zstdAlgo) Decode(src []byte) ([]byte, error) {
	return zstdDec.DecodeAll(src, nil)
}

// AlgorithmFromType returns an interface to the given AlgorithmType.
func AlgorithmFromType(a AlgorithmType) (Algorithm, error) {
	if algo, ok := AlgoMap[a]; ok {
		return algo, nil
	}

	return nil, ErrBadAlgo
}

// AlgoToString converts an algorithm type to a string.
func AlgoToString(a AlgorithmType) string {
	algo, ok := algoToString[a]
	if !ok {
		return "unknown algorithm"
	}

	return algo
}

// AlgoFromString tries to convert a string to an AlgorithmType.
func AlgoFromString(s string) (AlgorithmType, error) {
	algoType, ok := stringToAlgo[s]
	if !ok {
		return 0, ErrBadAlgo
	}

	return algoType, nil
}

// Names returns the valid algorithm names, suitable for docs.
func Names() []string {
	return []string{"none", "snappy", "lz4", "zstd"}
}
