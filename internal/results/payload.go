package results

import (
	"bytes"
	"encoding/json"

	"github.com/klauspost/compress/zstd"

	"github.com/withObsrvr/braket-orchestrator/internal/taskerrors"
)

// Source discriminates the two raw payload shapes.
type Source string

const (
	// SourceSamples payloads carry one bit vector per shot.
	SourceSamples Source = "samples"
	// SourceProbabilities payloads carry only an outcome to probability table.
	SourceProbabilities Source = "probabilities"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Payload is the subset of a task result document that normalization reads.
type Payload struct {
	Measurements             [][]int            `json:"measurements,omitempty"`
	MeasurementProbabilities map[string]float64 `json:"measurementProbabilities,omitempty"`
	MeasuredQubits           []int              `json:"measuredQubits,omitempty"`
	TaskMetadata             TaskMetadata       `json:"taskMetadata"`
}

// TaskMetadata is the task section of a result document.
type TaskMetadata struct {
	ID       string `json:"id"`
	DeviceID string `json:"deviceId"`
	Shots    int    `json:"shots"`
}

// DetectFormat decides which conversion applies. Per-shot samples take precedence; an empty
// sample list counts as absent.
func DetectFormat(p *Payload) (Source, error) {
	switch {
	case p == nil:
		return "", &taskerrors.ErrFormat{Message: "empty payload"}
	case len(p.Measurements) > 0:
		return SourceSamples, nil
	case len(p.MeasurementProbabilities) > 0:
		return SourceProbabilities, nil
	default:
		return "", &taskerrors.ErrFormat{Message: "unknown format: neither measurements nor measurementProbabilities present"}
	}
}

// ParsePayload decodes a result document. zstd-compressed documents are detected by their frame
// magic and decompressed first.
func (n *Normalizer) ParsePayload(data []byte) (*Payload, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		raw, err := n.dec.DecodeAll(data, nil)
		if err != nil {
			return nil, &taskerrors.ErrFormat{Message: "zstd decompress", Err: err}
		}
		data = raw
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &taskerrors.ErrFormat{Message: "decode result document", Err: err}
	}
	return &p, nil
}

func newDecoder() (*zstd.Decoder, error) {
	return zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
}
