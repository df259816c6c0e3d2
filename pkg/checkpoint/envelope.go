package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/randalmurphal/portfolio-agent/pkg/codec"
	"github.com/randalmurphal/portfolio-agent/pkg/observability"
)

// Envelope fields of a stored blob.
const (
	fieldPayload  = "payload"
	fieldMetadata = "metadata"
	fieldTS       = "ts"
)

func encodeCheckpoint(payload any, metadata map[string]any, now time.Time) ([]byte, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return codec.Encode(map[string]any{
		fieldPayload:  payload,
		fieldMetadata: metadata,
		fieldTS:       unixSeconds(now),
	})
}

func encodeWrite(payload any, now time.Time) ([]byte, error) {
	return codec.Encode(map[string]any{
		fieldPayload: payload,
		fieldTS:      unixSeconds(now),
	})
}

// decodeEnvelope returns the payload, metadata and timestamp of a blob.
func decodeEnvelope(data []byte) (any, map[string]any, time.Time, error) {
	v, err := codec.Decode(data)
	if err != nil {
		return nil, nil, time.Time{}, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, nil, time.Time{}, &codec.DecodeError{
			Tag: codec.Tag(data),
			Err: fmt.Errorf("unexpected envelope %T", v),
		}
	}

	metadata, _ := m[fieldMetadata].(map[string]any)
	if metadata == nil {
		metadata = map[string]any{}
	}

	var ts time.Time
	switch t := m[fieldTS].(type) {
	case float64:
		ts = fromUnixSeconds(t)
	case int64:
		ts = time.Unix(t, 0)
	}
	return m[fieldPayload], metadata, ts, nil
}

// decoder turns raw blobs into tuples, logging and counting the ones it
// cannot read. Unreadable blobs are reported as absent.
type decoder struct {
	logger  *slog.Logger
	metrics observability.MetricsRecorder
}

func (d decoder) tuple(ctx context.Context, threadID, checkpointID string, data []byte) (Tuple, bool) {
	payload, metadata, ts, err := decodeEnvelope(data)
	if err != nil {
		d.failed(ctx, threadID, checkpointID, data, err)
		return Tuple{}, false
	}
	return Tuple{
		CheckpointID: checkpointID,
		Payload:      payload,
		Metadata:     metadata,
		CreatedAt:    ts,
	}, true
}

func (d decoder) write(ctx context.Context, threadID, writeID string, data []byte) (Write, bool) {
	payload, _, ts, err := decodeEnvelope(data)
	if err != nil {
		d.failed(ctx, threadID, writeID, data, err)
		return Write{}, false
	}
	return Write{WriteID: writeID, Payload: payload, CreatedAt: ts}, true
}

func (d decoder) failed(ctx context.Context, threadID, id string, data []byte, err error) {
	observability.LogDecodeFailure(d.logger, threadID, id, err)
	d.metrics.RecordDecodeFailure(ctx, codec.Tag(data))
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

func fromUnixSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond))
}

// score orders index entries by insertion time.
func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}
