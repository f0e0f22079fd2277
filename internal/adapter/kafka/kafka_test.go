package kafka

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hive-weight-etl/internal/domain"
)

func sampleRow() domain.SegmentRow {
	return domain.SegmentRow{
		Year: 2022,
		WeightSegment: domain.WeightSegment{
			Segment: 3, Start: 150, End: 180, Slope: -25.5,
			WeightStart: 41000, WeightEnd: 40235, WeightDiff: -765, Scale: "B7",
		},
		Weather: domain.WeatherSummary{Scale: "B7", Segment: 3, TmaxHot: 4, Rain: 18.2},
	}
}

func TestMessageKey(t *testing.T) {
	assert.Equal(t, "2022-B7-3", MessageKey(sampleRow()))
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2026, 4, 26, 15, 10, 0, 0, time.UTC)

	msg, err := serializeToMessage(sampleRow(), now)
	require.NoError(t, err)

	assert.Equal(t, []byte("2022-B7-3"), msg.Key)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "scale", msg.Headers[0].Key)
	assert.Equal(t, []byte("B7"), msg.Headers[0].Value)
	assert.Equal(t, "processed_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)

	var decoded domain.SegmentRow
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, sampleRow(), decoded)
	assert.Contains(t, string(msg.Value), `"weight_diff":-765`)
}

func TestSerializeToMessage_NonFiniteValue(t *testing.T) {
	row := sampleRow()
	row.Slope = math.NaN()

	_, err := serializeToMessage(row, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2022-B7-3")
}
