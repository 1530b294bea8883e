package srt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []Segment
	}{
		{
			name:    "single block",
			content: "1\n00:00:01,500 --> 00:00:04,200\nHello world\n\n",
			want:    []Segment{{Start: 1.5, End: 4.2, Text: "Hello world"}},
		},
		{
			name:    "multi line text and crlf",
			content: "1\r\n00:01:00,000 --> 00:01:02,250\r\nfirst line\r\nsecond line\r\n\r\n2\r\n01:00:00,000 --> 01:00:01,000\r\nlater\r\n",
			want: []Segment{
				{Start: 60, End: 62.25, Text: "first line second line"},
				{Start: 3600, End: 3601, Text: "later"},
			},
		},
		{
			name:    "malformed blocks skipped",
			content: "1\n00:00:01,000 --> 00:00:02,000\n\n2\nnot a timestamp\ntext\n\n3\n00:00:03,000 --> 00:00:04,000\nkept\n",
			want:    []Segment{{Start: 3, End: 4, Text: "kept"}},
		},
		{
			name:    "empty",
			content: "",
			want:    []Segment{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.content)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i].Start, got[i].Start, 1e-9)
				assert.InDelta(t, tt.want[i].End, got[i].End, 1e-9)
				assert.Equal(t, tt.want[i].Text, got[i].Text)
			}
		})
	}
}

func TestFormatParsesBack(t *testing.T) {
	segs := []Segment{{Start: 0, End: 2.5, Text: "one"}, {Start: 3725.125, End: 3726, Text: "two"}}
	out := Format(segs)

	assert.Equal(t, "1\n00:00:00,000 --> 00:00:02,500\none\n\n2\n01:02:05,125 --> 01:02:06,000\ntwo\n\n", out)
	assert.Equal(t, segs, Parse(out))
}

func TestClock(t *testing.T) {
	assert.Equal(t, "0:05", Clock(5.9))
	assert.Equal(t, "12:03", Clock(723))
	assert.Equal(t, "1:00:00", Clock(3600))
	assert.Equal(t, "0:00", Clock(-3))
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "1:02:03", want: 3723},
		{in: "4:05", want: 245},
		{in: "0:07.5", want: 7.5},
		{in: "12", wantErr: true},
		{in: "a:b", wantErr: true},
		{in: "1:2:3:4", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
