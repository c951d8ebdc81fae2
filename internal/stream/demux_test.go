package stream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedReassemblesSplitLine(t *testing.T) {
	whole := NewDemultiplexer()
	want := whole.Feed([]byte("data: {\"type\":\"start\",\"project\":\"p\"}\n"))
	require.Len(t, want, 1)

	split := NewDemultiplexer()
	assert.Empty(t, split.Feed([]byte("data: {\"type\":\"sta")))
	assert.Positive(t, split.Pending())
	got := split.Feed([]byte("rt\",\"project\":\"p\"}\n"))

	assert.Equal(t, want, got)
	assert.Equal(t, Start{Project: "p"}, got[0])
	assert.Zero(t, split.Pending())
}

func TestFeedByteAtATime(t *testing.T) {
	raw := "data: {\"type\":\"content\",\"project\":\"/a\",\"text\":\"ab\"}\n" +
		"data: {\"type\":\"content\",\"project\":\"/a\",\"text\":\"cd\"}\n"
	d := NewDemultiplexer()
	var got []Event
	for i := 0; i < len(raw); i++ {
		got = append(got, d.Feed([]byte{raw[i]})...)
	}
	require.Len(t, got, 2)
	assert.Equal(t, Content{Project: "/a", Text: "ab"}, got[0])
	assert.Equal(t, Content{Project: "/a", Text: "cd"}, got[1])
}

func TestFeedDropsMalformedLinesAndContinues(t *testing.T) {
	d := NewDemultiplexer()
	got := d.Feed([]byte(strings.Join([]string{
		"data: {\"type\":\"start\",\"project\":\"/a\"}",
		"data: {not json",
		"",
		"   ",
		": keep-alive comment",
		"event: message",
		"data: {\"type\":\"error\",\"project\":\"/a\",\"error\":\"timeout\"}",
		"",
	}, "\n")))

	require.Len(t, got, 2)
	assert.Equal(t, Start{Project: "/a"}, got[0])
	assert.Equal(t, Failure{Project: "/a", Err: "timeout"}, got[1])
	assert.Equal(t, 1, d.Dropped())

	var fe *FramingError
	require.ErrorAs(t, d.LastError(), &fe)
	assert.Contains(t, fe.Line, "{not json")
}

func TestFeedToleratesCRLF(t *testing.T) {
	d := NewDemultiplexer()
	got := d.Feed([]byte("data: {\"type\":\"start\",\"project\":\"/a\"}\r\n"))
	require.Len(t, got, 1)
	assert.Equal(t, Start{Project: "/a"}, got[0])
}

func TestFlushEmitsTrailingFragment(t *testing.T) {
	d := NewDemultiplexer()
	assert.Empty(t, d.Feed([]byte("data: {\"type\":\"complete\",\"project\":\"/a\",\"needsHuman\":true}")))
	got := d.Flush()
	require.Len(t, got, 1)
	assert.Equal(t, Complete{Project: "/a", NeedsHuman: true}, got[0])
	assert.Nil(t, d.Flush())
}

func TestParseLineKinds(t *testing.T) {
	cases := []struct {
		line string
		want Event
	}{
		{`data: {"type":"pre-check","project":"/a","skipped":true}`, PreCheck{Project: "/a", Skipped: true}},
		{`data: {"type":"pre-check","project":"/a","skipped":false}`, PreCheck{Project: "/a"}},
		{`data: {"type":"complete","project":"/a","error":"boom"}`, Complete{Project: "/a", Err: "boom"}},
		{`data: {"type":"heartbeat","project":"/a"}`, Unknown{Type: "heartbeat", Project: "/a"}},
	}
	for _, tc := range cases {
		ev, ok, err := ParseLine(tc.line)
		require.NoError(t, err, tc.line)
		require.True(t, ok, tc.line)
		assert.Equal(t, tc.want, ev, tc.line)
	}

	_, ok, err := ParseLine("data:{\"type\":\"start\"}")
	assert.False(t, ok, "marker requires the trailing space")
	assert.NoError(t, err)
}

func TestEncodeRoundTripsThroughDemultiplexer(t *testing.T) {
	events := []Event{
		PreCheck{Project: "/a", Skipped: false},
		Start{Project: "/a"},
		Content{Project: "/a", Text: "line one\nline two"},
		Complete{Project: "/a", NeedsHuman: true},
		Failure{Project: "/b", Err: "exit status 1"},
	}
	var raw []byte
	for _, ev := range events {
		line, err := Encode(ev)
		require.NoError(t, err)
		raw = append(raw, line...)
	}
	d := NewDemultiplexer()
	assert.Equal(t, events, d.Feed(raw))
	assert.Zero(t, d.Dropped())
}

func TestEncodePreCheckAlwaysCarriesSkipped(t *testing.T) {
	line, err := Encode(PreCheck{Project: "/a"})
	require.NoError(t, err)
	assert.Contains(t, string(line), `"skipped":false`)
	assert.True(t, strings.HasPrefix(string(line), Prefix))
}
