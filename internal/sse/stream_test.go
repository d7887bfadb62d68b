package sse_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"reelsmith/internal/sse"
)

func TestStreamWritesFramedJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	stream, err := sse.NewStream(rec, 0)
	require.NoError(t, err)

	stream.Send(sse.Progress("researching", 50, "dimension 1/2 done"))
	stream.Send(sse.Complete(map[string]string{"videoUrl": "http://media/v.mp4"}))
	stream.Close()

	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	frames := strings.Split(strings.TrimSpace(body), "\n\n")
	require.Len(t, frames, 2)

	for _, frame := range frames {
		require.True(t, strings.HasPrefix(frame, "data: "), "frame %q", frame)
		var event sse.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &event))
	}

	var first sse.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frames[0], "data: ")), &first))
	require.Equal(t, sse.EventProgress, first.Type)
	require.Equal(t, 50, first.Percent)
	require.Equal(t, "researching", first.Stage)
}

func TestStreamSendAfterCloseIsNoop(t *testing.T) {
	rec := httptest.NewRecorder()
	stream, err := sse.NewStream(rec, 0)
	require.NoError(t, err)
	stream.Close()

	stream.Send(sse.Error("lost"))
	require.Empty(t, rec.Body.String())
}

func TestItemProgressPercent(t *testing.T) {
	event := sse.ItemProgress("generating_tts", 3, 4, "segment 3 done")
	require.Equal(t, 75, event.Percent)
	require.Equal(t, 3, event.Index)
	require.Equal(t, 4, event.Total)
}

func TestRecorderCollectsInOrder(t *testing.T) {
	var rec sse.Recorder
	rec.Send(sse.Progress("scripting", 10, ""))
	rec.Send(sse.Chunk("scripting", map[string]int{"order": 0}))
	rec.Send(sse.Complete(nil))

	events := rec.Events()
	require.Len(t, events, 3)
	require.Equal(t, sse.EventProgress, events[0].Type)

	last, ok := rec.Last()
	require.True(t, ok)
	require.Equal(t, sse.EventComplete, last.Type)
	require.Len(t, rec.OfType(sse.EventChunk), 1)
}
