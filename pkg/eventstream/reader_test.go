package eventstream_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"market_terminal/pkg/eventstream"
)

const sample = "event: start\ndata: {\"total\":3,\"years\":2}\n\n" +
	"event: progress\r\ndata: {\"loaded\":1,\"percent\":33.3,\"symbol\":\"FPT\",\"status\":\"ok\"}\r\n\r\n" +
	"event: tick\ndata: {broken\n\n" +
	"data: {\"orphan\":true}\n\n" +
	": comment line\n" +
	"event: tick\ndata: {\"symbol\":\"VNM\",\"price\":70.1}\n\n" +
	"event: complete\ndata: {\"loaded\":3,\"total\":3,\"message\":\"done\"}\n\n" +
	"event: dangling\ndata: {\"never\":1}"

// chunkedBody hands out at most size bytes per Read.
type chunkedBody struct {
	data []byte
	size int
}

func (c *chunkedBody) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	n := c.size
	if n > len(c.data) {
		n = len(c.data)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, c.data[:n])
	c.data = c.data[n:]
	return n, nil
}

func (c *chunkedBody) Close() error { return nil }

func collect(t *testing.T, r *eventstream.Reader) []string {
	t.Helper()
	var out []string
	for r.Next() {
		ev := r.Event()
		out = append(out, ev.Name+" "+string(ev.Data))
	}
	if err := r.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return out
}

func TestReader_SingleChunk(t *testing.T) {
	r := eventstream.NewReader(context.Background(), io.NopCloser(strings.NewReader(sample)))
	got := collect(t, r)

	want := []string{
		`start {"total":3,"years":2}`,
		`progress {"loaded":1,"percent":33.3,"symbol":"FPT","status":"ok"}`,
		`tick {"symbol":"VNM","price":70.1}`,
		`complete {"loaded":3,"total":3,"message":"done"}`,
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("got  %q\nwant %q", got, want)
	}
	if r.Cancelled() {
		t.Error("plain EOF reported as cancelled")
	}
}

func TestReader_FragmentationDoesNotChangeEvents(t *testing.T) {
	whole := collect(t, eventstream.NewReader(context.Background(), io.NopCloser(strings.NewReader(sample))))

	for size := 1; size <= 17; size++ {
		body := &chunkedBody{data: []byte(sample), size: size}
		got := collect(t, eventstream.NewReader(context.Background(), body))
		if fmt.Sprint(got) != fmt.Sprint(whole) {
			t.Errorf("chunk size %d:\ngot  %q\nwant %q", size, got, whole)
		}
	}
}

func TestReader_BadDataClearsPendingEvent(t *testing.T) {
	in := "event: a\ndata: {bad\ndata: {\"x\":1}\nevent: b\ndata: [1,2]\n"
	got := collect(t, eventstream.NewReader(context.Background(), io.NopCloser(strings.NewReader(in))))
	if len(got) != 1 || got[0] != "b [1,2]" {
		t.Errorf("got %q", got)
	}
}

func TestReader_DecodeEvent(t *testing.T) {
	r := eventstream.NewReader(context.Background(), io.NopCloser(strings.NewReader(sample)))
	if !r.Next() {
		t.Fatal("no event")
	}
	var start struct {
		Total int `json:"total"`
		Years int `json:"years"`
	}
	if err := r.Event().Decode(&start); err != nil {
		t.Fatal(err)
	}
	if start.Total != 3 || start.Years != 2 {
		t.Errorf("start = %+v", start)
	}
}

func TestReader_CancelIsCleanAndIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	body := &chunkedBody{data: []byte(sample), size: 1 << 20}
	r := eventstream.NewReader(ctx, body)

	if !r.Next() {
		t.Fatal("expected first event")
	}
	cancel()
	cancel()

	if r.Next() {
		t.Errorf("event delivered after cancel: %+v", r.Event())
	}
	if !r.Cancelled() {
		t.Error("expected cancelled outcome")
	}
	if r.Err() != nil {
		t.Errorf("cancel must not be an error, got %v", r.Err())
	}
	if r.Next() {
		t.Error("reader restarted")
	}
	_ = r.Close()
	_ = r.Close()
}

type failingBody struct{ sent bool }

func (f *failingBody) Read(p []byte) (int, error) {
	if !f.sent {
		f.sent = true
		return copy(p, "event: a\ndata: 1\n"), nil
	}
	return 0, errors.New("connection reset")
}

func (f *failingBody) Close() error { return nil }

func TestReader_IOErrorIsReported(t *testing.T) {
	r := eventstream.NewReader(context.Background(), &failingBody{})
	n := 0
	for r.Next() {
		n++
	}
	if n != 1 {
		t.Errorf("events = %d, want 1", n)
	}
	if r.Err() == nil || r.Cancelled() {
		t.Errorf("err = %v cancelled = %v", r.Err(), r.Cancelled())
	}
}

func TestOpen_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "preset not found", http.StatusNotFound)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := eventstream.Open(context.Background(), srv.Client(), req)

	var se *eventstream.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("err = %v, want StatusError 404", err)
	}
	if !strings.Contains(se.Body, "preset not found") {
		t.Errorf("body = %q", se.Body)
	}
}

func TestOpen_CancelDuringBlockedRead(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: start\ndata: {\"total\":1}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	r, err := eventstream.Open(ctx, srv.Client(), req)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if !r.Next() || r.Event().Name != "start" {
		t.Fatal("expected start event")
	}
	time.AfterFunc(50*time.Millisecond, cancel)

	if r.Next() {
		t.Errorf("unexpected event %+v", r.Event())
	}
	if !r.Cancelled() || r.Err() != nil {
		t.Errorf("cancelled = %v err = %v", r.Cancelled(), r.Err())
	}
}
