// Package eventstream reads "event: <name>\ndata: <json>\n\n" framed HTTP
// responses, the format used by the bulk load and agent pipeline endpoints.
package eventstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

const readChunk = 4096

var ErrNoBody = errors.New("eventstream: response has no body")

// StatusError is returned by Open for a non-2xx answer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("eventstream: http %d: %s", e.Code, e.Body)
}

// Event is one framed (event, data) pair. Data is valid JSON.
type Event struct {
	Name string
	Data []byte
}

func (e Event) Decode(v any) error {
	return sonic.Unmarshal(e.Data, v)
}

// Reader yields events lazily from a stream. It is not restartable.
//
//	for r.Next() { ev := r.Event() ... }
//	if r.Cancelled() { ... } else if err := r.Err(); err != nil { ... }
type Reader struct {
	ctx  context.Context
	body io.ReadCloser

	buf     []byte
	pending string
	queue   []Event
	cur     Event

	eof       bool
	err       error
	cancelled bool
}

// NewReader wraps body. ctx cancellation ends the sequence cleanly.
func NewReader(ctx context.Context, body io.ReadCloser) *Reader {
	return &Reader{ctx: ctx, body: body}
}

// Open performs req with client and returns a reader over the response.
// A cancelled ctx also interrupts a read blocked on the body.
func Open(ctx context.Context, client *http.Client, req *http.Request) (*Reader, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, context.Canceled
		}
		return nil, errors.Wrap(err, "eventstream: request")
	}
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(b))}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, ErrNoBody
	}
	return NewReader(ctx, resp.Body), nil
}

// Next advances to the next event. It returns false at end of stream,
// on cancellation and on I/O failure.
func (r *Reader) Next() bool {
	for {
		if r.cancelled || r.err != nil {
			return false
		}
		if r.ctx.Err() != nil {
			r.cancel()
			return false
		}
		if len(r.queue) > 0 {
			r.cur = r.queue[0]
			r.queue = r.queue[1:]
			return true
		}
		if r.eof {
			return false
		}
		r.fill()
	}
}

func (r *Reader) Event() Event { return r.cur }

// Err is the I/O failure that ended the stream. A cancellation is not an error.
func (r *Reader) Err() error { return r.err }

func (r *Reader) Cancelled() bool { return r.cancelled }

// Close releases the body. Safe to call more than once.
func (r *Reader) Close() error {
	r.closeBody()
	return nil
}

func (r *Reader) fill() {
	chunk := make([]byte, readChunk)
	n, err := r.body.Read(chunk)
	if n > 0 {
		r.buf = append(r.buf, chunk[:n]...)
		r.split()
	}
	switch {
	case err == nil:
	case r.ctx.Err() != nil:
		r.cancel()
	case err == io.EOF:
		// an unterminated last line is not a frame
		r.eof = true
		r.closeBody()
	default:
		r.err = errors.Wrap(err, "eventstream: read")
		r.closeBody()
	}
}

func (r *Reader) cancel() {
	r.cancelled = true
	r.queue = nil
	r.closeBody()
}

func (r *Reader) closeBody() {
	if r.body != nil {
		_ = r.body.Close()
		r.body = nil
	}
}

// split consumes every complete line of buf and keeps the tail.
func (r *Reader) split() {
	for {
		i := bytes.IndexByte(r.buf, '\n')
		if i < 0 {
			return
		}
		line := bytes.TrimSuffix(r.buf[:i], []byte{'\r'})
		r.line(line)
		r.buf = r.buf[i+1:]
	}
}

func (r *Reader) line(line []byte) {
	if name, ok := field(line, "event"); ok {
		r.pending = string(name)
		return
	}
	data, ok := field(line, "data")
	if !ok || r.pending == "" {
		return
	}
	name := r.pending
	r.pending = ""
	if !sonic.Valid(data) {
		// a broken frame is skipped, the stream goes on
		return
	}
	r.queue = append(r.queue, Event{Name: name, Data: append([]byte(nil), data...)})
}

func field(line []byte, key string) ([]byte, bool) {
	if !bytes.HasPrefix(line, []byte(key)) || len(line) <= len(key) || line[len(key)] != ':' {
		return nil, false
	}
	v := line[len(key)+1:]
	return bytes.TrimPrefix(v, []byte{' '}), true
}
