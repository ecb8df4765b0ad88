package serialport

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakePort replays scripted read results and records writes.
type fakePort struct {
	mu      sync.Mutex
	reads   []fakeRead
	written []byte
	closed  bool
}

type fakeRead struct {
	data []byte
	err  error
}

func (f *fakePort) Read(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.reads) == 0 {
		// behaves like an idle port hitting its read timeout
		return 0, io.EOF
	}

	r := f.reads[0]
	f.reads = f.reads[1:]

	return copy(b, r.data), r.err
}

func (f *fakePort) Write(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.written = append(f.written, b...)

	return len(b), nil
}

func (f *fakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true

	return nil
}

func TestPort_ReadSkipsTimeouts(t *testing.T) {
	require := require.New(t)

	fake := &fakePort{reads: []fakeRead{
		{err: io.EOF},
		{},
		{data: []byte{0x05, 0x00}},
	}}
	p := newPort("/dev/null", fake)

	buf := make([]byte, 8)
	n, err := p.Read(buf)
	require.NoError(err)
	require.Equal([]byte{0x05, 0x00}, buf[:n])
}

func TestPort_ReadError(t *testing.T) {
	boom := errors.New("device unplugged")
	p := newPort("/dev/null", &fakePort{reads: []fakeRead{{err: boom}}})

	_, err := p.Read(make([]byte, 1))
	require.ErrorIs(t, err, boom)
}

func TestPort_CloseInterruptsRead(t *testing.T) {
	require := require.New(t)

	fake := &fakePort{}
	p := newPort("/dev/null", fake)

	done := make(chan error, 1)
	go func() {
		_, err := p.Read(make([]byte, 1))
		done <- err
	}()

	time.Sleep(5 * time.Millisecond)
	require.NoError(p.Close())
	require.NoError(p.Close())

	select {
	case err := <-done:
		require.ErrorIs(err, ErrClosed)
	case <-time.After(time.Second):
		require.Fail("Read did not return after Close")
	}

	_, err := p.Write([]byte{1})
	require.ErrorIs(err, ErrClosed)
	require.True(fake.closed)
}

func TestPort_Write(t *testing.T) {
	fake := &fakePort{}
	p := newPort("/dev/ttyUSB0", fake)

	n, err := p.Write([]byte{0x12, 0x00})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []byte{0x12, 0x00}, fake.written)
	require.Equal(t, "/dev/ttyUSB0", p.Name())
}

func TestOpen_InvalidConfig(t *testing.T) {
	_, err := Open(nil)
	require.Error(t, err)

	for _, cfg := range []*Config{
		{Baud: DefaultBaud, ReadTimeout: DefaultReadTimeout},
		{Device: "/dev/ttyUSB0", ReadTimeout: DefaultReadTimeout},
		{Device: "/dev/ttyUSB0", Baud: DefaultBaud},
	} {
		_, err := Open(cfg)
		require.Error(t, err)
	}

	_, err = Open(DefaultConfig("/dev/does-not-exist-apt"))
	require.Error(t, err)
}
