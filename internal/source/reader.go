package source

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/te9no/pointerd/internal/event"
	"github.com/te9no/pointerd/internal/logging"
)

// rawEventSize is the size of struct input_event on 64-bit kernels:
// a 16-byte timeval followed by type, code and value.
const rawEventSize = 24

// eviocgrab is EVIOCGRAB, _IOW('E', 0x90, int).
const eviocgrab = 0x40044590

// Handler consumes decoded samples from one device, on the reader's
// goroutine.
type Handler func(event.Sample)

// ReaderOptions configures a device reader.
type ReaderOptions struct {
	// Grab takes exclusive hold of the device so the kernel stops
	// delivering its events elsewhere. Used for pointer devices whose
	// motion is re-emitted through the virtual device.
	Grab bool

	Log *logging.Logger
}

// Reader owns one open device node and decodes its event stream.
type Reader struct {
	path    string
	file    *os.File
	grabbed bool
	handler Handler
	log     *logging.Logger
	done    chan struct{}
}

// NewReader opens the device node and starts the read goroutine.
func NewReader(path string, handler Handler, opts ReaderOptions) (*Reader, error) {
	log := opts.Log
	if log == nil {
		log = logging.Default()
	}

	file, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	r := &Reader{
		path:    path,
		file:    file,
		handler: handler,
		log:     log.WithComponent("source"),
		done:    make(chan struct{}),
	}

	if opts.Grab {
		if err := r.setGrab(true); err != nil {
			r.log.Warn("grab failed, input may double", "device", path, "error", err)
		} else {
			r.grabbed = true
		}
	}

	go r.run()
	return r, nil
}

// Path returns the device node path.
func (r *Reader) Path() string { return r.path }

// Done is closed when the read loop exits.
func (r *Reader) Done() <-chan struct{} { return r.done }

// Close releases the grab and closes the device, stopping the read
// loop.
func (r *Reader) Close() error {
	if r.grabbed {
		r.setGrab(false)
		r.grabbed = false
	}
	return r.file.Close()
}

func (r *Reader) setGrab(on bool) error {
	conn, err := r.file.SyscallConn()
	if err != nil {
		return err
	}
	var ioctlErr error
	arg := 0
	if on {
		arg = 1
	}
	err = conn.Control(func(fd uintptr) {
		ioctlErr = unix.IoctlSetInt(int(fd), eviocgrab, arg)
	})
	if err != nil {
		return err
	}
	return ioctlErr
}

func (r *Reader) run() {
	defer close(r.done)

	buf := make([]byte, rawEventSize*64)
	for {
		n, err := r.file.Read(buf)
		if err != nil {
			if !errors.Is(err, os.ErrClosed) && !errors.Is(err, io.EOF) {
				r.log.Warn("device read failed", "device", r.path, "error", err)
			}
			return
		}
		decodeSamples(buf[:n], time.Now(), r.handler)
	}
}

// decodeSamples splits a read buffer into input_event records and hands
// each to the handler. Short trailing bytes are dropped; the kernel
// writes whole records.
func decodeSamples(buf []byte, now time.Time, handler Handler) {
	for off := 0; off+rawEventSize <= len(buf); off += rawEventSize {
		handler(event.Sample{
			Type:  event.Type(binary.LittleEndian.Uint16(buf[off+16 : off+18])),
			Code:  binary.LittleEndian.Uint16(buf[off+18 : off+20]),
			Value: int32(binary.LittleEndian.Uint32(buf[off+20 : off+24])),
			Time:  now,
		})
	}
}
