// Package sink emits transformed pointer events through a uinput
// virtual device, so the rest of the desktop sees one ordinary mouse
// regardless of how many physical devices feed the daemon.
package sink

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/te9no/pointerd/internal/event"
	"github.com/te9no/pointerd/internal/logging"
)

// uinput device node and ioctl numbers (linux/uinput.h).
const (
	uinputPath = "/dev/uinput"

	uiSetEvBit   = 0x40045564 // _IOW(UINPUT_IOCTL_BASE, 100, int)
	uiSetKeyBit  = 0x40045565 // _IOW(UINPUT_IOCTL_BASE, 101, int)
	uiSetRelBit  = 0x40045566 // _IOW(UINPUT_IOCTL_BASE, 102, int)
	uiDevCreate  = 0x5501     // _IO(UINPUT_IOCTL_BASE, 1)
	uiDevDestroy = 0x5502     // _IO(UINPUT_IOCTL_BASE, 2)
)

// userDevSize is the size of struct uinput_user_dev: name[80],
// struct input_id, ff_effects_max, and four 64-slot int32 abs tables.
const userDevSize = 80 + 8 + 4 + 4*64*4

// busVirtual is BUS_VIRTUAL from linux/input.h.
const busVirtual = 0x06

// rawEventSize is the size of struct input_event on 64-bit kernels.
const rawEventSize = 24

// relCodes are the relative axes the virtual device advertises: plain
// motion plus both scroll wheels, covering every code the transform
// pipeline can emit.
var relCodes = []uint16{
	event.RelX, event.RelY, event.RelWheel, event.RelHWheel,
}

// btnCodes are the mouse buttons the virtual device advertises.
// Grabbed pointer devices stop delivering clicks to the kernel, so
// their button events are forwarded through here unchanged.
var btnCodes = []uint16{
	0x110, 0x111, 0x112, 0x113, 0x114, 0x115, 0x116, 0x117, // BTN_LEFT..BTN_TASK
}

// Sink consumes transformed samples. Implemented by *Virtual; tests and
// dry runs substitute their own.
type Sink interface {
	Emit(s event.Sample) error
}

// Virtual is a uinput-backed relative pointer device.
type Virtual struct {
	file *os.File
	log  *logging.Logger
}

// Options configures the virtual device.
type Options struct {
	// Name is the device name the kernel reports. Empty uses a
	// default.
	Name string

	Log *logging.Logger
}

// NewVirtual creates the virtual pointer device. It fails when
// /dev/uinput is missing or not writable, which usually means the
// uinput module is not loaded or the daemon lacks permission.
func NewVirtual(opts Options) (*Virtual, error) {
	name := opts.Name
	if name == "" {
		name = "pointerd virtual pointer"
	}
	log := opts.Log
	if log == nil {
		log = logging.Default()
	}
	log = log.WithComponent("sink")

	file, err := os.OpenFile(uinputPath, os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", uinputPath, err)
	}

	v := &Virtual{file: file, log: log}
	if err := v.setup(name); err != nil {
		file.Close()
		return nil, err
	}

	log.Info("virtual pointer created", "name", name)
	return v, nil
}

func (v *Virtual) setup(name string) error {
	if err := v.ioctl(uiSetEvBit, int(event.Key)); err != nil {
		return fmt.Errorf("enable EV_KEY: %w", err)
	}
	if err := v.ioctl(uiSetEvBit, int(event.Rel)); err != nil {
		return fmt.Errorf("enable EV_REL: %w", err)
	}
	for _, code := range relCodes {
		if err := v.ioctl(uiSetRelBit, int(code)); err != nil {
			return fmt.Errorf("enable REL %#x: %w", code, err)
		}
	}
	for _, code := range btnCodes {
		if err := v.ioctl(uiSetKeyBit, int(code)); err != nil {
			return fmt.Errorf("enable BTN %#x: %w", code, err)
		}
	}

	if _, err := v.file.Write(userDevBytes(name)); err != nil {
		return fmt.Errorf("write device description: %w", err)
	}
	if err := v.ioctl(uiDevCreate, 0); err != nil {
		return fmt.Errorf("create device: %w", err)
	}
	return nil
}

func (v *Virtual) ioctl(req uint, arg int) error {
	conn, err := v.file.SyscallConn()
	if err != nil {
		return err
	}
	var ioctlErr error
	err = conn.Control(func(fd uintptr) {
		ioctlErr = unix.IoctlSetInt(int(fd), req, arg)
	})
	if err != nil {
		return err
	}
	return ioctlErr
}

// Emit writes one sample followed by a SYN_REPORT, so every emission is
// a complete input report. The kernel stamps event times itself.
func (v *Virtual) Emit(s event.Sample) error {
	buf := make([]byte, 0, 2*rawEventSize)
	buf = appendEvent(buf, uint16(s.Type), s.Code, s.Value)
	buf = appendEvent(buf, uint16(event.Syn), event.SynReport, 0)
	if _, err := v.file.Write(buf); err != nil {
		return fmt.Errorf("emit %s %#x: %w", s.Type, s.Code, err)
	}
	return nil
}

// Close destroys the virtual device.
func (v *Virtual) Close() error {
	if err := v.ioctl(uiDevDestroy, 0); err != nil {
		v.log.Warn("destroy virtual device failed", "error", err)
	}
	return v.file.Close()
}

// appendEvent appends one struct input_event with a zero timestamp.
func appendEvent(buf []byte, typ, code uint16, value int32) []byte {
	var rec [rawEventSize]byte
	binary.LittleEndian.PutUint16(rec[16:18], typ)
	binary.LittleEndian.PutUint16(rec[18:20], code)
	binary.LittleEndian.PutUint32(rec[20:24], uint32(value))
	return append(buf, rec[:]...)
}

// userDevBytes lays out struct uinput_user_dev for the legacy uinput
// setup path: the device name, a virtual-bus identity, and zeroed force
// feedback and absolute-axis tables.
func userDevBytes(name string) []byte {
	buf := make([]byte, userDevSize)
	copy(buf[:79], name) // NUL-terminated, truncate to fit
	binary.LittleEndian.PutUint16(buf[80:82], busVirtual)
	binary.LittleEndian.PutUint16(buf[82:84], 0x7970) // vendor "py"
	binary.LittleEndian.PutUint16(buf[84:86], 0x0001)
	binary.LittleEndian.PutUint16(buf[86:88], 0x0001)
	return buf
}
