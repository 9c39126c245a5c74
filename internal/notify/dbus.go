package notify

import (
	"encoding/json"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/te9no/pointerd/internal/channel"
	"github.com/te9no/pointerd/internal/logging"
)

// D-Bus identity. Signals are emitted on the session bus so desktop
// tooling can follow configuration without holding the daemon socket.
const (
	busName      = "dev.te9no.pointerd"
	busInterface = "dev.te9no.pointerd1"

	objectPath = dbus.ObjectPath("/dev/te9no/pointerd")
)

// DBus emits pointerd signals on the session bus.
type DBus struct {
	conn *dbus.Conn
	log  *logging.Logger
}

// NewDBus connects to the session bus and claims the daemon's name.
func NewDBus(log *logging.Logger) (*DBus, error) {
	if log == nil {
		log = logging.Default()
	}
	log = log.WithComponent("dbus")

	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}

	reply, err := conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("request bus name %s: %w", busName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("bus name %s already taken", busName)
	}

	log.Info("connected to session bus", "name", busName)
	return &DBus{conn: conn, log: log}, nil
}

// ConfigChanged emits the persistent snapshot of one channel as
// (id, name, config-json).
func (d *DBus) ConfigChanged(id uint8, name string, persistent channel.Config) {
	payload, err := json.Marshal(persistent)
	if err != nil {
		d.log.Warn("encode config signal", "channel", name, "error", err)
		return
	}
	d.emit("ConfigChanged", id, name, string(payload))
}

// ChannelReset emits (id, name).
func (d *DBus) ChannelReset(id uint8, name string) {
	d.emit("ChannelReset", id, name)
}

// LayerChanged emits (id, name, active).
func (d *DBus) LayerChanged(id uint8, name string, active bool) {
	d.emit("LayerChanged", id, name, active)
}

func (d *DBus) emit(member string, args ...interface{}) {
	if err := d.conn.Emit(objectPath, busInterface+"."+member, args...); err != nil {
		d.log.Warn("emit signal", "member", member, "error", err)
	}
}

// Close releases the bus name and connection.
func (d *DBus) Close() error {
	if _, err := d.conn.ReleaseName(busName); err != nil {
		d.log.Warn("release bus name", "error", err)
	}
	return d.conn.Close()
}
