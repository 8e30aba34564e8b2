// internal/port/list.go
package port

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// Auto asks Resolve to pick a port itself.
const Auto = "auto"

// ErrNoPorts indicates no serial ports were found
var ErrNoPorts = errors.New("no serial ports found")

// Info describes one serial port.
type Info struct {
	Name    string
	Product string
	USB     bool
	VID     string
	PID     string
	Serial  string
}

func (i Info) String() string {
	if !i.USB {
		return i.Name
	}
	return fmt.Sprintf("%s [%s:%s] %s", i.Name, i.VID, i.PID, i.Product)
}

// ListFunc enumerates serial ports.
type ListFunc func() ([]*enumerator.PortDetails, error)

// List returns the serial ports on this machine, sorted by name.
func List() ([]Info, error) {
	return list(enumerator.GetDetailedPortsList)
}

func list(fn ListFunc) ([]Info, error) {
	details, err := fn()
	if err != nil {
		return nil, fmt.Errorf("enumerate ports: %w", err)
	}
	out := make([]Info, 0, len(details))
	for _, d := range details {
		if d == nil {
			continue
		}
		out = append(out, Info{
			Name:    d.Name,
			Product: d.Product,
			USB:     d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
			Serial:  d.SerialNumber,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// USB vendor IDs of the serial bridges WinKeyers ship with.
var preferredVIDs = map[string]bool{
	"0403": true, // FTDI
	"1a86": true, // WCH CH340
}

var preferredProducts = []string{"winkey", "ftdi", "ch340"}

// Likely reports whether the port looks like a WinKeyer.
func (i Info) Likely() bool {
	if preferredVIDs[strings.ToLower(i.VID)] {
		return true
	}
	product := strings.ToLower(i.Product)
	for _, p := range preferredProducts {
		if strings.Contains(product, p) {
			return true
		}
	}
	return false
}

// Pick returns the first port that looks like a WinKeyer, else the first port.
func Pick(ports []Info) (Info, bool) {
	if len(ports) == 0 {
		return Info{}, false
	}
	for _, p := range ports {
		if p.Likely() {
			return p, true
		}
	}
	return ports[0], true
}

// Resolve returns path unchanged unless it is empty or "auto", in which case a
// port is picked from the system list.
func Resolve(path string) (string, error) {
	return resolve(path, enumerator.GetDetailedPortsList)
}

func resolve(path string, fn ListFunc) (string, error) {
	if path != "" && !strings.EqualFold(path, Auto) {
		return path, nil
	}
	ports, err := list(fn)
	if err != nil {
		return "", err
	}
	p, ok := Pick(ports)
	if !ok {
		return "", ErrNoPorts
	}
	return p.Name, nil
}
