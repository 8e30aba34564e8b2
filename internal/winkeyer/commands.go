// internal/winkeyer/commands.go
package winkeyer

// BaudRate is the fixed serial speed of the WinKeyer host interface.
const BaudRate = 1200

// Command bytes.
const (
	CmdAdmin    byte = 0x00
	CmdSidetone byte = 0x01
	CmdMode     byte = 0x0E
)

// Admin sub-commands.
const (
	AdminHostOpen  byte = 0x02
	AdminHostClose byte = 0x03
)

// Mode register bits.
const (
	ModeWatchdogDisable byte = 1 << 7
	ModePaddleEcho      byte = 1 << 6
	ModeSwapPaddles     byte = 1 << 3
)

// Sidetone register values.
const (
	SidetoneMuted byte = 0x00
	// SidetoneDefault restores an audible tone (divisor 4, ~1kHz)
	SidetoneDefault byte = 0x04
)

// Firmware version bytes reported after HostOpen fall in this range.
const (
	FirmwareMin byte = 0x10
	FirmwareMax byte = 0x40
)

// HostOpen returns the admin command that takes host control of the keyer.
func HostOpen() []byte {
	return []byte{CmdAdmin, AdminHostOpen}
}

// HostClose returns the admin command that releases host control.
func HostClose() []byte {
	return []byte{CmdAdmin, AdminHostClose}
}

// ModeByte builds the mode register value used by the bridge. The paddle watchdog
// is disabled and paddle echo enabled; keyer mode, autospace, contest spacing and
// serial echo are left at zero.
func ModeByte(swapPaddles bool) byte {
	mode := ModeWatchdogDisable | ModePaddleEcho
	if swapPaddles {
		mode |= ModeSwapPaddles
	}
	return mode
}

// SetMode returns the mode register write.
func SetMode(swapPaddles bool) []byte {
	return []byte{CmdMode, ModeByte(swapPaddles)}
}

// SetSidetone returns the sidetone register write for the given divisor.
func SetSidetone(value byte) []byte {
	return []byte{CmdSidetone, value}
}

// IsFirmwareVersion reports whether b looks like a firmware version byte.
func IsFirmwareVersion(b byte) bool {
	return b >= FirmwareMin && b <= FirmwareMax
}

// FindFirmwareVersion scans a HostOpen response for the version byte. A version
// byte directly after 0x00 wins; otherwise the last byte is accepted if it is in
// range.
func FindFirmwareVersion(resp []byte) (byte, bool) {
	for i := 0; i+1 < len(resp); i++ {
		if resp[i] == 0x00 && IsFirmwareVersion(resp[i+1]) {
			return resp[i+1], true
		}
	}
	if len(resp) > 0 && IsFirmwareVersion(resp[len(resp)-1]) {
		return resp[len(resp)-1], true
	}
	return 0, false
}
