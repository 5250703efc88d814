// Copyright (C) 2017 Douglas Hall
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package serial is a thin POSIX termios wrapper binding a real character
// device to the byte stream the decoders consume: wired M-Bus and
// IEC 62056-21 meters over RS-485/RS-232, and the iM871A wM-Bus radio
// dongle over its HCI/CP210x USB-serial bridge. It carries no protocol
// decision of its own; it exists so C2/C3/C6 have an actual byte stream
// to read.
package serial

import (
	"golang.org/x/sys/unix"

	"github.com/smf-gw/smf/smferr"
)

// Parity selects the parity bit applied to the line.
type Parity int

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

func (p Parity) String() string {
	switch p {
	case ParityEven:
		return "E"
	case ParityOdd:
		return "O"
	default:
		return "N"
	}
}

// Port is an open serial line configured for raw, unbuffered byte I/O.
type Port struct {
	fd   int
	path string
}

var baudRates = map[int]uint32{
	1200:   unix.B1200,
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
}

// Open opens path and configures it for raw 8-bit transfer at baud,
// parity, and stopBits. Wired M-Bus runs 2400 8E1; IEC 62056-21 runs
// 9600 8N1 or 7E2.
func Open(path string, baud int, parity Parity, stopBits int) (*Port, error) {
	const op = "serial.Open"

	rate, ok := baudRates[baud]
	if !ok {
		return nil, smferr.New(smferr.KindConfig, op, errUnsupportedBaud)
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, smferr.New(smferr.KindIO, op, err)
	}
	p := &Port{fd: fd, path: path}

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		return nil, smferr.New(smferr.KindIO, op, err)
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | rate

	switch parity {
	case ParityEven:
		t.Cflag |= unix.PARENB
	case ParityOdd:
		t.Cflag |= unix.PARENB | unix.PARODD
	}
	if stopBits >= 2 {
		t.Cflag |= unix.CSTOPB
	}

	t.Ispeed = rate
	t.Ospeed = rate
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		unix.Close(fd)
		return nil, smferr.New(smferr.KindIO, op, err)
	}
	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return nil, smferr.New(smferr.KindIO, op, err)
	}

	return p, nil
}

// Path returns the device path the Port was opened from.
func (p *Port) Path() string { return p.path }

func (p *Port) Read(b []byte) (int, error) {
	n, err := unix.Read(p.fd, b)
	if err != nil {
		return n, smferr.New(smferr.KindIO, "serial.Port.Read", err)
	}
	return n, nil
}

func (p *Port) Write(b []byte) (int, error) {
	n, err := unix.Write(p.fd, b)
	if err != nil {
		return n, smferr.New(smferr.KindIO, "serial.Port.Write", err)
	}
	return n, nil
}

func (p *Port) Close() error {
	return unix.Close(p.fd)
}

// WakeUp sends the M-Bus wake-and-call pattern: n bytes of 0x55 followed
// by a short-frame REQ_UD2 addressed to addr. Battery-powered secondary
// devices require this to bring their receiver up before a request frame
// will be seen.
func (p *Port) WakeUp(n int, addr byte) error {
	pattern := make([]byte, n)
	for i := range pattern {
		pattern[i] = 0x55
	}
	if _, err := p.Write(pattern); err != nil {
		return err
	}
	_, err := p.Write(shortFrameRequest(addr))
	return err
}

// shortFrameRequest builds an M-Bus short frame carrying REQ_UD2 (0x5B)
// addressed to addr: start, control, address, checksum, stop.
func shortFrameRequest(addr byte) []byte {
	const control = 0x5B
	cs := byte(control) + addr
	return []byte{0x10, control, addr, cs, 0x16}
}

type portError string

func (e portError) Error() string { return string(e) }

const errUnsupportedBaud = portError("serial: unsupported baud rate")
