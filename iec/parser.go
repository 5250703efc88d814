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

// Package iec implements the meter side of an IEC 62056-21 mode-C
// readout: the ASCII sign-on/identification handshake and the STX/ETX
// data block of OBIS-addressed readings terminated by a block check
// character. The parser is synchronous and re-entrant in the same way
// as the IPT and SML stream parsers; a bridge forwards each completed
// readout to the cluster as an SML profile batch.
package iec

import (
	"strconv"
	"strings"

	"github.com/smf-gw/smf/obis"
)

const (
	stx = 0x02
	etx = 0x03
	ack = 0x06
	cr  = '\r'
	lf  = '\n'
)

// SignOn builds the mode-C request message addressed to device; an
// empty device addresses the only meter on a point-to-point line.
func SignOn(device string) []byte {
	return []byte("/?" + device + "!\r\n")
}

// AckDataReadout builds the option-select message that acknowledges an
// identification at baudID and asks for a plain data readout.
func AckDataReadout(baudID byte) []byte {
	return []byte{ack, '0', baudID, '0', cr, lf}
}

// Ident is the identification line a meter answers a sign-on with:
// "/MMM<baud><model>".
type Ident struct {
	Manufacturer string
	BaudID       byte
	Model        string
}

// Line is one data-block entry: the OBIS-ish address field plus the raw
// value and optional unit from inside the parentheses.
type Line struct {
	Address string
	Code    obis.Code
	CodeOK  bool
	Value   string
	Unit    string
}

// Readout is a complete parsed data message: the identification that
// preceded it, its data lines in wire order, and whether the trailing
// block check character matched.
type Readout struct {
	Ident Ident
	Lines []Line
	BCCOK bool
}

type parserState int

const (
	stateIdle parserState = iota
	stateIdent
	stateData
	stateBCC
)

// Parser consumes the meter-to-reader half of a mode-C exchange byte by
// byte. Feed may be called with any chunking of the stream; partial
// state is kept across calls and a Readout is emitted once its BCC has
// been read.
type Parser struct {
	state parserState
	line  []byte
	bcc   byte
	cur   Readout
}

// Feed parses raw and returns every Readout completed during this call.
func (p *Parser) Feed(raw []byte) []Readout {
	var out []Readout

	for _, c := range raw {
		switch p.state {
		case stateIdle:
			switch c {
			case '/':
				p.state = stateIdent
				p.line = p.line[:0]
			case stx:
				p.state = stateData
				p.line = p.line[:0]
				p.bcc = 0
			}

		case stateIdent:
			if c == lf {
				p.cur.Ident = parseIdent(p.line)
				p.state = stateIdle
				continue
			}
			if c != cr {
				p.line = append(p.line, c)
			}

		case stateData:
			p.bcc ^= c
			if c == etx {
				p.state = stateBCC
				continue
			}
			if c == lf {
				p.endLine()
				continue
			}
			if c != cr {
				p.line = append(p.line, c)
			}

		case stateBCC:
			p.cur.BCCOK = c == p.bcc
			out = append(out, p.cur)
			p.cur = Readout{Ident: p.cur.Ident}
			p.state = stateIdle
		}
	}

	return out
}

// Pending reports whether the parser holds a partially-read message.
func (p *Parser) Pending() bool { return p.state != stateIdle }

func (p *Parser) endLine() {
	text := string(p.line)
	p.line = p.line[:0]
	if text == "" || text == "!" {
		return
	}
	if ln, ok := parseLine(text); ok {
		p.cur.Lines = append(p.cur.Lines, ln)
	}
}

func parseIdent(line []byte) Ident {
	id := Ident{}
	if len(line) >= 3 {
		id.Manufacturer = string(line[:3])
	}
	if len(line) >= 4 {
		id.BaudID = line[3]
	}
	if len(line) > 4 {
		id.Model = string(line[4:])
	}
	return id
}

// parseLine splits "address(value*unit)" into its parts.
func parseLine(text string) (Line, bool) {
	open := strings.IndexByte(text, '(')
	if open < 0 || !strings.HasSuffix(text, ")") {
		return Line{}, false
	}
	ln := Line{Address: text[:open]}
	inner := text[open+1 : len(text)-1]
	if star := strings.IndexByte(inner, '*'); star >= 0 {
		ln.Value, ln.Unit = inner[:star], inner[star+1:]
	} else {
		ln.Value = inner
	}
	ln.Code, ln.CodeOK = ParseAddress(ln.Address)
	return ln, true
}

// ParseAddress converts an IEC address field into an OBIS code. The full
// form is "A-B:C.D.E*F"; A, B, E, and F may be elided, defaulting to
// medium 1-0 (electricity) with E=0 and F=255.
func ParseAddress(s string) (obis.Code, bool) {
	a, b, f := uint64(1), uint64(0), uint64(255)
	rest := s

	if dash := strings.IndexByte(rest, '-'); dash >= 0 {
		colon := strings.IndexByte(rest, ':')
		if colon < dash {
			return obis.Code{}, false
		}
		var err error
		if a, err = strconv.ParseUint(rest[:dash], 10, 8); err != nil {
			return obis.Code{}, false
		}
		if b, err = strconv.ParseUint(rest[dash+1:colon], 10, 8); err != nil {
			return obis.Code{}, false
		}
		rest = rest[colon+1:]
	} else if colon := strings.IndexByte(rest, ':'); colon >= 0 {
		var err error
		if b, err = strconv.ParseUint(rest[:colon], 10, 8); err != nil {
			return obis.Code{}, false
		}
		rest = rest[colon+1:]
	}

	if star := strings.IndexByte(rest, '*'); star >= 0 {
		var err error
		if f, err = strconv.ParseUint(rest[star+1:], 10, 8); err != nil {
			return obis.Code{}, false
		}
		rest = rest[:star]
	}

	parts := strings.Split(rest, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return obis.Code{}, false
	}
	c, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return obis.Code{}, false
	}
	d, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return obis.Code{}, false
	}
	e := uint64(0)
	if len(parts) == 3 {
		if e, err = strconv.ParseUint(parts[2], 10, 8); err != nil {
			return obis.Code{}, false
		}
	}

	return obis.NewCode(byte(a), byte(b), byte(c), byte(d), byte(e), byte(f)), true
}
