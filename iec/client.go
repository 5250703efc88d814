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

package iec

import (
	"context"
	"io"
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/smf-gw/smf/cluster"
	"github.com/smf-gw/smf/obis"
	"github.com/smf-gw/smf/sml"
)

// OpenChannelTimeout bounds the push-channel open per readout.
const OpenChannelTimeout = 30 * time.Second

// DefaultInterval is the query cadence when the bridge row carries none.
const DefaultInterval = 12 * time.Minute

// Config binds a Client to one meter on one serial line.
type Config struct {
	Meter    string // account/device name on the line
	ServerID string // server id the pushed SML frames report
	Target   string // push target name at the cluster master
	Profile  obis.Profile
	Interval time.Duration
}

// Client periodically queries one IEC 62056-21 meter over a byte stream
// and forwards each completed readout as an SML profile batch through a
// cluster push channel: the wired-line bridge between a legacy meter
// and the collector network.
type Client struct {
	log     *logrus.Logger
	rw      io.ReadWriter
	session *cluster.Session
	gen     *sml.RequestGenerator
	parser  Parser
	cfg     Config
}

// NewClient returns a Client reading cfg.Meter over rw and pushing
// through session.
func NewClient(log *logrus.Logger, rw io.ReadWriter, session *cluster.Session, cfg Config) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Profile == (obis.Profile{}) {
		cfg.Profile = obis.Profile15Minute
	}
	return &Client{
		log:     log,
		rw:      rw,
		session: session,
		gen:     sml.NewRequestGenerator(rand.New(rand.NewSource(time.Now().UnixNano())), "", ""),
		cfg:     cfg,
	}
}

// Run queries the meter on the configured interval until ctx is
// cancelled. A failed query is logged and retried on the next tick.
func (c *Client) Run(ctx context.Context) {
	for {
		if err := c.QueryOnce(ctx); err != nil {
			c.log.WithError(err).WithField("meter", c.cfg.Meter).Warn("iec: query failed")
		}

		timer := time.NewTimer(c.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// QueryOnce runs a single sign-on/readout exchange and pushes the
// resulting period list to the cluster target.
func (c *Client) QueryOnce(ctx context.Context) error {
	const op = "iec.Client.QueryOnce"

	if _, err := c.rw.Write(SignOn(c.cfg.Meter)); err != nil {
		return xerrors.Errorf("%s: sign-on: %w", op, err)
	}

	buf := make([]byte, 256)
	acked := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := c.rw.Read(buf)
		if err != nil {
			return xerrors.Errorf("%s: read: %w", op, err)
		}

		readouts := c.parser.Feed(buf[:n])
		for _, r := range readouts {
			return c.forward(ctx, r)
		}

		// Answer the identification once with a data-readout request;
		// the data message follows on the same line.
		if !acked && !c.parser.Pending() && c.parser.cur.Ident.Manufacturer != "" {
			if _, err := c.rw.Write(AckDataReadout(c.parser.cur.Ident.BaudID)); err != nil {
				return xerrors.Errorf("%s: ack: %w", op, err)
			}
			acked = true
		}
	}
}

// forward converts a readout into one SML get.profile.list.response and
// ships it through a freshly opened push channel.
func (c *Client) forward(ctx context.Context, r Readout) error {
	const op = "iec.Client.forward"

	if !r.BCCOK {
		c.log.WithField("meter", c.cfg.Meter).Warn("iec: block check mismatch, discarding readout")
		return nil
	}

	periods := c.periods(r)
	if len(periods) == 0 {
		return nil
	}

	c.session.BusInsertMsgf(ctx, cluster.SeverityInfo,
		"start data set "+c.cfg.Meter+" ("+c.cfg.Target+")")

	openCtx, cancel := context.WithTimeout(ctx, OpenChannelTimeout)
	defer cancel()
	res, err := c.session.OpenPushChannel(openCtx, cluster.ReqOpenPushChannel{
		Target:  c.cfg.Target,
		Timeout: OpenChannelTimeout,
		Bag:     map[string]interface{}{"meter": c.cfg.Meter},
	})
	if err != nil {
		c.session.BusInsertMsgf(ctx, cluster.SeverityWarning,
			"push channel unavailable for "+c.cfg.Target)
		return xerrors.Errorf("%s: open push channel: %w", op, err)
	}

	now := uint32(time.Now().Unix())
	msg := c.gen.ProfileListResponse(
		c.cfg.ServerID,
		now,
		uint32(c.cfg.Profile.Interval().Seconds()),
		[6]byte(c.cfg.Profile.Code()),
		now,
		0,
		periods,
	)
	payload, err := sml.Encode(msg)
	if err != nil {
		_ = c.session.ClosePushChannel(ctx, res.Channel)
		return xerrors.Errorf("%s: encode sml: %w", op, err)
	}
	if err := c.session.TransferPushdata(ctx, res.Channel, res.Source, payload); err != nil {
		_ = c.session.ClosePushChannel(ctx, res.Channel)
		return xerrors.Errorf("%s: transfer pushdata: %w", op, err)
	}
	return c.session.ClosePushChannel(ctx, res.Channel)
}

// periods converts data lines into SML period entries. The meter state
// word gets a fatal-error check, the meter address is carried as an
// opaque buffer, and everything else is treated as a scaled numeric
// reading.
func (c *Client) periods(r Readout) []sml.ProfilePeriod {
	var out []sml.ProfilePeriod
	for _, ln := range r.Lines {
		if !ln.CodeOK {
			continue
		}

		switch ln.Code {
		case obis.CodeMBusState:
			if strings.Trim(ln.Value, "0") != "" {
				c.session.BusInsertMsgf(context.Background(), cluster.SeverityError,
					"fatal error code from metering device: "+ln.Value)
			}
			raw, err := obis.ScaleReverse(ln.Value, 0)
			if err != nil {
				continue
			}
			out = append(out, sml.ProfilePeriod{
				OBIS:     [6]byte(ln.Code),
				Unit:     255,
				RawValue: int64ToBytes(raw),
			})

		case obis.CodeMeterAddress:
			out = append(out, sml.ProfilePeriod{
				OBIS:     [6]byte(ln.Code),
				RawValue: []byte(ln.Value),
			})

		default:
			scaler := valueScaler(ln.Value)
			raw, err := obis.ScaleReverse(ln.Value, scaler)
			if err != nil {
				c.log.WithField("address", ln.Address).WithField("value", ln.Value).
					Debug("iec: non-numeric line skipped")
				continue
			}
			unit, adj := unitCode(ln.Unit)
			out = append(out, sml.ProfilePeriod{
				OBIS:     [6]byte(ln.Code),
				Unit:     unit,
				Scaler:   scaler + adj,
				RawValue: int64ToBytes(raw),
			})
		}
	}
	return out
}

// valueScaler derives the scaler that makes the printed decimal an
// integer: the negated count of fraction digits.
func valueScaler(v string) int8 {
	if dot := strings.IndexByte(v, '.'); dot >= 0 {
		return int8(-(len(v) - dot - 1))
	}
	return 0
}

// unitCode maps the printed unit to its EN 62056 unit code plus the
// scaler adjustment that folds a k/M prefix into the base unit; unknown
// units map to 255 so downstream consumers can flag them.
func unitCode(u string) (uint8, int8) {
	switch u {
	case "Wh":
		return 30, 0
	case "kWh":
		return 30, 3
	case "MWh":
		return 30, 6
	case "W":
		return 27, 0
	case "kW":
		return 27, 3
	case "var":
		return 29, 0
	case "kvar":
		return 29, 3
	case "V":
		return 35, 0
	case "A":
		return 33, 0
	case "Hz":
		return 44, 0
	case "m3", "m^3":
		return 13, 0
	case "K":
		return 6, 0
	case "C":
		return 62, 0
	default:
		return 255, 0
	}
}

func int64ToBytes(v int64) []byte {
	var b [8]byte
	u := uint64(v)
	for i := 7; i >= 0; i-- {
		b[i] = byte(u)
		u >>= 8
	}
	return b[:]
}
