// Data aggregation for utility meters.
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

// Command segw is the segment gateway daemon: it binds a wM-Bus radio
// source to the readout cache, mirrors every readout to a pool of
// brokers, and runs one push job per configured target against the
// cluster master. Decoded values are kept in the cache only; this daemon
// does not write them into profile storage.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/smf-gw/smf/broker"
	"github.com/smf-gw/smf/cache"
	"github.com/smf-gw/smf/cluster"
	"github.com/smf-gw/smf/iec"
	"github.com/smf-gw/smf/ipt"
	"github.com/smf-gw/smf/mbus"
	"github.com/smf-gw/smf/obis"
	"github.com/smf-gw/smf/push"
	"github.com/smf-gw/smf/serial"
	"github.com/smf-gw/smf/store"
)

func lookupEnv(name, def string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return def
}

// shutdownTimeout bounds the drain phase of shutdown: wait this long
// for tasks to ack before force-closing remaining sockets.
const shutdownTimeout = 5 * time.Second

func main() {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	dbPath := lookupEnv("SEGW_STORE_PATH", "segw.db")
	st, err := store.OpenBolt(dbPath)
	if err != nil {
		log.WithError(err).Fatal("segw: open store")
	}
	defer st.Close()

	readoutCache := cache.New(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go readoutCache.Run(ctx)

	// Broker pool: observe every decoded readout and fan it out to
	// whichever collector brokers are attached to that meter's source.
	pool := broker.NewPool()
	wireBrokers(log, pool)

	readoutCache.Subscribe(cacheObserver(log, st, pool))

	// Cluster uplink: one long-lived IPT connection to the master.
	masterAddr := lookupEnv("SEGW_MASTER_ADDR", "")
	var session *cluster.Session
	if masterAddr != "" {
		session, err = dialCluster(ctx, log, masterAddr)
		if err != nil {
			log.WithError(err).Fatal("segw: dial cluster master")
		}
		go session.Run(ctx)

		res, err := session.Login(ctx, lookupEnv("SEGW_NAME", "segw"), lookupEnv("SEGW_PWD", ""), "sml")
		if err != nil || !res.Success {
			log.WithError(err).Fatal("segw: cluster login failed")
		}
		log.WithField("name", res.Name).Info("segw: logged in to cluster master")

		startPushJobs(ctx, log, st, session)
	} else {
		log.Warn("segw: SEGW_MASTER_ADDR unset, running without a cluster uplink")
	}

	// wM-Bus radio source.
	if devicePath := lookupEnv("SEGW_WMBUS_DEVICE", ""); devicePath != "" {
		go runWMBusSource(ctx, log, devicePath, readoutCache, st)
	}

	// Wired IEC 62056-21 source, bridged to a cluster push target.
	if iecDevice := lookupEnv("SEGW_IEC_DEVICE", ""); iecDevice != "" {
		if session == nil {
			log.Warn("segw: SEGW_IEC_DEVICE set but no cluster uplink, ignoring")
		} else {
			go runIECSource(ctx, log, iecDevice, session)
		}
	}

	waitForShutdown(log, cancel, pool)
}

func wireBrokers(log *logrus.Logger, pool *broker.Pool) {
	targets := lookupEnv("SEGW_BROKER_TARGETS", "")
	if targets == "" {
		return
	}
	for _, spec := range strings.Split(targets, ",") {
		parts := strings.SplitN(spec, "@", 2)
		if len(parts) != 2 {
			log.WithField("spec", spec).Warn("segw: malformed broker target, expected source@host:port")
			continue
		}
		source, addr := parts[0], parts[1]
		b := broker.NewOnStart(source, func(ctx context.Context) (net.Conn, error) {
			d := net.Dialer{}
			return d.DialContext(ctx, "tcp", addr)
		}, nil)
		go b.Run(context.Background())
		pool.Attach(source, b)
		log.WithField("source", source).WithField("addr", addr).Info("segw: attached on-start broker")
	}
}

// cacheObserver broadcasts the raw readout payload to whatever brokers
// watch its source. Decoded value rows are not written to profile
// storage.
func cacheObserver(log *logrus.Logger, st store.Store, pool *broker.Pool) cache.Observer {
	return cache.Observer{
		OnInsert: func(ev cache.Event) {
			switch ev.Table {
			case cache.TableReadout:
				r, ok := ev.Value.(cache.Readout)
				if !ok {
					return
				}
				pool.Broadcast(hexServerID(r.ServerID), r.Payload)
			case cache.TableReadoutData:
				// Value rows are ignored here: nothing in this daemon
				// calls store.Store.Insert, and this observer only keeps
				// brokers fed.
			}
		},
	}
}

func dialCluster(ctx context.Context, log *logrus.Logger, addr string) (*cluster.Session, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.Errorf("dialCluster: %w", err)
	}
	iptSession := ipt.NewSession()
	transport := cluster.NewIPTTransport(conn, iptSession)
	go transport.RunWatchdog(ctx)
	return cluster.NewSession(log, transport), nil
}

// startPushJobs reads SEGW_PUSH_TARGETS ("meterHex:profile:targetName,...")
// and spawns one push.Job per entry.
func startPushJobs(ctx context.Context, log *logrus.Logger, st store.Store, session *cluster.Session) {
	spec := lookupEnv("SEGW_PUSH_TARGETS", "")
	if spec == "" {
		return
	}
	for i, entry := range strings.Split(spec, ",") {
		fields := strings.Split(entry, ":")
		if len(fields) != 3 {
			log.WithField("entry", entry).Warn("segw: malformed push target, expected meter:profile:target")
			continue
		}
		meter, profile, targetName := fields[0], fields[1], fields[2]

		meterID, err := parseMeterID(meter)
		if err != nil {
			log.WithError(err).WithField("meter", meter).Warn("segw: bad meter id in push target")
			continue
		}
		p, ok := profileByName(profile)
		if !ok {
			log.WithField("profile", profile).Warn("segw: unknown profile in push target")
			continue
		}

		job := push.NewJob(log, st, session, push.Target{
			MeterID:    meterID,
			Nr:         uint8(i + 1),
			Profile:    p,
			TargetName: targetName,
			Enabled:    true,
		})
		go job.Run(ctx)
	}
}

func hexServerID(id [9]byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(id)*2)
	for i, b := range id {
		out[2*i] = hexDigits[b>>4]
		out[2*i+1] = hexDigits[b&0x0F]
	}
	return string(out)
}

func parseMeterID(hexStr string) ([9]byte, error) {
	var id [9]byte
	if len(hexStr) != 18 {
		return id, xerrors.New("meter id must be 18 hex characters")
	}
	for i := 0; i < 9; i++ {
		v, err := strconv.ParseUint(hexStr[i*2:i*2+2], 16, 8)
		if err != nil {
			return id, xerrors.Errorf("parseMeterID: %w", err)
		}
		id[i] = byte(v)
	}
	return id, nil
}

func profileByName(name string) (obis.Profile, bool) {
	switch name {
	case "1-min":
		return obis.Profile1Minute, true
	case "15-min":
		return obis.Profile15Minute, true
	case "60-min":
		return obis.Profile60Minute, true
	case "24-hour":
		return obis.Profile24Hour, true
	case "1-month":
		return obis.Profile1Month, true
	case "1-year":
		return obis.Profile1Year, true
	default:
		return obis.Profile{}, false
	}
}

// serialOpenRetry paces reopen attempts on a serial device that is not
// (yet) present.
const serialOpenRetry = 4 * time.Second

// runIECSource opens the wired meter line and runs one IEC readout
// client against it, reopening the port on failure.
func runIECSource(ctx context.Context, log *logrus.Logger, devicePath string, session *cluster.Session) {
	baud, _ := strconv.Atoi(lookupEnv("SEGW_IEC_BAUD", "9600"))
	parity := serial.ParityNone
	stopBits := 1
	if lookupEnv("SEGW_IEC_MODE", "8N1") == "7E2" {
		parity, stopBits = serial.ParityEven, 2
	}
	interval, _ := time.ParseDuration(lookupEnv("SEGW_IEC_INTERVAL", "12m"))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		port, err := serial.Open(devicePath, baud, parity, stopBits)
		if err != nil {
			log.WithError(err).Warn("segw: open IEC device")
			select {
			case <-ctx.Done():
				return
			case <-time.After(serialOpenRetry):
			}
			continue
		}

		client := iec.NewClient(log, port, session, iec.Config{
			Meter:    lookupEnv("SEGW_IEC_METER", ""),
			ServerID: lookupEnv("SEGW_IEC_SERVER_ID", ""),
			Target:   lookupEnv("SEGW_IEC_TARGET", "collector-iec"),
			Profile:  obis.Profile15Minute,
			Interval: interval,
		})
		client.Run(ctx)
		port.Close()
		return
	}
}

// runWMBusSource opens the iM871A dongle, writes its fixed init blob,
// and feeds every unwrapped HCI frame through the wM-Bus decoder into
// the readout cache.
func runWMBusSource(ctx context.Context, log *logrus.Logger, devicePath string, c *cache.Cache, st store.Store) {
	port, err := serial.Open(devicePath, 57600, serial.ParityNone, 1)
	if err != nil {
		log.WithError(err).Error("segw: open wM-Bus device")
		return
	}
	defer port.Close()

	if _, err := port.Write(serial.InitBlob); err != nil {
		log.WithError(err).Error("segw: write wM-Bus init blob")
		return
	}

	hci := &serial.HCIDecoder{}
	buf := make([]byte, 512)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := port.Read(buf)
		if err != nil {
			log.WithError(err).Warn("segw: wM-Bus read error")
			return
		}

		frames, err := hci.Feed(buf[:n])
		if err != nil {
			log.WithError(err).Warn("segw: HCI decode error")
			continue
		}

		for _, f := range frames {
			handleWMBusFrame(log, c, st, f.Payload)
		}
	}
}

func handleWMBusFrame(log *logrus.Logger, c *cache.Cache, st store.Store, raw []byte) {
	frame, err := mbus.Classify(raw)
	if err != nil {
		log.WithError(err).Debug("segw: mbus classify")
		return
	}
	if frame.Type != mbus.FrameLong {
		return
	}

	serverID := frame.Header.ServerID()
	cfg, found, err := st.MeterConfig(context.Background(), serverID)
	if err != nil {
		log.WithError(err).Warn("segw: meter config lookup")
		return
	}

	payload := frame.Payload
	verified := false
	if found && cfg.AESKey != nil {
		var accessCounter byte
		if len(payload) > 0 {
			accessCounter = payload[0]
		}
		plain, ok, derr := mbus.DecryptMode5(payload, cfg.AESKey, frame.Header, accessCounter)
		if derr != nil {
			log.WithError(derr).WithField("server_id", frame.Header.String()).Warn("segw: mode-5 decrypt failed")
		} else {
			payload, verified = plain, ok
		}
	}

	readout := cache.Readout{
		PK:           uuid.New(),
		ServerID:     serverID,
		Manufacturer: frame.Header.Manufacturer,
		Version:      frame.Header.Version,
		Medium:       frame.Header.Medium,
		DeviceID:     frame.Header.ID,
		FrameType:    uint8(frame.Type),
		Size:         len(raw),
		Payload:      raw,
		ReceivedAt:   time.Now(),
	}

	var data []cache.ReadoutData
	if found && (cfg.AESKey == nil || verified) {
		data = decodeVDB(log, serverID, payload)
	}

	c.Insert(context.Background(), readout, data, "mbus")
}

func decodeVDB(log *logrus.Logger, serverID [9]byte, payload []byte) []cache.ReadoutData {
	r := mbus.NewVDBReader(payload)
	var out []cache.ReadoutData
	for !r.Done() {
		reading, ok, err := r.Next()
		if err != nil {
			log.WithError(errors.Wrap(err, "vdb decode")).WithField("server_id", serverID).Debug("segw: vdb decode")
			return out
		}
		if !ok {
			break
		}
		if reading.Unknown {
			continue
		}
		out = append(out, cache.ReadoutData{
			Raw:    obis.ScaleValue(reading.Raw, reading.Scaler),
			Type:   "i64",
			Scaler: reading.Scaler,
			Unit:   uint8(reading.Unit),
		})
	}
	return out
}

func waitForShutdown(log *logrus.Logger, cancel context.CancelFunc, pool *broker.Pool) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("segw: shutting down")
	cancel()

	done := make(chan struct{})
	go func() {
		pool.StopAll()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		log.Warn("segw: shutdown timeout exceeded, forcing close")
	}
}
