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

// Command iptmaster is a minimal cluster master: it accepts IPT
// connections from segment gateways, tracks each one in a connmgr
// session table, answers client_req/res login, push-channel open/close
// and pushdata-transfer verbs, and logs every bus.insert.msg it receives.
// It exists to exercise the cluster/connmgr session plane end to end,
// not as a production collector backend (storage, dashboard and TLS are
// out of scope here, same as the core).
package main

import (
	"context"
	"math/rand"
	"net"
	"os"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/smf-gw/smf/cluster"
	"github.com/smf-gw/smf/connmgr"
	"github.com/smf-gw/smf/ipt"
)

func lookupEnv(name, def string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return def
}

var nextChannel uint32

func main() {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	addr := lookupEnv("IPTMASTER_LISTEN", ":7070")

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.WithError(err).Fatal("iptmaster: listen")
	}
	defer ln.Close()
	log.WithField("addr", addr).Info("iptmaster: listening")

	mgr := connmgr.New()

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.WithError(err).Warn("iptmaster: accept")
			continue
		}
		go handleConn(log, mgr, conn)
	}
}

func handleConn(base *logrus.Logger, mgr *connmgr.Manager, conn net.Conn) {
	id := uuid.New()
	mgr.Add(connmgr.SocketPlain, &connmgr.Session{ID: id, Data: conn})
	defer mgr.Remove(connmgr.SocketPlain, id)
	defer conn.Close()

	log := base.WithField("conn", id)
	log.Info("iptmaster: connection accepted")

	sess := ipt.NewSession()
	transport := cluster.NewIPTTransport(conn, sess)
	ctx := context.Background()

	for {
		env, err := transport.Receive(ctx)
		if err != nil {
			log.WithError(err).Info("iptmaster: connection closed")
			return
		}
		handleEnvelope(log, transport, env)
	}
}

func handleEnvelope(log *logrus.Entry, transport *cluster.IPTTransport, env cluster.Envelope) {
	ctx := context.Background()

	switch body := env.Body.(type) {
	case cluster.ReqLogin:
		log.WithField("name", body.Name).Info("iptmaster: client.req.login")
		reply(ctx, log, transport, env, "client.res.login", cluster.ResLogin{Success: true, Name: body.Name})

	case cluster.ReqOpenPushChannel:
		ch := atomic.AddUint32(&nextChannel, 1)
		log.WithField("target", body.Target).WithField("channel", ch).Info("iptmaster: open push channel")
		reply(ctx, log, transport, env, "client.res.open.push.channel", cluster.ResOpenPushChannel{
			Channel: ch,
			Source:  uint32(rand.Intn(1 << 20)),
		})

	case cluster.ReqTransferPushdata:
		log.WithField("channel", body.Channel).WithField("bytes", len(body.Data)).Info("iptmaster: pushdata transfer")
		reply(ctx, log, transport, env, "client.res.transfer.pushdata", cluster.ResTransferPushdata{})

	case cluster.ReqClosePushChannel:
		log.WithField("channel", body.Channel).Info("iptmaster: close push channel")
		reply(ctx, log, transport, env, "client.res.close.push.channel", cluster.ResClosePushChannel{})

	case cluster.BusInsertMsg:
		log.WithField("severity", body.Severity).Log(body.Severity.LogrusLevel(), body.Text)

	default:
		log.WithField("verb", env.Verb).Warn("iptmaster: unrecognized verb")
	}
}

func reply(ctx context.Context, log *logrus.Entry, transport *cluster.IPTTransport, req cluster.Envelope, verb string, body interface{}) {
	res := cluster.Envelope{ID: req.ID, Sequence: req.Sequence, Verb: verb, Body: body}
	if err := transport.Send(ctx, res); err != nil {
		log.WithError(err).Warn("iptmaster: send reply")
	}
}
