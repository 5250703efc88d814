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

package broker

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// MQTT is the third broker kind the broker pool makes room for: it
// publishes a readout's raw payload to a per-source MQTT topic via
// github.com/eclipse/paho.mqtt.golang instead of a
// bespoke TCP stream, without touching the IPT uplink (which stays
// TCP-only via cluster.Session).
type MQTT struct {
	log    *logrus.Logger
	topic  string
	qos    byte
	client mqtt.Client
	state  State
}

// NewMQTT returns an MQTT broker publishing to topic over client, which
// the caller connects (mqtt.NewClient(opts); client.Connect()) so that
// broker options (TLS, credentials) stay the caller's concern.
func NewMQTT(log *logrus.Logger, client mqtt.Client, topic string, qos byte) *MQTT {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MQTT{log: log, topic: topic, qos: qos, client: client}
}

// Write publishes data to the configured topic. Zero-length writes are
// rejected silently, matching the TCP broker variants' contract.
func (m *MQTT) Write(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if !m.client.IsConnected() {
		m.log.WithField("topic", m.topic).Warn("broker: mqtt publish dropped, not connected")
		return nil
	}
	token := m.client.Publish(m.topic, m.qos, false, data)
	if !token.WaitTimeout(5 * time.Second) {
		m.log.WithField("topic", m.topic).Warn("broker: mqtt publish timed out")
		return nil
	}
	return token.Error()
}

// State reports StateConnected/StateOffline from the underlying client's
// own connection tracking; paho has no CONNECTING/STOPPED of its own.
func (m *MQTT) State() State {
	if m.client.IsConnected() {
		return StateConnected
	}
	return StateOffline
}

func (m *MQTT) Stop() {
	m.client.Disconnect(250)
}
