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

// Package cluster implements the cluster session plane:
// the single long-lived IPT connection to the master, carrying
// client_req/client_res envelopes correlated by cluster sequence and
// tagged with a UUID, plus bus.insert.msg operational logging.
package cluster

import "github.com/sirupsen/logrus"

// Severity is the severity byte the reference cluster protocol
// carries alongside bus.insert.msg free text.
type Severity uint8

const (
	SeverityTrace Severity = iota
	SeverityDebug
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityTrace:
		return "trace"
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// LogrusLevel maps a cluster Severity onto the equivalent logrus.Level,
// so a bus.insert.msg event logs locally with the same weight the
// cluster master would attach to it.
func (s Severity) LogrusLevel() logrus.Level {
	switch s {
	case SeverityTrace:
		return logrus.TraceLevel
	case SeverityDebug:
		return logrus.DebugLevel
	case SeverityInfo:
		return logrus.InfoLevel
	case SeverityWarning:
		return logrus.WarnLevel
	case SeverityError:
		return logrus.ErrorLevel
	case SeverityFatal:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}
