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

// Package push implements the push job scheduler: one task per
// (meter, nr) push-op row that wakes on the profile's sampling grid,
// opens a cluster push channel, ships every unsent ts-index group as a
// get.profile.list.response SML message, and advances a monotonic
// low-water-mark only once the cluster peer acknowledges the transfer.
package push

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/smf-gw/smf/cluster"
	"github.com/smf-gw/smf/obis"
	"github.com/smf-gw/smf/sml"
	"github.com/smf-gw/smf/store"
)

// OpenChannelTimeout bounds step 3 of the job contract.
const OpenChannelTimeout = 30 * time.Second

// Target is one push-op row: the unit of scheduling for a single
// (meter, nr) task.
type Target struct {
	MeterID      [9]byte
	Nr           uint8
	Profile      obis.Profile
	Delay        time.Duration
	TargetName   string
	Source       string
	Enabled      bool
	NextFire     time.Time
	LowWaterMark int64
}

// Job runs one Target's scheduling loop against a Store and a cluster
// Session, generating SML push frames and advancing the target's
// low-water-mark on success.
type Job struct {
	log     *logrus.Logger
	store   store.Store
	session *cluster.Session
	gen     *sml.RequestGenerator

	target Target
}

// NewJob returns a Job for target, using store for readback and session
// for the cluster push-channel protocol. gen should be dedicated to this
// job (it is not safe to share a RequestGenerator across concurrent
// jobs, since its sequence/trx counters are job-scoped by convention).
func NewJob(log *logrus.Logger, st store.Store, session *cluster.Session, target Target) *Job {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Job{
		log:     log,
		store:   st,
		session: session,
		gen:     sml.NewRequestGenerator(rand.New(rand.NewSource(1)), "", ""),
		target:  target,
	}
}

// Run executes the scheduling loop until ctx is cancelled. A cancelled
// run must not advance the target's low-water-mark past what was already
// committed before cancellation.
func (j *Job) Run(ctx context.Context) {
	if j.target.NextFire.IsZero() {
		j.target.NextFire = obis.Next(j.target.Profile, time.Now()).Add(j.target.Delay)
	}

	for {
		wait := time.Until(j.target.NextFire)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := j.runOnce(ctx); err != nil {
			j.log.WithError(err).WithField("meter", j.target.MeterID).Warn("push: job iteration failed")
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		j.target.NextFire = obis.Next(j.target.Profile, time.Now()).Add(j.target.Delay)
	}
}

func (j *Job) runOnce(ctx context.Context) error {
	openCtx, cancel := context.WithTimeout(ctx, OpenChannelTimeout)
	defer cancel()

	res, err := j.session.OpenPushChannel(openCtx, cluster.ReqOpenPushChannel{
		Target:  j.target.TargetName,
		Device:  hexMeterID(j.target.MeterID),
		Timeout: OpenChannelTimeout,
	})
	if err != nil {
		j.logOpLog(ctx, store.LogCodePushChannelFailed, "push: operation not successful")
		return xerrors.Errorf("push.Job.runOnce: open push channel: %w", err)
	}

	now := time.Now()
	to := obis.ToIndex(j.target.Profile, now)

	rows, err := j.store.SelectWindow(ctx, j.target.MeterID, j.target.Profile, j.target.LowWaterMark+1, to)
	if err != nil {
		_ = j.session.ClosePushChannel(ctx, res.Channel)
		return xerrors.Errorf("push.Job.runOnce: select window: %w", err)
	}

	highest := j.target.LowWaterMark
	for group := range rows {
		msg := j.buildMessage(group)
		payload, err := sml.Encode(msg)
		if err != nil {
			_ = j.session.ClosePushChannel(ctx, res.Channel)
			return xerrors.Errorf("push.Job.runOnce: encode sml: %w", err)
		}

		if err := j.session.TransferPushdata(ctx, res.Channel, res.Source, payload); err != nil {
			_ = j.session.ClosePushChannel(ctx, res.Channel)
			return xerrors.Errorf("push.Job.runOnce: transfer pushdata: %w", err)
		}
		if group.TSIndex > highest {
			highest = group.TSIndex
		}
	}

	j.target.LowWaterMark = highest
	return j.session.ClosePushChannel(ctx, res.Channel)
}

func (j *Job) buildMessage(group store.Group) sml.Message {
	periods := make([]sml.ProfilePeriod, 0, len(group.Rows))
	for _, r := range group.Rows {
		periods = append(periods, sml.ProfilePeriod{
			OBIS:     [6]byte(r.Code),
			Unit:     r.Unit,
			Scaler:   r.Scaler,
			RawValue: int64ToBytes(r.Value),
		})
	}
	return j.gen.ProfileListResponse(
		hexMeterID(j.target.MeterID),
		uint32(group.TSIndex),
		uint32(j.target.Profile.Interval().Seconds()),
		[6]byte(j.target.Profile.Code()),
		uint32(group.TSIndex),
		0,
		periods,
	)
}

func (j *Job) logOpLog(ctx context.Context, code store.OpLogCode, msg string) {
	err := j.store.GenerateOpLog(ctx, store.OpLogEntry{
		Time:    time.Now(),
		Code:    code,
		Server:  hexMeterID(j.target.MeterID),
		Target:  j.target.TargetName,
		Nr:      j.target.Nr,
		Message: msg,
	})
	if err != nil {
		j.log.WithError(err).Warn("push: failed to record op-log entry")
	}
}

func hexMeterID(id [9]byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(id)*2)
	for i, b := range id {
		out[2*i] = hexDigits[b>>4]
		out[2*i+1] = hexDigits[b&0x0F]
	}
	return string(out)
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
