package gateway

import (
	"encoding/json"
	"strconv"
	"time"
)

// Broadcaster wraps pub/sub payloads in sequenced envelopes and fans
// them out to subscribed clients.
type Broadcaster struct {
	hub *Hub
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// Broadcast envelopes data for channel and delivers it to every client
// whose subscription matches. The envelope carries a global seq plus a
// per-channel seq; clients detect gaps from channel_seq and backfill
// via /api/missed against the replay buffer. Slow clients get dropped
// messages, not blocked fan-out.
func (b *Broadcaster) Broadcast(channel string, data []byte) {
	now := time.Now().UTC()
	b.trackLatency(now, data)

	b.hub.mu.Lock()
	b.hub.seq++
	b.hub.channelSeqs[channel]++
	seq, channelSeq := b.hub.seq, b.hub.channelSeqs[channel]
	b.hub.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	rb := b.hub.replayBufs[channel]
	if rb == nil {
		rb = NewReplayBuffer(500) // envelopes retained per channel
		b.hub.replayBufs[channel] = rb
	}
	b.hub.mu.Unlock()

	buf := appendEnvelope(channel, data, now, seq, channelSeq)
	rb.Push(channelSeq, buf)

	b.hub.mu.RLock()
	for client := range b.hub.clients {
		if !client.matchesChannel(channel) {
			continue
		}
		select {
		case client.send <- buf:
		default:
		}
	}
	b.hub.mu.RUnlock()
}

// appendEnvelope builds the envelope JSON by hand; the payload is
// already JSON and this runs once per pub/sub message, so a
// json.Marshal round-trip would double the hot-path cost.
func appendEnvelope(channel string, data []byte, ts time.Time, seq, channelSeq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = ts.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	return append(buf, '}')
}

// trackLatency records bar-timestamp→fan-out latency when the payload
// carries a "ts" field. Negative deltas (clock skew) are discarded.
func (b *Broadcaster) trackLatency(now time.Time, data []byte) {
	if b.hub.Latency == nil {
		return
	}
	var partial struct {
		TS time.Time `json:"ts"`
	}
	if json.Unmarshal(data, &partial) != nil || partial.TS.IsZero() {
		return
	}
	if ms := float64(now.Sub(partial.TS).Microseconds()) / 1000.0; ms >= 0 {
		b.hub.Latency.Record(ms)
	}
}
