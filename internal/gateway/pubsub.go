package gateway

import (
	"context"
	"log"

	goredis "github.com/go-redis/redis/v8"
)

// PubSubRouter bridges Redis pub/sub into the hub's broadcaster. Bar
// channels are subscribed explicitly (the TF/symbol set is fixed at
// startup); filter channels come in through a wildcard pattern so
// filters added at runtime reach clients without a resubscribe. The
// two namespaces are disjoint, so no message arrives twice.
type PubSubRouter struct {
	hub *Hub
}

// NewPubSubRouter creates a PubSubRouter backed by the given Hub.
func NewPubSubRouter(hub *Hub) *PubSubRouter {
	return &PubSubRouter{hub: hub}
}

// RunExplicit consumes the fixed bar channels until ctx is cancelled.
func (r *PubSubRouter) RunExplicit(ctx context.Context) {
	channels := r.hub.buildChannels()
	if len(channels) == 0 {
		log.Println("[gateway] WARNING: no explicit channels to subscribe to")
		return
	}

	sub := r.hub.Rdb.Subscribe(ctx, channels...)
	defer sub.Close()
	log.Printf("[gateway] subscribed to %d PubSub channels", len(channels))

	r.pump(ctx, sub)
}

// RunPattern consumes the filter-result wildcard until ctx is cancelled.
func (r *PubSubRouter) RunPattern(ctx context.Context) {
	sub := r.hub.Rdb.PSubscribe(ctx, "pub:alf:*")
	defer sub.Close()

	r.pump(ctx, sub)
}

func (r *PubSubRouter) pump(ctx context.Context, sub *goredis.PubSub) {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.hub.broadcast(msg.Channel, []byte(msg.Payload))
		}
	}
}
