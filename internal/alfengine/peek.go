package alfengine

import (
	"context"
	"log"
)

// peekLoop subscribes to the forming-bar PubSub pattern for live filter
// previews. Used only with the Redis source — the live feed delivers
// forming bars on the same socket as completed ones.
func (svc *Service) peekLoop(ctx context.Context) {
	if err := svc.redisReader.SubscribeFormingBars(ctx, svc.barCh); err != nil {
		log.Printf("[alfengine] forming-bar subscription error: %v", err)
	}
}
