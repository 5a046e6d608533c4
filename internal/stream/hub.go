package stream

import (
	"context"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Hub fans walk updates out to websocket clients keyed by submitter
// address. With Redis configured, every update goes through pub/sub so
// clients connected to other replicas receive it too.
type Hub struct {
	redis   *redis.Client
	pubsub  *redis.PubSub
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	Address string
	Send    chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		ctx := context.Background()
		pubsub := redisClient.PSubscribe(ctx, redisPattern)
		if _, err := pubsub.Receive(ctx); err != nil {
			log.Printf("redis subscribe error, broadcasting locally: %v", err)
			_ = pubsub.Close()
			h.redis = nil
		} else {
			h.pubsub = pubsub
			go h.forwardRedis(pubsub)
		}
	}
	return h
}

func (h *Hub) Register(address string) *Client {
	client := &Client{
		Address: address,
		Send:    make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[address] == nil {
		h.clients[address] = map[*Client]struct{}{}
	}
	h.clients[address][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if addressClients, ok := h.clients[client.Address]; ok {
		if _, registered := addressClients[client]; !registered {
			return
		}
		delete(addressClients, client)
		if len(addressClients) == 0 {
			delete(h.clients, client.Address)
		}
		close(client.Send)
	}
}

func (h *Hub) Broadcast(address string, payload []byte) {
	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(address), payload).Err()
		if err == nil {
			return
		}
		log.Printf("redis publish error: %v", err)
	}
	h.deliver(address, payload)
}

// Close stops the Redis subscription. Local delivery keeps working.
func (h *Hub) Close() error {
	if h.pubsub == nil {
		return nil
	}
	return h.pubsub.Close()
}

func (h *Hub) deliver(address string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[address] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) forwardRedis(pubsub *redis.PubSub) {
	for msg := range pubsub.Channel() {
		address := addressFromChannel(msg.Channel)
		if address == "" {
			continue
		}
		h.deliver(address, []byte(msg.Payload))
	}
}

const (
	channelPrefix = "walks:"
	channelSuffix = ":broadcast"
	redisPattern  = channelPrefix + "*" + channelSuffix
)

func redisChannel(address string) string {
	return channelPrefix + address + channelSuffix
}

func addressFromChannel(ch string) string {
	// walks:{address}:broadcast
	if len(ch) <= len(channelPrefix)+len(channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
