package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrTicketLocked means another evaluation holds the ticket.
var ErrTicketLocked = errors.New("ticket is being evaluated elsewhere")

// TicketLocker serializes escalation evaluation per ticket. Lock never
// blocks: a held ticket yields ErrTicketLocked.
type TicketLocker interface {
	Lock(ctx context.Context, ticketID string) (unlock func(), err error)
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

type redisTicketLocker struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisTicketLocker locks across processes with SET NX PX. The ttl bounds
// how long a crashed holder can keep a ticket.
func NewRedisTicketLocker(client *redis.Client, ttl time.Duration) TicketLocker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &redisTicketLocker{client: client, ttl: ttl, prefix: "escalation:lock:"}
}

func (l *redisTicketLocker) Lock(ctx context.Context, ticketID string) (func(), error) {
	key := l.prefix + ticketID
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTicketLocked
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}, nil
}

type localTicketLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalTicketLocker locks within this process only.
func NewLocalTicketLocker() TicketLocker {
	return &localTicketLocker{held: make(map[string]struct{})}
}

func (l *localTicketLocker) Lock(_ context.Context, ticketID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[ticketID]; busy {
		return nil, ErrTicketLocked
	}
	l.held[ticketID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, ticketID)
			l.mu.Unlock()
		})
	}, nil
}
