package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdleTTL: ограничитель ключа, к которому не обращались дольше, удаляется.
const limiterIdleTTL = 10 * time.Minute

// KeyFunc выбирает ключ, по которому запросы делят общий лимит.
type KeyFunc func(r *http.Request) string

// RateLimiter ограничивает частоту запросов отдельно для каждого ключа.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	rps       rate.Limit
	burst     int
	key       KeyFunc
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter создаёт ограничитель на rps запросов в секунду с запасом burst.
func NewRateLimiter(rps float64, burst int, key KeyFunc) *RateLimiter {
	if key == nil {
		key = LoginKey
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
		key:      key,
		idleTTL:  limiterIdleTTL,
		now:      time.Now,
	}
}

// LoginKey использует логин покупателя из контекста, а для анонимных запросов: IP клиента.
func LoginKey(r *http.Request) string {
	if login, ok := GetLoginFromContext(r.Context()); ok {
		return "login:" + login
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func (l *RateLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		l.sweep(now)
	}

	e, ok := l.limiters[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.lim
}

// sweep удаляет простаивающие ограничители. Вызывается под mu не чаще раза в idleTTL.
func (l *RateLimiter) sweep(now time.Time) {
	for k, e := range l.limiters {
		if now.Sub(e.lastSeen) >= l.idleTTL {
			delete(l.limiters, k)
		}
	}
	l.lastSweep = now
}

// Middleware отвечает 429, когда ключ запроса исчерпал лимит.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.limiter(l.key(r)).Allow() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
