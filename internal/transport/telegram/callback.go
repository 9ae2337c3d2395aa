package telegram

import (
	"strconv"
	"strings"
	"sync"

	"pushgate/internal/host"
)

// Telegram caps callback data at 64 bytes, so buttons carry a short key into
// recent instead of the notification itself.
const (
	dataPrefix  = "pg"
	historySize = 300
	textLimit   = 4000
)

func encodeData(action, key string) string {
	return dataPrefix + ":" + action + ":" + key
}

func decodeData(s string) (action, key string, ok bool) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] != dataPrefix || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// recent remembers the last n presentations by key, oldest evicted first.
type recent struct {
	mu    sync.Mutex
	seq   uint64
	limit int
	order []string
	items map[string]host.Presentation
}

func newRecent(limit int) *recent {
	return &recent{limit: limit, items: map[string]host.Presentation{}}
}

func (r *recent) put(p host.Presentation) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	key := strconv.FormatUint(r.seq, 36)
	r.items[key] = p
	r.order = append(r.order, key)
	if len(r.order) > r.limit {
		delete(r.items, r.order[0])
		r.order = r.order[1:]
	}
	return key
}

func (r *recent) get(key string) (host.Presentation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.items[key]
	return p, ok
}

// splitText cuts long log text into chunks Telegram accepts, preferring
// newline boundaries.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start+limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
