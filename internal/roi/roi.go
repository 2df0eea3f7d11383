// Package roi converts an observer's region of interest into the minimal
// set of pub/sub topic operations as the observer moves across the tile
// grid.
package roi

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/Orange-OpenSource/its-client-sub000/internal/geotile"
)

// Category is a message category with its own topic subtree and
// subscription state.
type Category string

const (
	CategoryCAM  Category = "cam"
	CategoryDENM Category = "denm"
	CategoryCPM  Category = "cpm"
)

// Categories lists every message category the engine manages.
var Categories = []Category{CategoryCAM, CategoryDENM, CategoryCPM}

// Transport is the narrow pub/sub contract the engine drives.
type Transport interface {
	Subscribe(topic string) error
	Unsubscribe(topic string) error
}

type state struct {
	lastQuadKey string
	active      map[string]struct{} // topic -> subscribed
}

// Engine tracks, per category, the active quadkey topic set and the last
// observer quadkey, and diffs them into subscribe/unsubscribe calls.
// Safe for concurrent SetRoI callers.
type Engine struct {
	transport Transport
	root      string
	logger    *log.Logger

	mu     sync.Mutex
	states map[Category]*state
}

// New creates an engine publishing under the given topic root.
func New(transport Transport, topicRoot string, logger *log.Logger) *Engine {
	states := make(map[Category]*state, len(Categories))
	for _, c := range Categories {
		states[c] = &state{active: make(map[string]struct{})}
	}
	return &Engine{
		transport: transport,
		root:      topicRoot,
		logger:    logger,
		states:    states,
	}
}

// Topic renders the subscription topic for one tile of a category. A
// wildcard suffix is appended below the maximum zoom level, where the
// tile still contains finer sub-tiles carrying matching traffic.
func (e *Engine) Topic(cat Category, quadKey string) string {
	topic := fmt.Sprintf("%s/outQueue/v2x/%s/%s", e.root, cat, geotile.QuadKeyToTopic(quadKey))
	if len(quadKey) < geotile.MaxLevel {
		topic += "/#"
	}
	return topic
}

// SetRoI recomputes the topic set for the category from the observer
// position. When the observer's quadkey at the given zoom level is
// unchanged, no transport operation is issued. Otherwise tiles entering
// the set are subscribed and tiles leaving it unsubscribed; tiles in
// both sets are untouched.
//
// The tracked set only reflects operations the transport acknowledged:
// a failed subscribe is not recorded as active and a failed unsubscribe
// stays active, and the observer quadkey is not advanced, so the next
// SetRoI at the same position re-diffs and retries exactly the failed
// operations.
func (e *Engine) SetRoI(cat Category, lat, lng float64, zoomLevel int, includeNeighbors bool) error {
	st, ok := e.states[cat]
	if !ok {
		return fmt.Errorf("roi: unknown category %q", cat)
	}

	quadKey, err := geotile.LatLngToQuadKey(lat, lng, zoomLevel)
	if err != nil {
		return fmt.Errorf("roi: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if quadKey == st.lastQuadKey {
		return nil
	}

	tiles := []string{quadKey}
	if includeNeighbors {
		neighbors, err := geotile.QuadKeyToNeighbors(quadKey)
		if err != nil {
			return fmt.Errorf("roi: %w", err)
		}
		tiles = append(tiles, neighbors...)
	}

	next := make(map[string]struct{}, len(tiles))
	for _, tile := range tiles {
		next[e.Topic(cat, tile)] = struct{}{}
	}

	active := make(map[string]struct{}, len(next))
	var firstErr error
	for topic := range next {
		if _, already := st.active[topic]; already {
			active[topic] = struct{}{}
			continue
		}
		if err := e.transport.Subscribe(topic); err != nil {
			e.logger.Printf("subscribe %s failed: %v", topic, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		e.logger.Printf("subscribed %s", topic)
		active[topic] = struct{}{}
	}
	for topic := range st.active {
		if _, keep := next[topic]; keep {
			continue
		}
		if err := e.transport.Unsubscribe(topic); err != nil {
			e.logger.Printf("unsubscribe %s failed: %v", topic, err)
			if firstErr == nil {
				firstErr = err
			}
			active[topic] = struct{}{}
			continue
		}
		e.logger.Printf("unsubscribed %s", topic)
	}

	st.active = active
	if firstErr != nil {
		// Force a re-diff on the next call, wherever the observer is.
		st.lastQuadKey = ""
		return firstErr
	}
	st.lastQuadKey = quadKey
	return nil
}

// Clear unsubscribes every active topic of the category and forgets its
// observer position.
func (e *Engine) Clear(cat Category) error {
	st, ok := e.states[cat]
	if !ok {
		return fmt.Errorf("roi: unknown category %q", cat)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var firstErr error
	for topic := range st.active {
		if err := e.transport.Unsubscribe(topic); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	st.active = make(map[string]struct{})
	st.lastQuadKey = ""
	return firstErr
}

// CategoryFromTopic extracts the message category from an inbound topic
// of the form {root}/outQueue/v2x/{category}/...
func CategoryFromTopic(topic string) (Category, bool) {
	const marker = "/outQueue/v2x/"
	i := strings.Index(topic, marker)
	if i < 0 {
		return "", false
	}
	rest := topic[i+len(marker):]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		rest = rest[:j]
	}
	switch Category(rest) {
	case CategoryCAM, CategoryDENM, CategoryCPM:
		return Category(rest), true
	}
	return "", false
}
