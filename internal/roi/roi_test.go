package roi

import (
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Orange-OpenSource/its-client-sub000/internal/geotile"
)

type fakeTransport struct {
	subscribed   []string
	unsubscribed []string
	failSub      map[string]bool
	failUnsub    map[string]bool
}

func (f *fakeTransport) Subscribe(topic string) error {
	if f.failSub[topic] {
		return errors.New("subscribe refused")
	}
	f.subscribed = append(f.subscribed, topic)
	return nil
}

func (f *fakeTransport) Unsubscribe(topic string) error {
	if f.failUnsub[topic] {
		return errors.New("unsubscribe refused")
	}
	f.unsubscribed = append(f.unsubscribed, topic)
	return nil
}

func (f *fakeTransport) reset() {
	f.subscribed = nil
	f.unsubscribed = nil
}

func discard() *log.Logger { return log.New(io.Discard, "", 0) }

const (
	parisLat = 48.8566
	parisLng = 2.3522
)

func TestTopicFormat(t *testing.T) {
	e := New(&fakeTransport{}, "its", discard())

	// Below the maximum zoom level the tile still has sub-tiles, so the
	// topic carries a wildcard tail.
	assert.Equal(t, "its/outQueue/v2x/cam/1/2/0/2/#", e.Topic(CategoryCAM, "1202"))

	deepest := strings.Repeat("0", geotile.MaxLevel)
	topic := e.Topic(CategoryDENM, deepest)
	assert.False(t, strings.HasSuffix(topic, "/#"))
	assert.True(t, strings.HasPrefix(topic, "its/outQueue/v2x/denm/0/0/"))
}

func TestSetRoISubscribesTile(t *testing.T) {
	tr := &fakeTransport{}
	e := New(tr, "its", discard())

	require.NoError(t, e.SetRoI(CategoryCAM, parisLat, parisLng, 4, false))
	assert.Equal(t, []string{"its/outQueue/v2x/cam/1/2/0/2/#"}, tr.subscribed)
	assert.Empty(t, tr.unsubscribed)
}

func TestSetRoIIdempotent(t *testing.T) {
	tr := &fakeTransport{}
	e := New(tr, "its", discard())

	require.NoError(t, e.SetRoI(CategoryCAM, parisLat, parisLng, 10, true))
	before := len(tr.subscribed)
	require.Equal(t, 9, before)

	// Same tile, slightly different position: nothing happens.
	tr.reset()
	require.NoError(t, e.SetRoI(CategoryCAM, parisLat+1e-7, parisLng, 10, true))
	assert.Empty(t, tr.subscribed)
	assert.Empty(t, tr.unsubscribed)
}

func TestSetRoIMoveTouchesOnlyTheDifference(t *testing.T) {
	tr := &fakeTransport{}
	e := New(tr, "its", discard())

	// Two observer positions one tile apart horizontally at level 4
	// (tiles span 22.5 degrees of longitude there).
	require.NoError(t, e.SetRoI(CategoryCAM, parisLat, parisLng, 4, true))
	require.Len(t, tr.subscribed, 9)
	firstSet := append([]string(nil), tr.subscribed...)

	tr.reset()
	require.NoError(t, e.SetRoI(CategoryCAM, parisLat, parisLng+22.5, 4, true))

	// Adjacent 3x3 windows share 6 tiles: 3 enter, 3 leave.
	assert.Len(t, tr.subscribed, 3)
	assert.Len(t, tr.unsubscribed, 3)
	for _, topic := range tr.subscribed {
		assert.NotContains(t, firstSet, topic, "entering tile was already subscribed")
	}
	for _, topic := range tr.unsubscribed {
		assert.Contains(t, firstSet, topic, "leaving tile was never subscribed")
	}
}

func TestSetRoICategoriesIndependent(t *testing.T) {
	tr := &fakeTransport{}
	e := New(tr, "its", discard())

	require.NoError(t, e.SetRoI(CategoryCAM, parisLat, parisLng, 4, false))
	require.NoError(t, e.SetRoI(CategoryDENM, parisLat, parisLng, 4, false))

	assert.Equal(t, []string{
		"its/outQueue/v2x/cam/1/2/0/2/#",
		"its/outQueue/v2x/denm/1/2/0/2/#",
	}, tr.subscribed)
}

func TestSetRoIInvalidInput(t *testing.T) {
	tr := &fakeTransport{}
	e := New(tr, "its", discard())

	assert.Error(t, e.SetRoI(CategoryCAM, parisLat, parisLng, 0, false))
	assert.Error(t, e.SetRoI(CategoryCAM, 91, parisLng, 4, false))
	assert.Error(t, e.SetRoI(Category("ivim"), parisLat, parisLng, 4, false))
	assert.Empty(t, tr.subscribed)
}

func TestSetRoISubscribeFailureReported(t *testing.T) {
	tr := &fakeTransport{failSub: map[string]bool{"its/outQueue/v2x/cam/1/2/0/2/#": true}}
	e := New(tr, "its", discard())

	err := e.SetRoI(CategoryCAM, parisLat, parisLng, 4, false)
	assert.Error(t, err)
}

func TestSetRoIRetriesAfterSubscribeFailure(t *testing.T) {
	topic := "its/outQueue/v2x/cam/1/2/0/2/#"
	tr := &fakeTransport{failSub: map[string]bool{topic: true}}
	e := New(tr, "its", discard())

	require.Error(t, e.SetRoI(CategoryCAM, parisLat, parisLng, 4, false))
	require.Empty(t, tr.subscribed)

	// Broker recovers: the identical position must not hit the no-op
	// guard, the missing tile gets subscribed.
	tr.failSub = nil
	require.NoError(t, e.SetRoI(CategoryCAM, parisLat, parisLng, 4, false))
	assert.Equal(t, []string{topic}, tr.subscribed)

	// Once the set is complete the no-op guard applies again.
	tr.reset()
	require.NoError(t, e.SetRoI(CategoryCAM, parisLat, parisLng, 4, false))
	assert.Empty(t, tr.subscribed)
}

func TestSetRoIPartialSubscribeFailureRetriesOnlyMissing(t *testing.T) {
	tr := &fakeTransport{}
	e := New(tr, "its", discard())

	// Pick one neighbor topic to fail by letting a clean engine compute
	// the full window first.
	probeTr := &fakeTransport{}
	probe := New(probeTr, "its", discard())
	require.NoError(t, probe.SetRoI(CategoryCAM, parisLat, parisLng, 10, true))
	require.Len(t, probeTr.subscribed, 9)
	failed := probeTr.subscribed[3]

	tr.failSub = map[string]bool{failed: true}
	require.Error(t, e.SetRoI(CategoryCAM, parisLat, parisLng, 10, true))
	require.Len(t, tr.subscribed, 8)

	tr.failSub = nil
	tr.reset()
	require.NoError(t, e.SetRoI(CategoryCAM, parisLat, parisLng, 10, true))
	assert.Equal(t, []string{failed}, tr.subscribed, "only the failed tile is retried")
	assert.Empty(t, tr.unsubscribed)
}

func TestSetRoIKeepsTopicOnUnsubscribeFailure(t *testing.T) {
	tr := &fakeTransport{}
	e := New(tr, "its", discard())

	old := "its/outQueue/v2x/cam/1/2/0/2/#"
	require.NoError(t, e.SetRoI(CategoryCAM, parisLat, parisLng, 4, false))
	require.Equal(t, []string{old}, tr.subscribed)

	// Moving away while the broker refuses the unsubscribe: the stale
	// topic stays tracked.
	tr.failUnsub = map[string]bool{old: true}
	tr.reset()
	require.Error(t, e.SetRoI(CategoryCAM, parisLat, parisLng+22.5, 4, false))
	require.Len(t, tr.subscribed, 1)
	require.Empty(t, tr.unsubscribed)

	// On recovery the same position re-diffs and finally drops it.
	tr.failUnsub = nil
	tr.reset()
	require.NoError(t, e.SetRoI(CategoryCAM, parisLat, parisLng+22.5, 4, false))
	assert.Empty(t, tr.subscribed, "new tile is already subscribed")
	assert.Equal(t, []string{old}, tr.unsubscribed)
}

func TestClear(t *testing.T) {
	tr := &fakeTransport{}
	e := New(tr, "its", discard())

	require.NoError(t, e.SetRoI(CategoryCPM, parisLat, parisLng, 10, true))
	require.Len(t, tr.subscribed, 9)

	tr.reset()
	require.NoError(t, e.Clear(CategoryCPM))
	assert.Len(t, tr.unsubscribed, 9)

	// After a clear the same position subscribes again.
	tr.reset()
	require.NoError(t, e.SetRoI(CategoryCPM, parisLat, parisLng, 10, true))
	assert.Len(t, tr.subscribed, 9)
}

func TestCategoryFromTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  Category
		ok    bool
	}{
		{"its/outQueue/v2x/cam/1/2/0/2/2/0/0/1/1/0", CategoryCAM, true},
		{"its/outQueue/v2x/denm/1/2/0/2", CategoryDENM, true},
		{"its/outQueue/v2x/denm/6a2cba41-bd82-4d66-b63e-97b6cfc4b689", CategoryDENM, true},
		{"its/outQueue/v2x/cpm/1", CategoryCPM, true},
		{"its/outQueue/v2x/cpm", CategoryCPM, true},
		{"its/outQueue/v2x/ivim/1/2", "", false},
		{"its/inQueue/v2x/cam/1/2", "", false},
		{"garbage", "", false},
	}

	for _, test := range tests {
		t.Run(test.topic, func(t *testing.T) {
			got, ok := CategoryFromTopic(test.topic)
			assert.Equal(t, test.ok, ok)
			assert.Equal(t, test.want, got)
		})
	}
}
