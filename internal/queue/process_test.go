package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"slotwatch/internal/models"
	"slotwatch/internal/portal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSlotPage(windows ...string) string {
	page := "<div class='slots'>"
	for _, w := range windows {
		page += "<button class='slot-btn'>" + w + "</button>"
	}
	return page + "</div>"
}

func statusByTvApp(t *testing.T, env *testEnv, tvAppID string) models.RetryItem {
	t.Helper()
	queue, err := env.manager.GetAll(context.Background())
	require.NoError(t, err)
	for _, item := range queue {
		if item.TvAppID == tvAppID {
			return item
		}
	}
	t.Fatalf("item %s not found in queue", tvAppID)
	return models.RetryItem{}
}

func runPass(t *testing.T, env *testEnv) {
	t.Helper()
	env.manager.opts = models.DefaultProcessingOptions()
	require.NoError(t, env.manager.runBatchPass(context.Background()))
}

func TestBatchPassBooksOpenSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.manager.Add(ctx, testItem("TV1", "07.08.2030 19:00:00"))
	require.NoError(t, err)

	env.portal.slots["07.08.2030"] = openSlotPage("19:00 - 20:00")
	env.portal.editForm = `<input name="DriverName" value="Иванов И.И."><input name="ContainerNumber" value="MSKU1234567">`

	runPass(t, env)

	item := statusByTvApp(t, env, "TV1")
	assert.Equal(t, models.StatusSuccess, item.Status)
	assert.Equal(t, models.MsgSuccess, item.StatusMessage)

	env.portal.mu.Lock()
	submits := len(env.portal.submits)
	env.portal.mu.Unlock()
	assert.Equal(t, 1, submits)

	// Exactly one notification, fired off the pass goroutine.
	select {
	case n := <-env.dispatcher.ch:
		assert.Equal(t, "TV1", n.TvAppID)
		assert.Equal(t, "07.08.2030 19:00:00", n.BookingTime)
		assert.Equal(t, "Иванов И.И.", n.DriverName)
		assert.Equal(t, "MSKU1234567", n.ContainerNumber)
	case <-time.After(2 * time.Second):
		t.Fatal("notification was never dispatched")
	}
	select {
	case <-env.dispatcher.ch:
		t.Fatal("unexpected second notification")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBatchPassClosedSlotStaysInProgress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := testItem("TV1", "07.08.2030 19:00:00")
	item.StatusColor = "#ff0000"
	_, err := env.manager.Add(ctx, item)
	require.NoError(t, err)

	env.portal.slots["07.08.2030"] = `<button disabled class='slot-btn'>19:00 - 20:00</button>`

	runPass(t, env)

	got := statusByTvApp(t, env, "TV1")
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.Empty(t, got.StatusColor)
	assert.Empty(t, env.portal.submits)
}

func TestBatchPassGroupsByDate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _ = env.manager.Add(ctx, testItem("TV1", "07.08.2030 19:00:00"))
	_, _ = env.manager.Add(ctx, testItem("TV2", "07.08.2030 20:00:00"))
	item := testItem("TV3", "08.08.2030 10:00:00")
	item.EndSlot = "08.08.2030 11:00:00"
	_, _ = env.manager.Add(ctx, item)

	// Nothing open anywhere, the pass only fetches.
	env.portal.slots["07.08.2030"] = openSlotPage()
	env.portal.slots["08.08.2030"] = openSlotPage()

	runPass(t, env)

	env.portal.mu.Lock()
	defer env.portal.mu.Unlock()
	assert.Equal(t, 1, env.portal.fetchCount["07.08.2030"])
	assert.Equal(t, 1, env.portal.fetchCount["08.08.2030"])
}

func TestBatchPassRespectsBatchSize(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _ = env.manager.Add(ctx, testItem("TV1", "07.08.2030 19:00:00"))
	_, _ = env.manager.Add(ctx, testItem("TV2", "07.08.2030 20:00:00"))

	env.portal.slots["07.08.2030"] = openSlotPage("19:00 - 20:00", "20:00 - 21:00")

	env.manager.opts = models.DefaultProcessingOptions()
	env.manager.opts.BatchSize = 1
	require.NoError(t, env.manager.runBatchPass(context.Background()))

	env.portal.mu.Lock()
	submits := len(env.portal.submits)
	env.portal.mu.Unlock()
	assert.Equal(t, 1, submits)
}

func TestBatchPassUnauthorizedFetch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _ = env.manager.Add(ctx, testItem("TV1", "07.08.2030 19:00:00"))
	_, _ = env.manager.Add(ctx, testItem("TV2", "07.08.2030 20:00:00"))

	env.portal.slotsErr["07.08.2030"] = &portal.Error{Kind: portal.KindClient, StatusCode: 401, Message: "session expired"}

	runPass(t, env)

	for _, tv := range []string{"TV1", "TV2"} {
		got := statusByTvApp(t, env, tv)
		assert.Equal(t, models.StatusAuthError, got.Status)
		assert.Equal(t, models.MsgAuthLost, got.StatusMessage)
	}

	flag, err := env.store.Get(ctx, models.UnauthorizedFlagKey)
	require.NoError(t, err)
	assert.Equal(t, "true", string(flag))
}

func TestBatchPassServerError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _ = env.manager.Add(ctx, testItem("TV1", "07.08.2030 19:00:00"))
	env.portal.slotsErr["07.08.2030"] = &portal.Error{Kind: portal.KindServer, StatusCode: 502, Message: "bad gateway"}

	runPass(t, env)

	got := statusByTvApp(t, env, "TV1")
	assert.Equal(t, models.StatusNetwork, got.Status)
	assert.Equal(t, models.MsgServerError, got.StatusMessage)

	// 5xx must not raise the unauthorized flag.
	flag, err := env.store.Get(ctx, models.UnauthorizedFlagKey)
	require.NoError(t, err)
	assert.Nil(t, flag)
}

func TestBatchPassTransportError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _ = env.manager.Add(ctx, testItem("TV1", "07.08.2030 19:00:00"))
	env.portal.slotsErr["07.08.2030"] = errors.New("dial tcp: connection refused")

	runPass(t, env)

	got := statusByTvApp(t, env, "TV1")
	assert.Equal(t, models.StatusNetwork, got.Status)
	assert.Equal(t, "dial tcp: connection refused", got.StatusMessage)
}

func TestBatchPassSubmitRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _ = env.manager.Add(ctx, testItem("TV1", "07.08.2030 19:00:00"))
	env.portal.slots["07.08.2030"] = openSlotPage("19:00 - 20:00")
	env.portal.submitResp = `<div class="alert">error: slot already taken</div>`

	runPass(t, env)

	got := statusByTvApp(t, env, "TV1")
	assert.Equal(t, models.StatusError, got.Status)
	assert.Equal(t, models.MsgSubmitRejected, got.StatusMessage)
}

func TestBatchPassAnotherTaskWon(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _ = env.manager.Add(ctx, testItem("TV1", "07.08.2030 19:00:00"))
	won := testItem("TV1", "07.08.2030 21:00:00")
	won.Status = models.StatusSuccess
	_, err := env.manager.Add(ctx, won)
	require.NoError(t, err)

	env.portal.slots["07.08.2030"] = openSlotPage("19:00 - 20:00")

	runPass(t, env)

	queue, err := env.manager.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, models.StatusAnotherTask, queue[0].Status)
	assert.Equal(t, models.MsgAnotherTask, queue[0].StatusMessage)
	assert.Empty(t, env.portal.submits)
}

func TestBatchPassExpiredWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := testItem("TV1", "07.08.2030 19:00:00")
	_, err := env.manager.Add(ctx, item)
	require.NoError(t, err)

	// Freeze time two minutes past the end of the window.
	end, perr := time.ParseInLocation("02.01.2006 15:04:05", item.EndSlot, time.Local)
	require.NoError(t, perr)
	env.manager.now = func() time.Time { return end.Add(2 * time.Minute) }

	env.portal.slots["07.08.2030"] = openSlotPage("19:00 - 20:00")

	runPass(t, env)

	got := statusByTvApp(t, env, "TV1")
	assert.Equal(t, models.StatusExpired, got.Status)
	assert.Equal(t, models.MsgExpired, got.StatusMessage)
	assert.Empty(t, env.portal.submits)
}

func TestBatchPassCurrentSlotBegan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := testItem("TV1", "07.08.2030 19:00:00")
	item.CurrentSlot = "01.08.2030 10:00:00"
	_, err := env.manager.Add(ctx, item)
	require.NoError(t, err)

	env.manager.now = func() time.Time {
		cur, _ := time.ParseInLocation("02.01.2006 15:04:05", item.CurrentSlot, time.Local)
		return cur.Add(time.Minute)
	}

	env.portal.slots["07.08.2030"] = openSlotPage("19:00 - 20:00")

	runPass(t, env)

	got := statusByTvApp(t, env, "TV1")
	assert.Equal(t, models.StatusExpired, got.Status)
	assert.Equal(t, models.MsgCurrentSlotBegan, got.StatusMessage)
	assert.Empty(t, env.portal.submits)
}

func TestTickSkippedWhenUnauthenticated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _ = env.manager.Add(ctx, testItem("TV1", "07.08.2030 19:00:00"))

	env.auth.mu.Lock()
	env.auth.authenticated = false
	env.auth.mu.Unlock()

	env.manager.opts = models.DefaultProcessingOptions()
	env.manager.tick(ctx)

	env.portal.mu.Lock()
	defer env.portal.mu.Unlock()
	assert.Empty(t, env.portal.fetchCount)
}

func TestSkipsItemWithUnparsableSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := testItem("TV1", "07.08.2030 19:00:00")
	item.Body = models.SubmitBody{Form: map[string]string{models.SlotField: "not a date"}}
	_, err := env.manager.Add(ctx, item)
	require.NoError(t, err)

	runPass(t, env)

	env.portal.mu.Lock()
	defer env.portal.mu.Unlock()
	assert.Empty(t, env.portal.fetchCount)
	got := statusByTvApp(t, env, "TV1")
	assert.Equal(t, models.StatusInProgress, got.Status)
}

func TestStartStopProcessing(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.manager.Add(context.Background(), testItem("TV1", "07.08.2030 19:00:00"))
	require.NoError(t, err)
	env.portal.slots["07.08.2030"] = `<button disabled>19:00 - 20:00</button>`

	opts := models.ProcessingOptions{
		IntervalMin:  10 * time.Millisecond,
		IntervalMax:  20 * time.Millisecond,
		BatchSize:    5,
		RetryEnabled: true,
	}
	require.NoError(t, env.manager.StartProcessing(opts))
	assert.True(t, env.manager.State().IsProcessing)

	// Second start while running is a no-op.
	require.NoError(t, env.manager.StartProcessing(opts))

	require.Eventually(t, func() bool {
		return env.manager.State().ProcessedCount > 0
	}, time.Second, 10*time.Millisecond)

	env.manager.StopProcessing()
	assert.False(t, env.manager.State().IsProcessing)

	// Stopping again must not block or panic.
	env.manager.StopProcessing()
}

func TestLoopExitsWhenRetryDisabled(t *testing.T) {
	env := newTestEnv(t)

	opts := models.ProcessingOptions{
		IntervalMin:  10 * time.Millisecond,
		IntervalMax:  10 * time.Millisecond,
		BatchSize:    5,
		RetryEnabled: false,
	}
	require.NoError(t, env.manager.StartProcessing(opts))

	require.Eventually(t, func() bool {
		return !env.manager.State().IsProcessing
	}, time.Second, 10*time.Millisecond)

	// The slot is released; a fresh start works.
	opts.RetryEnabled = true
	require.NoError(t, env.manager.StartProcessing(opts))
	env.manager.StopProcessing()
}
