package rotation

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/titlepulse/titlepulse-api/internal/domain/campaign"
	"github.com/titlepulse/titlepulse-api/internal/domain/lock"
	"github.com/titlepulse/titlepulse-api/internal/domain/quota"
	"github.com/titlepulse/titlepulse-api/internal/pkg/metrics"
)

/* ---------- stubs ---------- */

type appliedRotation struct {
	id         uuid.UUID
	titleIndex int
	title      string
	next       sql.NullTime
}

type failureRecord struct {
	id        uuid.UUID
	lastError string
	autoPause bool
}

type campaignStoreStub struct {
	campaigns map[uuid.UUID]*campaign.Campaign

	// When set, FindDue returns this snapshot as-is to simulate staleness
	dueOverride []campaign.Campaign

	applied       []appliedRotation
	failures      []failureRecord
	quotaExceeded map[uuid.UUID]string
	completed     map[uuid.UUID]*campaign.FinalResults
	insufficient  []uuid.UUID
}

func newCampaignStoreStub(cs ...*campaign.Campaign) *campaignStoreStub {
	s := &campaignStoreStub{
		campaigns:     make(map[uuid.UUID]*campaign.Campaign),
		quotaExceeded: make(map[uuid.UUID]string),
		completed:     make(map[uuid.UUID]*campaign.FinalResults),
	}
	for _, c := range cs {
		s.campaigns[c.ID] = c
	}
	return s
}

func (s *campaignStoreStub) Create(_ context.Context, c *campaign.Campaign) error {
	s.campaigns[c.ID] = c
	return nil
}

func (s *campaignStoreStub) GetByID(_ context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	c, ok := s.campaigns[id]
	if !ok {
		return nil, campaign.ErrCampaignNotFound
	}
	return c, nil
}

func (s *campaignStoreStub) ListByUser(context.Context, uuid.UUID) ([]campaign.Campaign, error) {
	return nil, nil
}

func (s *campaignStoreStub) CountActiveByUser(context.Context, uuid.UUID) (int, error) {
	return 0, nil
}

func (s *campaignStoreStub) Delete(_ context.Context, id uuid.UUID) error {
	delete(s.campaigns, id)
	return nil
}

func (s *campaignStoreStub) FindDue(_ context.Context, now time.Time) ([]campaign.Campaign, error) {
	if s.dueOverride != nil {
		return s.dueOverride, nil
	}
	var due []campaign.Campaign
	for _, c := range s.campaigns {
		if c.Status == campaign.StatusActive && c.NextRotationAt.Valid && !c.NextRotationAt.Time.After(now) {
			due = append(due, *c)
		}
	}
	return due, nil
}

func (s *campaignStoreStub) ApplyRotation(_ context.Context, id uuid.UUID, titleIndex int, title string, next sql.NullTime) error {
	s.applied = append(s.applied, appliedRotation{id: id, titleIndex: titleIndex, title: title, next: next})
	c := s.campaigns[id]
	c.CurrentTitleIndex = titleIndex
	c.CurrentTitle = title
	c.NextRotationAt = next
	c.ConsecutiveErrors = 0
	return nil
}

func (s *campaignStoreStub) RecordRotationFailure(_ context.Context, id uuid.UUID, lastError string, autoPause bool) error {
	s.failures = append(s.failures, failureRecord{id: id, lastError: lastError, autoPause: autoPause})
	c := s.campaigns[id]
	c.ErrorCount++
	c.ConsecutiveErrors++
	if autoPause {
		c.Status = campaign.StatusError
		c.NextRotationAt = sql.NullTime{}
	}
	return nil
}

func (s *campaignStoreStub) MarkQuotaExceeded(_ context.Context, id uuid.UUID, lastError string) error {
	s.quotaExceeded[id] = lastError
	s.campaigns[id].Status = campaign.StatusQuotaExceeded
	return nil
}

func (s *campaignStoreStub) Pause(_ context.Context, id uuid.UUID) error {
	s.campaigns[id].Status = campaign.StatusPaused
	return nil
}

func (s *campaignStoreStub) Resume(_ context.Context, id uuid.UUID, next sql.NullTime) error {
	s.campaigns[id].Status = campaign.StatusActive
	s.campaigns[id].NextRotationAt = next
	return nil
}

func (s *campaignStoreStub) Cancel(_ context.Context, id uuid.UUID) error {
	s.campaigns[id].Status = campaign.StatusCancelled
	return nil
}

func (s *campaignStoreStub) CompleteWithResults(_ context.Context, id uuid.UUID, r *campaign.FinalResults) error {
	s.completed[id] = r
	s.campaigns[id].Status = campaign.StatusCompleted
	return nil
}

func (s *campaignStoreStub) CompleteInsufficientData(_ context.Context, id uuid.UUID) error {
	s.insufficient = append(s.insufficient, id)
	s.campaigns[id].Status = campaign.StatusCompleted
	return nil
}

type windowsStub struct {
	open       map[uuid.UUID]*Rotation
	opened     []Rotation
	closures   []Closure
	qualifying map[uuid.UUID][]Rotation
}

func newWindowsStub() *windowsStub {
	return &windowsStub{
		open:       make(map[uuid.UUID]*Rotation),
		qualifying: make(map[uuid.UUID][]Rotation),
	}
}

func (s *windowsStub) OpenWindow(_ context.Context, campaignID uuid.UUID, titleIndex int, title string, startViews int64, startedAt time.Time) error {
	r := Rotation{
		ID:           uuid.New(),
		CampaignID:   campaignID,
		TitleIndex:   titleIndex,
		Title:        title,
		StartedAt:    startedAt,
		ViewsAtStart: startViews,
	}
	s.opened = append(s.opened, r)
	s.open[campaignID] = &r
	return nil
}

func (s *windowsStub) GetOpenByCampaign(_ context.Context, campaignID uuid.UUID) (*Rotation, error) {
	return s.open[campaignID], nil
}

func (s *windowsStub) Close(_ context.Context, id uuid.UUID, c Closure) error {
	s.closures = append(s.closures, c)
	for cid, open := range s.open {
		if open.ID == id {
			delete(s.open, cid)
		}
	}
	return nil
}

func (s *windowsStub) ListByCampaign(_ context.Context, campaignID uuid.UUID) ([]Rotation, error) {
	return s.qualifying[campaignID], nil
}

func (s *windowsStub) ListQualifying(_ context.Context, campaignID uuid.UUID) ([]Rotation, error) {
	return s.qualifying[campaignID], nil
}

type lockerStub struct {
	denied   bool
	acquired []string
	released []string
}

func (s *lockerStub) Acquire(_ context.Context, resource string) (*lock.Lock, error) {
	if s.denied {
		return &lock.Lock{Acquired: false}, nil
	}
	s.acquired = append(s.acquired, resource)
	return &lock.Lock{Acquired: true, LockID: "test-token"}, nil
}

func (s *lockerStub) Release(_ context.Context, resource, lockID string) bool {
	s.released = append(s.released, resource)
	return true
}

type ledgerStub struct {
	denied  bool
	breaker bool
	usage   int64
}

func (s *ledgerStub) CheckQuota(context.Context, quota.Operation) *quota.CheckResult {
	return &quota.CheckResult{
		Allowed:              !s.denied,
		CurrentUsage:         s.usage,
		RemainingQuota:       10000 - s.usage,
		CircuitBreakerActive: s.breaker,
	}
}

func (s *ledgerStub) GetStatus(context.Context) *quota.Status {
	return &quota.Status{
		TotalQuota:           10000,
		CurrentUsage:         s.usage,
		RemainingQuota:       10000 - s.usage,
		CircuitBreakerActive: s.breaker,
	}
}

type platformStub struct {
	views     int64
	viewsErr  error
	updateErr error

	viewReads int
	updates   []string
}

func (s *platformStub) GetVideoViewCount(context.Context, uuid.UUID, string) (int64, error) {
	if s.viewsErr != nil {
		return 0, s.viewsErr
	}
	s.viewReads++
	return s.views, nil
}

func (s *platformStub) UpdateVideoTitle(_ context.Context, _ uuid.UUID, _ string, newTitle string) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates = append(s.updates, newTitle)
	return nil
}

type accountsStub struct {
	titleChanges int
	units        int64
}

func (s *accountsStub) IncrementDailyUsage(_ context.Context, _ uuid.UUID, titleChanges int, apiUnits int64) error {
	s.titleChanges += titleChanges
	s.units += apiUnits
	return nil
}

/* ---------- fixtures ---------- */

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func activeCampaign(nowT time.Time) *campaign.Campaign {
	return &campaign.Campaign{
		ID:                 uuid.New(),
		UserID:             uuid.New(),
		VideoID:            "dQw4w9WgXcQ",
		VideoTitle:         "A",
		OriginalTitle:      "Original",
		TitleVariants:      []string{"A", "B", "C"},
		RotationHours:      4,
		TotalDurationHours: 48,
		Status:             campaign.StatusActive,
		CurrentTitleIndex:  0,
		CurrentTitle:       "A",
		NextRotationAt:     sql.NullTime{Time: nowT.Add(-time.Minute), Valid: true},
		StartsAt:           nowT.Add(-8 * time.Hour),
		EndsAt:             nowT.Add(-1 * time.Hour),
	}
}

// runningCampaign is a due campaign still inside its test period
func runningCampaign(nowT time.Time) *campaign.Campaign {
	c := activeCampaign(nowT)
	c.EndsAt = nowT.Add(40 * time.Hour)
	return c
}

type engineFixture struct {
	engine    *Engine
	campaigns *campaignStoreStub
	windows   *windowsStub
	locker    *lockerStub
	ledger    *ledgerStub
	platform  *platformStub
	accounts  *accountsStub
}

func newEngineFixture(cs ...*campaign.Campaign) *engineFixture {
	f := &engineFixture{
		campaigns: newCampaignStoreStub(cs...),
		windows:   newWindowsStub(),
		locker:    &lockerStub{},
		ledger:    &ledgerStub{usage: 100},
		platform:  &platformStub{views: 1300},
		accounts:  &accountsStub{},
	}

	finalizer := NewFinalizer(f.windows, f.campaigns, f.platform)
	finalizer.now = func() time.Time { return testNow }

	f.engine = NewEngine(f.campaigns, f.windows, f.locker, f.ledger, f.platform, f.accounts, finalizer, metrics.New())
	f.engine.now = func() time.Time { return testNow }
	return f
}

/* ---------- tests ---------- */

func TestRunRotatesDueCampaign(t *testing.T) {
	c := runningCampaign(testNow)
	f := newEngineFixture(c)

	f.windows.open[c.ID] = &Rotation{
		ID:           uuid.New(),
		CampaignID:   c.ID,
		TitleIndex:   0,
		Title:        "A",
		StartedAt:    testNow.Add(-4 * time.Hour),
		ViewsAtStart: 1000,
	}

	result, err := f.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if result.Processed != 1 || result.Failed != 0 || result.Skipped != 0 {
		t.Fatalf("unexpected counts: %+v", result)
	}

	// One snapshot closes the old window and opens the new one
	if f.platform.viewReads != 1 {
		t.Fatalf("expected exactly one metric read, got %d", f.platform.viewReads)
	}
	if len(f.windows.closures) != 1 {
		t.Fatalf("expected one closed window, got %d", len(f.windows.closures))
	}
	closure := f.windows.closures[0]
	if closure.ViewsGained != 300 || closure.ViewsAtEnd != 1300 {
		t.Fatalf("unexpected closure: %+v", closure)
	}
	if !closure.ViewsPerHour.Valid || closure.ViewsPerHour.Float64 != 75 {
		t.Fatalf("expected 75 views/hour, got %+v", closure.ViewsPerHour)
	}

	if len(f.windows.opened) != 1 {
		t.Fatalf("expected one opened window, got %d", len(f.windows.opened))
	}
	opened := f.windows.opened[0]
	if opened.ViewsAtStart != closure.ViewsAtEnd {
		t.Fatalf("window boundary mismatch: opened at %d, closed at %d", opened.ViewsAtStart, closure.ViewsAtEnd)
	}
	if opened.TitleIndex != 1 || opened.Title != "B" {
		t.Fatalf("expected variant B next, got %d %q", opened.TitleIndex, opened.Title)
	}

	if len(f.campaigns.applied) != 1 {
		t.Fatalf("expected one applied rotation, got %d", len(f.campaigns.applied))
	}
	applied := f.campaigns.applied[0]
	if !applied.next.Valid || !applied.next.Time.Equal(testNow.Add(4*time.Hour)) {
		t.Fatalf("expected next rotation in 4h, got %+v", applied.next)
	}

	if f.accounts.titleChanges != 1 || f.accounts.units != 51 {
		t.Fatalf("expected 1 title change and 51 units, got %d/%d", f.accounts.titleChanges, f.accounts.units)
	}

	if len(f.locker.released) != 1 {
		t.Fatalf("expected lock released, got %v", f.locker.released)
	}
}

func TestRunRoundRobinWrapsAround(t *testing.T) {
	c := runningCampaign(testNow)
	c.CurrentTitleIndex = 2
	c.CurrentTitle = "C"
	f := newEngineFixture(c)

	if _, err := f.engine.Run(context.Background()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if len(f.windows.opened) != 1 || f.windows.opened[0].TitleIndex != 0 {
		t.Fatalf("expected wrap to variant 0, got %+v", f.windows.opened)
	}
}

func TestRunClipsLastRotationToEndDate(t *testing.T) {
	c := runningCampaign(testNow)
	c.EndsAt = testNow.Add(2 * time.Hour)
	f := newEngineFixture(c)

	if _, err := f.engine.Run(context.Background()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	applied := f.campaigns.applied[0]
	if !applied.next.Time.Equal(c.EndsAt) {
		t.Fatalf("expected next rotation clipped to end date, got %v", applied.next.Time)
	}
}

func TestRunSkipsWhenLockHeld(t *testing.T) {
	c := runningCampaign(testNow)
	f := newEngineFixture(c)
	f.locker.denied = true

	result, err := f.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if result.Skipped != 1 || result.Processed != 0 {
		t.Fatalf("expected skip on lock contention, got %+v", result)
	}
	if f.platform.viewReads != 0 || len(f.platform.updates) != 0 {
		t.Fatal("expected no platform calls under contention")
	}
}

func TestRunSkipsCampaignPausedSinceQuery(t *testing.T) {
	c := runningCampaign(testNow)
	f := newEngineFixture(c)

	// Simulate a pause landing between the due query and the locked re-read
	f.campaigns.dueOverride = []campaign.Campaign{*c}
	c.Status = campaign.StatusPaused

	result, _ := f.engine.Run(context.Background())
	if result.Skipped != 1 || result.Processed != 0 {
		t.Fatalf("expected stale campaign skipped, got %+v", result)
	}
	if f.platform.viewReads != 0 {
		t.Fatal("expected no platform calls for a stale campaign")
	}
}

func TestRunCircuitBreakerSkipsCycle(t *testing.T) {
	c := runningCampaign(testNow)
	f := newEngineFixture(c)
	f.ledger.denied = true
	f.ledger.breaker = true
	f.ledger.usage = 9600

	result, err := f.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if result.Processed != 0 || result.Failed != 0 {
		t.Fatalf("expected cycle short-circuit, got %+v", result)
	}
	if len(f.locker.acquired) != 0 {
		t.Fatal("expected no lock attempts with the breaker active")
	}
	if f.platform.viewReads != 0 {
		t.Fatal("expected no platform calls with the breaker active")
	}
	if c.Status != campaign.StatusActive {
		t.Fatalf("expected campaign left untouched, got %s", c.Status)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected a cycle-level note, got %v", result.Errors)
	}
}

func TestRunQuotaDeniedParksCampaign(t *testing.T) {
	c := runningCampaign(testNow)
	f := newEngineFixture(c)
	f.ledger.denied = true
	f.ledger.usage = 9950

	result, err := f.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if result.Skipped != 1 || result.Failed != 0 {
		t.Fatalf("expected quota block counted as skip, got %+v", result)
	}
	if _, ok := f.campaigns.quotaExceeded[c.ID]; !ok {
		t.Fatal("expected campaign marked quota exceeded")
	}
	if c.Status != campaign.StatusQuotaExceeded {
		t.Fatalf("expected QUOTA_EXCEEDED status, got %s", c.Status)
	}
	if len(f.platform.updates) != 0 {
		t.Fatal("expected no title update call")
	}
}

func TestRunRecordsFailureWithoutAutoPause(t *testing.T) {
	c := runningCampaign(testNow)
	f := newEngineFixture(c)
	f.platform.updateErr = errors.New("api: backend error")

	result, _ := f.engine.Run(context.Background())

	if result.Failed != 1 {
		t.Fatalf("expected one failure, got %+v", result)
	}
	if len(f.campaigns.failures) != 1 {
		t.Fatalf("expected one failure record, got %d", len(f.campaigns.failures))
	}
	if f.campaigns.failures[0].autoPause {
		t.Fatal("first failure must not auto-pause")
	}
	if c.Status != campaign.StatusActive {
		t.Fatalf("expected campaign still active, got %s", c.Status)
	}
}

func TestRunAutoPausesAfterConsecutiveErrors(t *testing.T) {
	c := runningCampaign(testNow)
	c.ConsecutiveErrors = campaign.MaxConsecutiveErrors - 1
	f := newEngineFixture(c)
	f.platform.updateErr = errors.New("api: backend error")

	result, _ := f.engine.Run(context.Background())

	if result.Failed != 1 {
		t.Fatalf("expected one failure, got %+v", result)
	}
	if len(f.campaigns.failures) != 1 || !f.campaigns.failures[0].autoPause {
		t.Fatalf("expected auto-pause on the third consecutive error, got %+v", f.campaigns.failures)
	}
	if c.Status != campaign.StatusError {
		t.Fatalf("expected ERROR status, got %s", c.Status)
	}
}

func TestRunFinalizesEndedCampaign(t *testing.T) {
	c := activeCampaign(testNow) // EndsAt already in the past
	f := newEngineFixture(c)

	f.windows.open[c.ID] = &Rotation{
		ID:           uuid.New(),
		CampaignID:   c.ID,
		TitleIndex:   2,
		Title:        "C",
		StartedAt:    testNow.Add(-4 * time.Hour),
		ViewsAtStart: 1200,
	}
	f.windows.qualifying[c.ID] = []Rotation{
		window(0, "A", 14400, 30),
		window(1, "B", 14400, 60),
	}

	result, err := f.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if result.Processed != 1 {
		t.Fatalf("expected finalization counted as processed, got %+v", result)
	}

	res, ok := f.campaigns.completed[c.ID]
	if !ok {
		t.Fatal("expected campaign completed")
	}
	if res.WinningTitle != "B" {
		t.Fatalf("expected B to win, got %q", res.WinningTitle)
	}
	if len(f.platform.updates) != 0 {
		t.Fatal("finalization must not rotate the title")
	}
}

func TestRunEmptyCycle(t *testing.T) {
	f := newEngineFixture()

	result, err := f.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if result.Processed != 0 || result.Failed != 0 || result.Skipped != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
	if result.Quota == nil {
		t.Fatal("expected quota status in result")
	}
}
