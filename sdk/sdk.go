// Package sdk is the entry point of the Swrve Smart-TV SDK. An SDK value owns
// the current user, the event queue and the campaigns of one app, and keeps
// them in step with the Swrve backend.
package sdk

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/Swrve/swrve-smarttv-sdk/internal/campaigns"
	"github.com/Swrve/swrve-smarttv-sdk/internal/clock"
	"github.com/Swrve/swrve-smarttv-sdk/internal/config"
	"github.com/Swrve/swrve-smarttv-sdk/internal/events"
	"github.com/Swrve/swrve-smarttv-sdk/internal/geo"
	"github.com/Swrve/swrve-smarttv-sdk/internal/metrics"
	"github.com/Swrve/swrve-smarttv-sdk/internal/models"
	"github.com/Swrve/swrve-smarttv-sdk/internal/network"
	"github.com/Swrve/swrve-smarttv-sdk/internal/profile"
	"github.com/Swrve/swrve-smarttv-sdk/internal/resources"
	"github.com/Swrve/swrve-smarttv-sdk/internal/scheduler"
	"github.com/Swrve/swrve-smarttv-sdk/internal/storage"
	"github.com/Swrve/swrve-smarttv-sdk/internal/transport"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Version is reported in the swrve.sdk_version device property.
const Version = "SmartTV 1.0.0"

var (
	ErrInvalidEventName   = errors.New("invalid event name: names containing swrve are reserved")
	ErrAlreadyInitialized = errors.New("sdk already initialized")
)

type (
	Campaign        = models.Campaign
	EmbeddedMessage = models.EmbeddedMessage
	Button          = models.Button
	Resource        = models.Resource
	ResourceDiff    = models.ResourceDiff
	Reward          = models.Reward
	UserInfo        = models.UserInfo
	Candidate       = models.Candidate
	Displayer       = campaigns.Displayer
)

// State is the lifecycle state of an SDK.
type State int

const (
	StateUninitialized State = iota
	StateActive
	StatePaused
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Transport is the backend the SDK talks to.
type Transport interface {
	events.Sender
	Campaigns(ctx context.Context) (*models.CampaignsResponse, string, error)
	ResourcesDiff(ctx context.Context) ([]models.ResourceDiff, error)
	Identify(ctx context.Context, externalID, swrveID string) (*models.IdentityResponse, error)
}

// PersonalizationProvider supplies message personalization properties for
// the payload of the event that triggered a message.
type PersonalizationProvider func(eventPayload map[string]any) map[string]string

// Dependencies are the collaborators of an SDK. Every field is optional.
type Dependencies struct {
	Storage    storage.Backend
	Platform   Platform
	Displayer  campaigns.Displayer
	Downloader campaigns.Downloader
	HTTPClient *http.Client
	Network    network.Watcher
	Archive    events.Archiver
	Geo        *geo.Resolver
	Transport  Transport
	Clock      clock.Clock
	Rand       campaigns.Rand
	NewID      func() string
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

type callbacks struct {
	campaignLoaded  func()
	resourcesLoaded func([]Resource)
	customButton    func(action string)
	iamDismissed    func()
	personalization PersonalizationProvider
}

// SDK is a Swrve client for one app and one device. It is safe for
// concurrent use.
type SDK struct {
	cfg     config.SDKConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
	clock   clock.Clock

	store     *storage.Store
	profile   *profile.Manager
	queue     *events.Queue
	campaigns *campaigns.Store
	resources *resources.Manager
	realtime  *resources.RealTimeProperties
	transport Transport
	platform  Platform
	network   network.Watcher
	flush     *scheduler.Ticker

	device      DeviceInfo
	installDate string

	// background work outlives the caller's context and ends at Shutdown
	ctx    context.Context
	cancel context.CancelFunc

	mu                        sync.Mutex
	state                     State
	flushFrequency            time.Duration
	autoShow                  bool
	autoShowUntil             time.Time
	identifiedOnAnotherDevice bool
	campaignRetry             network.Handle
	identifyRetry             network.Handle
	cb                        callbacks
}

// New validates cfg and builds an SDK for the user of the last run, or for a
// new anonymous user. Call Init to start it.
func New(cfg config.SDKConfig, deps Dependencies) (*SDK, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate sdk config: %w", err)
	}

	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Storage == nil {
		deps.Storage = storage.NewMemoryBackend()
	}
	if deps.Platform == nil {
		deps.Platform = NewStaticPlatform(config.Default().Device)
	}
	if deps.Network == nil {
		deps.Network = network.NewMonitor(deps.Logger)
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(deps.Clock.Now().UnixNano()))
	}
	if deps.Downloader == nil {
		deps.Downloader = campaigns.HTTPDownloader{Client: deps.HTTPClient}
	}

	logger := deps.Logger
	ctx, cancel := context.WithCancel(context.Background())
	s := &SDK{
		cfg:            cfg,
		logger:         logger,
		metrics:        deps.Metrics,
		clock:          deps.Clock,
		store:          storage.New(deps.Storage, logger),
		platform:       deps.Platform,
		network:        deps.Network,
		ctx:            ctx,
		cancel:         cancel,
		flushFrequency: cfg.DefaultFlushFrequency,
		autoShow:       true,
	}

	s.installDate = s.loadInstallDate(ctx)

	userID, ok := profile.StoredUserID(ctx, s.store)
	if !ok {
		userID = deps.NewID()
	}
	logger.Debug("last user id", zap.String("user_id", userID), zap.Bool("restored", ok))

	s.profile = profile.NewManager(ctx, s.store, userID, profile.Options{
		AppID:              cfg.AppID,
		APIKey:             cfg.APIKey,
		NewSessionInterval: cfg.NewSessionInterval,
		Clock:              deps.Clock,
		Logger:             logger,
		NewID:              deps.NewID,
	})

	s.device = s.resolveDevice(ctx, deps.NewID, deps.Geo)

	s.transport = deps.Transport
	if s.transport == nil {
		s.transport = transport.NewClient(cfg, transport.Device{
			ID:        s.device.ID,
			Language:  s.device.Language,
			AppStore:  s.device.AppStore,
			OSVersion: s.device.OSVersion,
			Width:     s.device.Width,
			Height:    s.device.Height,
			DPI:       s.device.DPI,
		}, s.profile, deps.HTTPClient, logger, deps.Metrics)
	}

	s.queue = events.NewQueue(s.store, s.transport, logger, deps.Metrics)
	if deps.Archive != nil {
		s.queue.SetArchive(deps.Archive)
	}

	s.campaigns = campaigns.NewStore(s.store, campaigns.Options{
		Clock:     deps.Clock,
		Rand:      deps.Rand,
		Assets:    campaigns.NewAssetManager(deps.Downloader, cfg.AssetDownloadWorkers, logger, deps.Metrics),
		Displayer: deps.Displayer,
		Logger:    logger,
		Metrics:   deps.Metrics,
	})
	s.resources = resources.NewManager(s.store, logger)
	s.realtime = resources.NewRealTimeProperties(s.store, logger)

	s.campaigns.LoadFromStorage(ctx, userID)
	s.realtime.Load(ctx, userID)

	s.flush = scheduler.NewTicker("flush", s.handleUpdate, logger)
	return s, nil
}

// ===========================================
// LIFECYCLE
// ===========================================

// Init starts the SDK. A pending identify call from an earlier run is
// resumed first. In managed mode the SDK stays paused until Start.
func (s *SDK) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateUninitialized {
		s.mu.Unlock()
		return ErrAlreadyInitialized
	}
	s.state = StateActive
	s.mu.Unlock()

	if err := s.profile.StoreCurrentUserID(ctx); err != nil {
		s.logger.Warn("failed to store user id", zap.Error(err))
	}
	s.queueDeviceProperties(ctx)

	if s.isIdentifyCallPending(ctx) {
		externalID, _ := s.store.Lookup(ctx, storage.KeyIdentifyCallPendingExtID)
		swrveID, _ := s.store.Lookup(ctx, storage.KeyIdentifyCallPending)
		s.logger.Info("resuming pending identify call", zap.String("swrve_id", swrveID))
		switched, err := s.makeIdentityCall(ctx, externalID, s.profile.UserID(), swrveID, nil)
		if err != nil || !switched {
			s.initSDK(ctx)
		}
		s.startTimer()
		return nil
	}

	if s.cfg.ManagedMode {
		s.logger.Debug("started in managed mode, call Start to begin tracking")
		s.Stop()
		return nil
	}

	s.initSDK(ctx)
	s.startTimer()
	return nil
}

// initSDK queues the session events of a new session, opens the auto-show
// window and syncs with the backend.
func (s *SDK) initSDK(ctx context.Context) {
	s.mu.Lock()
	s.autoShow = false
	s.mu.Unlock()

	if !s.profile.HasSessionRestored() {
		s.queueSessionStart(ctx)
		s.checkFirstUserInitiated(ctx)
		s.mu.Lock()
		s.autoShow = true
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.autoShowUntil = s.clock.Now().Add(s.cfg.AutoShowMaxDelay)
	s.mu.Unlock()

	s.sendQueuedEvents(ctx, s.profile.UserID(), true)
}

// startNewSession resumes the SDK on the current user with a fresh session.
func (s *SDK) startNewSession(ctx context.Context) {
	s.logger.Info("start new session", zap.String("user_id", s.profile.UserID()))

	s.mu.Lock()
	if s.state != StateShutdown {
		s.state = StateActive
	}
	s.autoShow = true
	s.mu.Unlock()

	s.initSDK(ctx)
	s.queueDeviceProperties(ctx)
	s.startTimer()
}

// Start resumes a managed SDK, switching to userID when it is not the
// current user. It is an error to call Start outside managed mode.
func (s *SDK) Start(ctx context.Context, userID string) {
	if !s.cfg.ManagedMode {
		s.logger.Error("Start can only be called when managed mode is enabled")
		return
	}

	if userID != "" && userID != s.profile.UserID() {
		s.StopAndSwitchUser(ctx, userID)
		return
	}
	if s.resume() {
		s.initSDK(ctx)
		s.startTimer()
		return
	}
	s.logger.Info("already running", zap.String("user_id", s.profile.UserID()))
}

// StopAndSwitchUser pauses a managed SDK and restarts it as userID.
func (s *SDK) StopAndSwitchUser(ctx context.Context, userID string) {
	if !s.cfg.ManagedMode {
		s.logger.Error("StopAndSwitchUser can only be called when managed mode is enabled")
		return
	}
	s.Stop()
	s.switchUser(ctx, userID)
}

// Stop pauses the SDK: events are ignored and the flush timer stops.
func (s *SDK) Stop() {
	s.mu.Lock()
	if s.state != StateShutdown {
		s.state = StatePaused
	}
	s.mu.Unlock()
	s.flush.Stop()
}

// Shutdown persists the queue and stops all background work. QA users
// flagged for device reset lose their campaign state.
func (s *SDK) Shutdown(ctx context.Context) {
	s.mu.Lock()
	s.state = StateShutdown
	campaignRetry, identifyRetry := s.campaignRetry, s.identifyRetry
	s.campaignRetry, s.identifyRetry = 0, 0
	s.mu.Unlock()

	userID := s.profile.UserID()
	s.profile.SaveBeforeSessionEnd(ctx)
	s.queue.PersistAndClear(ctx, userID)
	s.flush.Stop()
	if campaignRetry != 0 {
		s.network.Unwatch(campaignRetry)
	}
	if identifyRetry != 0 {
		s.network.Unwatch(identifyRetry)
	}
	s.profile.ClearETag(ctx)

	if qa := s.profile.QAUser(); qa != nil && qa.ResetDeviceState {
		s.logger.Info("clearing campaign state for QA user", zap.String("user_id", userID))
		s.campaigns.ResetState()
		s.campaigns.ClearStoredState(ctx, userID)
	}

	s.campaigns.WaitForAssets()
	s.cancel()
	s.logger.Info("sdk shut down", zap.String("user_id", userID))
}

// SaveToStorage persists the in-memory queue and the session end.
func (s *SDK) SaveToStorage(ctx context.Context) {
	s.profile.SaveBeforeSessionEnd(ctx)
	s.queue.PersistAndClear(ctx, s.profile.UserID())
}

// IsStarted reports whether the SDK is tracking events.
func (s *SDK) IsStarted() bool {
	return s.State() == StateActive
}

// State returns the lifecycle state.
func (s *SDK) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UserInfo describes the current user.
func (s *SDK) UserInfo() UserInfo {
	u := s.profile.CurrentUser()
	return UserInfo{UserID: u.UserID, FirstUse: u.FirstUse, SessionStart: u.SessionStart, IsQAUser: u.IsQAUser}
}

// Device returns the device description sent to the backend.
func (s *SDK) Device() DeviceInfo {
	return s.device
}

func (s *SDK) paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StatePaused || s.state == StateShutdown
}

func (s *SDK) pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateShutdown {
		s.state = StatePaused
	}
}

func (s *SDK) unpause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePaused {
		s.state = StateActive
	}
}

// resume unpauses and reports whether the SDK was paused.
func (s *SDK) resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused {
		return false
	}
	s.state = StateActive
	return true
}

// ===========================================
// FLUSH TIMER
// ===========================================

// startTimer starts the flush timer at the last known frequency unless it
// is already running.
func (s *SDK) startTimer() {
	if s.flush.Running() {
		return
	}
	s.mu.Lock()
	freq := s.flushFrequency
	s.mu.Unlock()
	s.updateTimer(freq)
}

// updateTimer starts the flush timer, or moves it to a new frequency.
func (s *SDK) updateTimer(freq time.Duration) {
	if freq <= 0 {
		freq = s.cfg.DefaultFlushFrequency
	}
	s.mu.Lock()
	s.flushFrequency = freq
	stopped := s.state == StateShutdown
	s.mu.Unlock()
	if stopped {
		return
	}

	if s.flush.Reschedule(freq) {
		s.logger.Debug("flush frequency updated", zap.Duration("frequency", freq))
	}
}

func (s *SDK) handleUpdate(ctx context.Context) {
	if s.queue.Len() > 0 {
		s.sendQueuedEvents(ctx, s.profile.UserID(), false)
	}
}

// ===========================================
// CALLBACKS
// ===========================================

// OnMessage replaces the built-in message display.
func (s *SDK) OnMessage(l func(Candidate)) {
	if l == nil {
		s.campaigns.OnMessage(nil)
		return
	}
	s.campaigns.OnMessage(campaigns.MessageListener(l))
}

// OnEmbeddedMessage receives embedded campaigns chosen for display, with
// the personalization properties in force.
func (s *SDK) OnEmbeddedMessage(l func(*EmbeddedMessage, map[string]string)) {
	if l == nil {
		s.campaigns.OnEmbeddedMessage(nil)
		return
	}
	s.campaigns.OnEmbeddedMessage(campaigns.EmbeddedListener(l))
}

// OnCampaignLoaded is called after every campaigns response with content.
func (s *SDK) OnCampaignLoaded(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb.campaignLoaded = f
}

// OnResourcesLoaded is called with the user resources after every sync.
func (s *SDK) OnResourcesLoaded(f func([]Resource)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb.resourcesLoaded = f
}

// OnCustomButtonClicked receives the action of custom message buttons that
// are not links.
func (s *SDK) OnCustomButtonClicked(f func(action string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb.customButton = f
}

// OnIAMDismissed is called when a message is dismissed.
func (s *SDK) OnIAMDismissed(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb.iamDismissed = f
}

// SetPersonalizationProvider installs the provider consulted when a message
// is triggered without explicit properties.
func (s *SDK) SetPersonalizationProvider(p PersonalizationProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb.personalization = p
}

func (s *SDK) hooks() callbacks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cb
}
