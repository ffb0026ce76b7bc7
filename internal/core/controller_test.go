package core

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/user/wg-tunnel/internal/backend"
	"github.com/user/wg-tunnel/internal/permission"
	"github.com/user/wg-tunnel/internal/tunnelcfg"
)

// fakeBackend reports whatever state it was last moved to. While block is
// non-nil, SetState waits on it.
type fakeBackend struct {
	mu      sync.Mutex
	state   backend.State
	tunnels map[backend.Tunnel]bool
	calls   []backend.State
	setErr  error
	getErr  error
	block   chan struct{}
	entered chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		state:   backend.StateDown,
		tunnels: make(map[backend.Tunnel]bool),
		entered: make(chan struct{}, 16),
	}
}

func (f *fakeBackend) SetState(ctx context.Context, t backend.Tunnel, desired backend.State, cfg *tunnelcfg.Config) (backend.State, error) {
	f.mu.Lock()
	f.tunnels[t] = true
	f.calls = append(f.calls, desired)
	block := f.block
	f.mu.Unlock()

	f.entered <- struct{}{}
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.state, f.setErr
	}
	f.state = desired
	t.OnStateChange(desired)
	return desired, nil
}

func (f *fakeBackend) GetState(ctx context.Context, t backend.Tunnel) (backend.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return 0, f.getErr
	}
	return f.state, nil
}

func (f *fakeBackend) setCalls() []backend.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.State(nil), f.calls...)
}

// consentPlatform grants permission once the consent UI reports OK.
type consentPlatform struct {
	mu         sync.Mutex
	granted    bool
	foreground bool
	dispatched chan int
}

func (p *consentPlatform) Prepare() (permission.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.granted {
		return nil, nil
	}
	return "vpn-consent", nil
}

func (p *consentPlatform) Foreground() permission.Activity {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.foreground {
		return nil
	}
	return p
}

func (p *consentPlatform) StartForResult(intent permission.Intent, requestCode int) error {
	p.dispatched <- requestCode
	return nil
}

type harness struct {
	ctrl     *Controller
	be       *fakeBackend
	gate     *permission.Gate
	platform *consentPlatform
	created  int
}

func newHarness(t *testing.T, granted bool) *harness {
	t.Helper()
	h := &harness{
		be:       newFakeBackend(),
		platform: &consentPlatform{granted: granted, foreground: true, dispatched: make(chan int, 4)},
	}
	h.gate = permission.NewGate(h.platform, t.Logf)
	factory := func() (backend.Backend, error) {
		h.created++
		return h.be, nil
	}
	session := backend.NewSession("wgtest", factory, h.gate, t.Logf)
	h.ctrl = New(session, h.gate, t.Logf)
	t.Cleanup(func() { h.ctrl.Close() })
	return h
}

func validPayload(t *testing.T) map[string]any {
	t.Helper()
	priv, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	peer, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	return map[string]any{
		"clientPrivateKey": priv.String(),
		"clientAddress":    "10.0.0.2/32",
		"serverPublicKey":  peer.PublicKey().String(),
		"serverAddress":    "203.0.113.5",
		"serverPort":       float64(51820),
	}
}

func wantCode(t *testing.T, err error, code Code) *Error {
	t.Helper()
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("got %T (%v), want *core.Error", err, err)
	}
	if e.Code != code {
		t.Fatalf("code = %s, want %s (%v)", e.Code, code, err)
	}
	return e
}

func TestConnectEndToEnd(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	if err := h.ctrl.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := h.ctrl.Connect(ctx, validPayload(t)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	st := h.ctrl.GetStatus(ctx)
	if !st.IsConnected || st.TunnelState != "ACTIVE" || st.Error != "" {
		t.Fatalf("status = %+v", st)
	}
}

func TestGetStatusNeverInitialized(t *testing.T) {
	h := newHarness(t, true)
	st := h.ctrl.GetStatus(context.Background())
	if st != (StatusPayload{IsConnected: false, TunnelState: "INACTIVE"}) {
		t.Fatalf("status = %+v", st)
	}
	if h.created != 0 {
		t.Error("status query created a backend")
	}
}

func TestGetStatusReportsQueryFailure(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	if err := h.ctrl.Connect(ctx, validPayload(t)); err != nil {
		t.Fatal(err)
	}
	h.be.mu.Lock()
	h.be.getErr = errors.New("device gone")
	h.be.mu.Unlock()

	st := h.ctrl.GetStatus(ctx)
	if st.IsConnected || st.TunnelState != "ERROR" || st.Error != "device gone" {
		t.Fatalf("status = %+v", st)
	}
}

func TestConnectMissingFieldNeverReachesBackend(t *testing.T) {
	for _, field := range []string{"clientPrivateKey", "clientAddress", "serverPublicKey", "serverAddress", "serverPort"} {
		t.Run(field, func(t *testing.T) {
			h := newHarness(t, true)
			raw := validPayload(t)
			delete(raw, field)

			err := h.ctrl.Connect(context.Background(), raw)
			wantCode(t, err, CodeConnect)

			var verr *tunnelcfg.ValidationError
			if !errors.As(err, &verr) || verr.Field != field {
				t.Fatalf("validation error = %v", err)
			}
			if calls := h.be.setCalls(); len(calls) != 0 {
				t.Errorf("backend called: %v", calls)
			}
		})
	}
}

func TestConnectWithoutPermission(t *testing.T) {
	h := newHarness(t, false)
	err := h.ctrl.Connect(context.Background(), validPayload(t))
	wantCode(t, err, CodeConnect)
	if !errors.Is(err, backend.ErrPermissionNotGranted) {
		t.Fatalf("got %v", err)
	}
	select {
	case <-h.platform.dispatched:
		t.Error("connect prompted for permission")
	default:
	}
}

func TestConnectBackendFailure(t *testing.T) {
	h := newHarness(t, true)
	h.be.setErr = errors.New("bind: address in use")

	err := h.ctrl.Connect(context.Background(), validPayload(t))
	wantCode(t, err, CodeConnect)
	if !errors.Is(err, h.be.setErr) {
		t.Errorf("backend diagnostic lost: %v", err)
	}
	if st := h.ctrl.GetStatus(context.Background()); st.IsConnected {
		t.Errorf("status claims connected: %+v", st)
	}
}

func TestDisconnect(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	err := h.ctrl.Disconnect(ctx)
	e := wantCode(t, err, CodeDisconnect)
	if e.Message != "Tunnel not initialized" || !errors.Is(err, backend.ErrNotInitialized) {
		t.Errorf("error = %v", err)
	}

	if err := h.ctrl.Connect(ctx, validPayload(t)); err != nil {
		t.Fatal(err)
	}
	if err := h.ctrl.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if st := h.ctrl.GetStatus(ctx); st.IsConnected || st.TunnelState != "INACTIVE" {
		t.Fatalf("status = %+v", st)
	}
}

func TestInitializeError(t *testing.T) {
	gate := permission.NewGate(&consentPlatform{granted: true}, nil)
	boom := errors.New("tun driver missing")
	session := backend.NewSession("", func() (backend.Backend, error) { return nil, boom }, gate, nil)
	ctrl := New(session, gate, nil)
	defer ctrl.Close()

	err := ctrl.Initialize(context.Background())
	wantCode(t, err, CodeInit)
	if !errors.Is(err, boom) {
		t.Errorf("cause lost: %v", err)
	}
	// Connect auto-initializes and hits the same failure.
	wantCode(t, ctrl.Connect(context.Background(), validPayload(t)), CodeConnect)
}

func TestInitializeIdempotent(t *testing.T) {
	h := newHarness(t, true)
	for i := 0; i < 3; i++ {
		if err := h.ctrl.Initialize(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if h.created != 1 {
		t.Errorf("backend created %d times", h.created)
	}
}

func TestGenerateKeys(t *testing.T) {
	h := newHarness(t, true)
	a, err := h.ctrl.GenerateKeys()
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.ctrl.GenerateKeys()
	if err != nil {
		t.Fatal(err)
	}
	if a.PrivateKey == b.PrivateKey || a.PublicKey == b.PublicKey {
		t.Error("key pairs are not distinct")
	}
	for _, k := range []string{a.PrivateKey, a.PublicKey, b.PrivateKey, b.PublicKey} {
		raw, err := base64.StdEncoding.DecodeString(k)
		if err != nil || len(raw) != 32 {
			t.Errorf("key %q: %d bytes, %v", k, len(raw), err)
		}
	}
}

func TestRequestVPNPermission(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t, true)
	if ok, err := h.ctrl.RequestVPNPermission(ctx); err != nil || !ok {
		t.Fatalf("already granted: %v, %v", ok, err)
	}

	h = newHarness(t, false)
	h.platform.foreground = false
	_, err := h.ctrl.RequestVPNPermission(ctx)
	wantCode(t, err, CodeNoActivity)

	h = newHarness(t, false)
	done := make(chan error, 1)
	go func() {
		_, err := h.ctrl.RequestVPNPermission(ctx)
		done <- err
	}()
	code := <-h.platform.dispatched
	h.gate.OnActivityResult(code, permission.ResultCanceled)
	wantCode(t, <-done, CodePermissionDenied)
}

func TestPermissionThenConnect(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := h.ctrl.RequestVPNPermission(ctx)
		done <- err
	}()
	code := <-h.platform.dispatched
	h.platform.mu.Lock()
	h.platform.granted = true
	h.platform.mu.Unlock()
	h.gate.OnActivityResult(code, permission.ResultOK)
	if err := <-done; err != nil {
		t.Fatalf("RequestVPNPermission: %v", err)
	}

	if err := h.ctrl.Connect(ctx, validPayload(t)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
}

func TestConcurrentConnectsShareOneHandle(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		raw := validPayload(t)
		g.Go(func() error { return h.ctrl.Connect(ctx, raw) })
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if h.created != 1 {
		t.Errorf("backend created %d times", h.created)
	}
	if n := len(h.be.tunnels); n != 1 {
		t.Errorf("backend saw %d tunnel handles", n)
	}
}

func TestDisconnectQueuedBehindConnect(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.be.block = make(chan struct{})

	connected := make(chan error, 1)
	go func() { connected <- h.ctrl.Connect(ctx, validPayload(t)) }()
	<-h.be.entered

	disconnected := make(chan error, 1)
	go func() { disconnected <- h.ctrl.Disconnect(ctx) }()

	// Status is answered while connect is still in flight.
	if st := h.ctrl.GetStatus(ctx); st.IsConnected {
		t.Errorf("status during connect = %+v", st)
	}
	select {
	case err := <-disconnected:
		t.Fatalf("disconnect ran during connect: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	close(h.be.block)
	if err := <-connected; err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := <-disconnected; err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	want := []backend.State{backend.StateUp, backend.StateDown}
	got := h.be.setCalls()
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("backend calls = %v, want %v", got, want)
	}
}

func TestConnectContextCanceledWhileQueued(t *testing.T) {
	h := newHarness(t, true)
	h.be.block = make(chan struct{})

	first := make(chan error, 1)
	go func() { first <- h.ctrl.Connect(context.Background(), validPayload(t)) }()
	<-h.be.entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.ctrl.Connect(ctx, validPayload(t))
	wantCode(t, err, CodeConnect)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v", err)
	}

	close(h.be.block)
	if err := <-first; err != nil {
		t.Fatal(err)
	}
	if n := len(h.be.setCalls()); n != 1 {
		t.Errorf("backend called %d times", n)
	}
}

func TestStatusListener(t *testing.T) {
	h := newHarness(t, true)
	updates := make(chan StatusPayload, 4)
	h.ctrl.SetStatusListener(func(s StatusPayload) { updates <- s })

	ctx := context.Background()
	if err := h.ctrl.Connect(ctx, validPayload(t)); err != nil {
		t.Fatal(err)
	}
	if err := h.ctrl.Disconnect(ctx); err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"ACTIVE", "INACTIVE"} {
		select {
		case s := <-updates:
			if s.TunnelState != want {
				t.Errorf("update = %+v, want %s", s, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("no %s update", want)
		}
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(errors.New("plain")) != "" {
		t.Error("plain error has a code")
	}
	err := newError(CodeKeygen, "Failed to generate keys", errors.New("entropy"))
	if CodeOf(err) != CodeKeygen || err.Error() != "Failed to generate keys: entropy" {
		t.Errorf("err = %v", err)
	}
}
