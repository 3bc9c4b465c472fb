package render_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docconvert/internal/domain"
	"docconvert/internal/render"
	"docconvert/internal/render/rendertest"
)

var geom = domain.RenderGeometry{PaperWidth: 8.27, PaperHeight: 11.69, MarginTop: 0.8, MarginBottom: 0.6, HeaderFooter: true}

func newManager(e render.Engine, max int) *render.Manager {
	return render.NewManager(e, render.Options{MaxSessions: max, AcquireTimeout: 50 * time.Millisecond, NetworkIdle: time.Millisecond})
}

func TestSession_ClosedExactlyOncePerLaunch(t *testing.T) {
	tests := []struct {
		name    string
		engine  *rendertest.Engine
		wantErr error
	}{
		{name: "success", engine: &rendertest.Engine{}},
		{name: "content load timeout", engine: &rendertest.Engine{Hang: true}, wantErr: domain.ErrContentLoadTimeout},
		{name: "load failure", engine: &rendertest.Engine{LoadErr: errors.New("net::ERR_ABORTED")}, wantErr: domain.ErrRender},
		{name: "render failure", engine: &rendertest.Engine{PrintErr: errors.New("printing failed")}, wantErr: domain.ErrRender},
		{name: "empty output", engine: &rendertest.Engine{PDF: []byte{}}, wantErr: domain.ErrRender},
		{name: "load timeout while printing", engine: &rendertest.Engine{PrintErr: domain.Wrap(domain.ErrContentLoadTimeout, context.DeadlineExceeded)}, wantErr: domain.ErrContentLoadTimeout},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newManager(tc.engine, 1)

			err := func() error {
				s, err := m.Open(context.Background())
				if err != nil {
					return err
				}
				defer s.Close()
				if err := s.LoadContent(context.Background(), "<html></html>", 30*time.Millisecond); err != nil {
					return err
				}
				_, err = s.RenderToPDF(context.Background(), geom, "<span></span>", "<span></span>")
				return err
			}()

			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				if tc.wantErr == domain.ErrContentLoadTimeout {
					assert.NotErrorIs(t, err, domain.ErrRender)
				}
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, int64(1), tc.engine.Launches.Load())
			assert.Equal(t, int64(1), tc.engine.Closes.Load())

			st := m.Stats()
			assert.Equal(t, int64(1), st.Launched)
			assert.Equal(t, int64(1), st.Closed)
			assert.Equal(t, 0, st.InUse)
		})
	}
}

func TestSession_LaunchFailure(t *testing.T) {
	e := &rendertest.Engine{LaunchErr: errors.New("exec: \"chromium\": executable file not found")}
	m := newManager(e, 1)

	_, err := m.Open(context.Background())
	require.ErrorIs(t, err, domain.ErrEngineLaunch)
	assert.Contains(t, err.Error(), "executable file not found")
	assert.Equal(t, int64(0), e.Closes.Load())

	st := m.Stats()
	assert.Equal(t, int64(1), st.LaunchFailures)
	assert.Equal(t, 1, st.Idle, "slot must be released after a failed launch")
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	e := &rendertest.Engine{}
	s := render.NewSession(0, nil)
	require.NoError(t, s.Launch(context.Background(), e, nil))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Close()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), e.Closes.Load())
	assert.Equal(t, render.StateClosed, s.State())
}

func TestSession_WrongStateIsRenderError(t *testing.T) {
	e := &rendertest.Engine{}
	s := render.NewSession(0, nil)

	err := s.LoadContent(context.Background(), "<p>x</p>", time.Second)
	require.ErrorIs(t, err, domain.ErrRender)
	assert.Contains(t, err.Error(), "invalid session state")

	require.NoError(t, s.Launch(context.Background(), e, nil))
	_, err = s.RenderToPDF(context.Background(), geom, "", "")
	require.ErrorIs(t, err, domain.ErrRender)

	require.NoError(t, s.Close())
	err = s.Launch(context.Background(), e, nil)
	require.ErrorIs(t, err, domain.ErrRender)
	assert.Equal(t, int64(1), e.Launches.Load())
}

func TestSession_StateProgression(t *testing.T) {
	e := &rendertest.Engine{}
	s := render.NewSession(0, nil)
	assert.Equal(t, render.StateIdle, s.State())

	require.NoError(t, s.Launch(context.Background(), e, nil))
	assert.Equal(t, render.StateReady, s.State())

	require.NoError(t, s.LoadContent(context.Background(), "<p>x</p>", time.Second))
	assert.Equal(t, render.StateLoading, s.State())

	pdf, err := s.RenderToPDF(context.Background(), geom, "h", "f")
	require.NoError(t, err)
	assert.Equal(t, rendertest.MinimalPDF, pdf)
	assert.Equal(t, render.StateRendering, s.State())

	_, header, footer, g := e.Last()
	assert.Equal(t, "h", header)
	assert.Equal(t, "f", footer)
	assert.Equal(t, geom, g)

	require.NoError(t, s.Close())
	assert.Equal(t, "closed", s.State().String())
}

func TestSession_RequestDeadlineBoundsLoad(t *testing.T) {
	e := &rendertest.Engine{Hang: true}
	s := render.NewSession(0, nil)
	defer s.Close()
	require.NoError(t, s.Launch(context.Background(), e, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := s.LoadContent(ctx, "<img src=http://10.255.255.1/x.png>", time.Minute)
	require.ErrorIs(t, err, domain.ErrContentLoadTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestManager_BusyWhenSaturated(t *testing.T) {
	e := &rendertest.Engine{}
	m := newManager(e, 1)

	s, err := m.Open(context.Background())
	require.NoError(t, err)

	_, err = m.Open(context.Background())
	require.ErrorIs(t, err, domain.ErrBusy)

	require.NoError(t, s.Close())
	s2, err := m.Open(context.Background())
	require.NoError(t, err)
	require.NoError(t, s2.Close())

	assert.Equal(t, int64(2), e.Launches.Load())
	assert.Equal(t, int64(2), e.Closes.Load())
}

func TestManager_NeverExceedsCapacity(t *testing.T) {
	e := &rendertest.Engine{}
	m := render.NewManager(e, render.Options{MaxSessions: 3, AcquireTimeout: 5 * time.Second})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		current int
		peak    int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := m.Open(context.Background())
			if err != nil {
				t.Errorf("open: %v", err)
				return
			}
			mu.Lock()
			current++
			if current > peak {
				peak = current
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			current--
			mu.Unlock()
			_ = s.Close()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak, 3)
	assert.Equal(t, int64(12), e.Closes.Load())
	assert.Equal(t, 3, m.Stats().Idle)
}

func TestIsSessionInterrupted(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "context canceled", err: context.Canceled, want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "target closed", err: errors.New("target closed"), want: true},
		{name: "wrapped deadline", err: domain.Wrap(domain.ErrContentLoadTimeout, context.DeadlineExceeded), want: true},
		{name: "normal error", err: errors.New("validation failed"), want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := render.IsSessionInterrupted(tc.err); got != tc.want {
				t.Fatalf("IsSessionInterrupted(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
