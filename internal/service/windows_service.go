//go:build windows
// +build windows

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/debug"
	"golang.org/x/sys/windows/svc/eventlog"
	"golang.org/x/sys/windows/svc/mgr"

	"qualtrack/internal/config"
)

// Event ids written to the Windows event log
const (
	eventLifecycle    = 1
	eventStartFailed  = 2
	eventNoCredential = 3
	eventStopFailed   = 4
)

// exitStartFailed is the service-specific exit code when the graph fails to start
const exitStartFailed = 1

// signingService implements svc.Handler
type signingService struct {
	app  *Application
	cfg  config.ServiceConfig
	elog debug.Log
}

func (s *signingService) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (bool, uint32) {
	const accepted = svc.AcceptStop | svc.AcceptShutdown
	changes <- svc.Status{State: svc.StartPending, WaitHint: waitHint(fx.DefaultTimeout)}

	// Start hooks settle interrupted document moves before the listener opens.
	ctx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	err := s.app.Start(ctx)
	cancel()
	if err != nil {
		s.elog.Error(eventStartFailed, fmt.Sprintf("%s failed to start: %v", s.cfg.Name, err))
		return true, exitStartFailed
	}

	changes <- svc.Status{State: svc.Running, Accepts: accepted}
	s.elog.Info(eventLifecycle, fmt.Sprintf("%s %s started", s.cfg.Name, config.Version))
	s.reportReadiness()

	for c := range r {
		switch c.Cmd {
		case svc.Interrogate:
			changes <- c.CurrentStatus
		case svc.Stop, svc.Shutdown:
			changes <- svc.Status{State: svc.StopPending, WaitHint: waitHint(s.cfg.StopTimeout)}
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StopTimeout)
			if err := s.app.Stop(ctx); err != nil {
				s.elog.Warning(eventStopFailed, fmt.Sprintf("%s did not stop cleanly: %v", s.cfg.Name, err))
			}
			cancel()
			s.elog.Info(eventLifecycle, fmt.Sprintf("%s stopped", s.cfg.Name))
			return false, 0
		default:
			s.elog.Warning(eventLifecycle, fmt.Sprintf("unexpected control request #%d", c.Cmd))
		}
	}
	return false, 0
}

// reportReadiness puts a missing signing certificate in front of the
// administrator; the HTTP API keeps running either way.
func (s *signingService) reportReadiness() {
	status := s.app.ProviderStatus(context.Background())
	if status == nil || status.IsAvailable {
		return
	}
	dir := ""
	if cfg := s.app.Config(); cfg != nil {
		dir = cfg.Signing.CredentialDir
	}
	s.elog.Warning(eventNoCredential, fmt.Sprintf(
		"%s has no usable signing certificate in %q; signing requests fail until one is installed",
		status.ProviderName, dir))
}

func waitHint(d time.Duration) uint32 {
	return uint32(d / time.Millisecond)
}

// RunService runs app under the service control manager, or in the console
// with isDebug.
func RunService(isDebug bool, app *Application, cfg config.ServiceConfig) error {
	var elog debug.Log
	if isDebug {
		elog = debug.New(cfg.Name)
	} else {
		l, err := eventlog.Open(cfg.Name)
		if err != nil {
			return fmt.Errorf("failed to open event log: %w", err)
		}
		elog = l
	}
	defer elog.Close()

	run := svc.Run
	if isDebug {
		run = debug.Run
	}
	if err := run(cfg.Name, &signingService{app: app, cfg: cfg, elog: elog}); err != nil {
		elog.Error(eventLifecycle, fmt.Sprintf("%s service failed: %v", cfg.Name, err))
		return err
	}
	return nil
}

// InstallService registers exePath as an auto-start service that restarts
// after crashes with a growing delay
func InstallService(exePath string, cfg config.ServiceConfig) error {
	m, err := mgr.Connect()
	if err != nil {
		return err
	}
	defer m.Disconnect()

	s, err := m.OpenService(cfg.Name)
	if err == nil {
		s.Close()
		return fmt.Errorf("service %s already exists", cfg.Name)
	}

	s, err = m.CreateService(cfg.Name, exePath, mgr.Config{
		DisplayName:      cfg.DisplayName,
		Description:      cfg.Description,
		StartType:        mgr.StartAutomatic,
		DelayedAutoStart: true, // certificate stores and network shares come up late
	})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := eventlog.InstallAsEventCreate(cfg.Name, eventlog.Error|eventlog.Warning|eventlog.Info); err != nil {
		fmt.Printf("Warning: could not install event log source: %v\n", err)
	}

	if err := s.SetRecoveryActions(recoveryActions(cfg.RestartDelay), 86400); err != nil {
		fmt.Printf("Warning: failed to set recovery actions: %v\n", err)
	}

	return nil
}

func recoveryActions(first time.Duration) []mgr.RecoveryAction {
	return []mgr.RecoveryAction{
		{Type: mgr.ServiceRestart, Delay: first},
		{Type: mgr.ServiceRestart, Delay: 2 * first},
		{Type: mgr.ServiceRestart, Delay: 6 * first},
	}
}

// UninstallService removes the service and its event log source
func UninstallService(cfg config.ServiceConfig) error {
	m, err := mgr.Connect()
	if err != nil {
		return err
	}
	defer m.Disconnect()

	s, err := m.OpenService(cfg.Name)
	if err != nil {
		return fmt.Errorf("service %s not installed", cfg.Name)
	}
	defer s.Close()

	eventlog.Remove(cfg.Name)

	return s.Delete()
}

func StartService(cfg config.ServiceConfig) error {
	m, err := mgr.Connect()
	if err != nil {
		return err
	}
	defer m.Disconnect()

	s, err := m.OpenService(cfg.Name)
	if err != nil {
		return err
	}
	defer s.Close()

	return s.Start()
}

func StopService(cfg config.ServiceConfig) error {
	m, err := mgr.Connect()
	if err != nil {
		return err
	}
	defer m.Disconnect()

	s, err := m.OpenService(cfg.Name)
	if err != nil {
		return err
	}
	defer s.Close()

	_, err = s.Control(svc.Stop)
	return err
}

// QueryState describes the installed service's current state
func QueryState(cfg config.ServiceConfig) (string, error) {
	m, err := mgr.Connect()
	if err != nil {
		return "", err
	}
	defer m.Disconnect()

	s, err := m.OpenService(cfg.Name)
	if err != nil {
		if errors.Is(err, windows.ERROR_SERVICE_DOES_NOT_EXIST) {
			return "not installed", nil
		}
		return "", err
	}
	defer s.Close()

	st, err := s.Query()
	if err != nil {
		return "", err
	}
	return stateName(st.State), nil
}

func stateName(state svc.State) string {
	switch state {
	case svc.Stopped:
		return "stopped"
	case svc.StartPending:
		return "start pending"
	case svc.StopPending:
		return "stop pending"
	case svc.Running:
		return "running"
	case svc.ContinuePending:
		return "continue pending"
	case svc.PausePending:
		return "pause pending"
	case svc.Paused:
		return "paused"
	}
	return fmt.Sprintf("unknown (%d)", state)
}

// IsWindowsService reports whether the process was started by the service control manager
func IsWindowsService() (bool, error) {
	return svc.IsWindowsService()
}
