//go:build !windows
// +build !windows

package service

import "qualtrack/internal/config"

// RunService runs the application in the foreground
func RunService(isDebug bool, app *Application, cfg config.ServiceConfig) error {
	return app.Run()
}

func InstallService(exePath string, cfg config.ServiceConfig) error {
	return ErrUnsupported
}

func UninstallService(cfg config.ServiceConfig) error {
	return ErrUnsupported
}

func StartService(cfg config.ServiceConfig) error {
	return ErrUnsupported
}

func StopService(cfg config.ServiceConfig) error {
	return ErrUnsupported
}

// QueryState reports that no service manager is available
func QueryState(cfg config.ServiceConfig) (string, error) {
	return "", ErrUnsupported
}

// IsWindowsService always returns false on non-Windows platforms
func IsWindowsService() (bool, error) {
	return false, nil
}
