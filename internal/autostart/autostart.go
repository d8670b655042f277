package autostart

import "runtime"

const ServiceName = "docsync"

// Options describe the watch daemon the service manager should launch.
type Options struct {
	ExecPath   string
	Root       string
	ConfigFile string
}

func (o Options) args() []string {
	args := []string{"watch"}
	if o.Root != "" {
		args = append(args, "--root", o.Root)
	}
	if o.ConfigFile != "" {
		args = append(args, "--config", o.ConfigFile)
	}
	return args
}

type AutoStarter interface {
	Install(opts Options) error
	Uninstall() error
	IsInstalled() (bool, error)
}

func New() AutoStarter {
	switch runtime.GOOS {
	case "windows":
		return &WindowsAutoStarter{}
	case "linux":
		return &LinuxAutoStarter{}
	default:
		return &UnsupportedAutoStarter{}
	}
}

type UnsupportedAutoStarter struct{}

func (u *UnsupportedAutoStarter) Install(_ Options) error {
	return nil
}

func (u *UnsupportedAutoStarter) Uninstall() error {
	return nil
}

func (u *UnsupportedAutoStarter) IsInstalled() (bool, error) {
	return false, nil
}
