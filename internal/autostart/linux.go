package autostart

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"docsync/internal/util"
)

const serviceTemplate = `[Unit]
Description=docsync configuration-to-documentation sync
After=default.target

[Service]
{{- if .Root }}
WorkingDirectory={{ .Root }}
{{- end }}
ExecStart={{ .ExecStart }}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

type LinuxAutoStarter struct{}

func (l *LinuxAutoStarter) servicePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(home, ".config", "systemd", "user", ServiceName+".service"), nil
}

func unitFile(opts Options) (string, error) {
	parts := append([]string{opts.ExecPath}, opts.args()...)
	for i, p := range parts {
		if strings.ContainsAny(p, " \t") {
			parts[i] = `"` + p + `"`
		}
	}

	var buf bytes.Buffer
	tmpl := template.Must(template.New("service").Parse(serviceTemplate))
	if err := tmpl.Execute(&buf, map[string]string{
		"Root":      opts.Root,
		"ExecStart": strings.Join(parts, " "),
	}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (l *LinuxAutoStarter) Install(opts Options) error {
	path, err := l.servicePath()
	if err != nil {
		return err
	}

	unit, err := unitFile(opts)
	if err != nil {
		return fmt.Errorf("failed to render service file: %w", err)
	}
	if err := util.AtomicWriteBytes(path, []byte(unit)); err != nil {
		return fmt.Errorf("failed to write service file: %w", err)
	}

	cmds := [][]string{
		{"systemctl", "--user", "daemon-reload"},
		{"systemctl", "--user", "enable", ServiceName + ".service"},
		{"systemctl", "--user", "start", ServiceName + ".service"},
	}

	for _, args := range cmds {
		cmd := exec.Command(args[0], args[1:]...)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("failed to run %v: %w\n%s", args, err, out)
		}
	}

	return nil
}

func (l *LinuxAutoStarter) Uninstall() error {
	cmds := [][]string{
		{"systemctl", "--user", "stop", ServiceName + ".service"},
		{"systemctl", "--user", "disable", ServiceName + ".service"},
	}

	for _, args := range cmds {
		cmd := exec.Command(args[0], args[1:]...)
		_ = cmd.Run()
	}

	path, err := l.servicePath()
	if err != nil {
		return err
	}

	return util.RemoveIfExists(path)
}

func (l *LinuxAutoStarter) IsInstalled() (bool, error) {
	path, err := l.servicePath()
	if err != nil {
		return false, err
	}

	return util.Exists(path)
}
