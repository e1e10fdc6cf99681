package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/harun/browsy/pkg/browsy"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard reading answers from in and prompting on out
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{reader: bufio.NewReader(in), out: out}
}

// Run asks for the settings most users change and returns the result merged
// onto base. A nil base starts from the defaults.
func (w *Wizard) Run(base *Config) (*Config, error) {
	cfg := DefaultConfig()
	if base != nil {
		copied := *base
		cfg = &copied
	}
	validator := NewValidator()
	current := browsy.ParseConfig(&cfg.Browsy)

	fmt.Fprintln(w.out, "=== Browsy Bridge Configuration ===")
	fmt.Fprintln(w.out)

	for {
		port, err := w.askInt("browsy server port", current.Port)
		if err != nil {
			return nil, err
		}
		if err := validator.ValidatePort("port", port); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Browsy.Port = &port
		break
	}

	autoStart, err := w.askBool("Start browsy automatically?", current.AutoStart)
	if err != nil {
		return nil, err
	}
	cfg.Browsy.AutoStart = &autoStart

	prefer, err := w.askBool("Redirect built-in browser tools to browsy?", current.PreferBrowsy)
	if err != nil {
		return nil, err
	}
	cfg.Browsy.PreferBrowsy = &prefer

	fmt.Fprintf(w.out, "browsy binary path (Enter to search %s and PATH) [%s]: ", browsy.BinaryEnvVar, current.BinaryPath)
	binary, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if binary != "" {
		cfg.Browsy.BinaryPath = &binary
	}

	fmt.Fprintln(w.out)
	enableGateway, err := w.askBool("Enable the JSON-RPC gateway?", cfg.Gateway.Enabled)
	if err != nil {
		return nil, err
	}
	cfg.Gateway.Enabled = enableGateway

	if enableGateway {
		for {
			port, err := w.askInt("gateway port", cfg.Gateway.Port)
			if err != nil {
				return nil, err
			}
			if err := validator.ValidatePort("gateway port", port); err != nil {
				fmt.Fprintf(w.out, "Error: %v\n", err)
				continue
			}
			if port == *cfg.Browsy.Port {
				fmt.Fprintln(w.out, "Error: gateway port must differ from the browsy port")
				continue
			}
			cfg.Gateway.Port = port
			break
		}

		fmt.Fprint(w.out, "gateway shared secret (Enter for none): ")
		secret, err := w.readLine()
		if err != nil {
			return nil, err
		}
		cfg.Gateway.SharedSecret = secret
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete.")
	return cfg, nil
}

func (w *Wizard) askInt(label string, def int) (int, error) {
	for {
		fmt.Fprintf(w.out, "%s [%d]: ", label, def)
		answer, err := w.readLine()
		if err != nil {
			return 0, err
		}
		if answer == "" {
			return def, nil
		}
		n, err := strconv.Atoi(answer)
		if err != nil {
			fmt.Fprintf(w.out, "Error: %q is not a number\n", answer)
			continue
		}
		return n, nil
	}
}

func (w *Wizard) askBool(label string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	fmt.Fprintf(w.out, "%s (%s): ", label, hint)
	answer, err := w.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
