package browsy

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// BinaryName is looked up in PATH when no override is set
	BinaryName = "browsy"
	// BinaryEnvVar overrides the PATH lookup
	BinaryEnvVar = "BROWSY_BIN"
)

// IsPortInUse reports whether something accepts TCP connections on 127.0.0.1:port
func IsPortInUse(ctx context.Context, port int) bool {
	dialer := net.Dialer{Timeout: time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// FindBinary locates the browsy executable. Order: explicit path, BROWSY_BIN,
// then PATH. The lookup is not cached so a binary installed after a failed
// start is picked up by the next attempt.
func FindBinary(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	if override := os.Getenv(BinaryEnvVar); override != "" {
		return override, nil
	}

	path, err := exec.LookPath(BinaryName)
	if err != nil {
		return "", &Error{
			Code:    ErrCodeBinaryNotFound,
			Message: "browsy binary not found in PATH",
			Err:     err,
		}
	}
	return path, nil
}

// ServeArgs builds the arguments for `browsy serve`
func ServeArgs(cfg Config) []string {
	args := []string{"serve", "--port", strconv.Itoa(cfg.Port)}
	if cfg.AllowPrivateNetwork {
		args = append(args, "--allow-private-network")
	}
	return args
}

// FindAvailablePort asks the kernel for a free local port
func FindAvailablePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("no available port: %w", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}

// outputLogger captures a child stream line by line into the logger and
// keeps the last few lines for error messages.
type outputLogger struct {
	logger zerolog.Logger
	stream string

	mu   sync.Mutex
	buf  bytes.Buffer
	tail []string
}

const outputTailLines = 20

func newOutputLogger(logger zerolog.Logger, stream string) *outputLogger {
	return &outputLogger{logger: logger, stream: stream}
}

func (o *outputLogger) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.buf.Write(p)
	data := o.buf.Bytes()
	idx := bytes.LastIndexByte(data, '\n')
	if idx < 0 {
		return len(p), nil
	}

	complete := string(data[:idx])
	rest := append([]byte(nil), data[idx+1:]...)
	o.buf.Reset()
	o.buf.Write(rest)

	for _, line := range strings.Split(complete, "\n") {
		o.emit(strings.TrimRight(line, "\r"))
	}
	return len(p), nil
}

func (o *outputLogger) emit(line string) {
	if line == "" {
		return
	}
	o.logger.Debug().Str("stream", o.stream).Msg(line)
	o.tail = append(o.tail, line)
	if len(o.tail) > outputTailLines {
		o.tail = o.tail[len(o.tail)-outputTailLines:]
	}
}

// Tail returns the most recent captured lines
func (o *outputLogger) Tail() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.tail...)
}
