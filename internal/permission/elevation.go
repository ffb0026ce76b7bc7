package permission

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/user/wg-tunnel/internal/elevate"
)

// elevationIntent asks the user to relaunch the process with privileges.
type elevationIntent struct {
	reason string
}

// ElevationPlatform is the desktop Platform. There, VPN permission is the
// privilege to create a kernel TUN interface, and the consent UI is a
// terminal prompt that relaunches the process elevated.
type ElevationPlatform struct {
	// NeedsPrivilege is false in userspace mode, where permission is
	// always granted.
	NeedsPrivilege bool

	In  io.Reader
	Out io.Writer

	IsAdmin    func() bool
	IsTerminal func(io.Reader) bool
	// Elevate relaunches the process elevated. The OS implementation does
	// not return on success; a nil return is reported as granted.
	Elevate func() error

	mu      sync.Mutex
	gate    *Gate
	lines   *bufio.Reader
	reading bool
	code    int
}

// NewElevationPlatform returns a platform wired to in and out and the OS
// elevation primitives. Nil streams default to the process's stdin and
// stderr.
func NewElevationPlatform(needsPrivilege bool, in io.Reader, out io.Writer) *ElevationPlatform {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stderr
	}
	return &ElevationPlatform{
		NeedsPrivilege: needsPrivilege,
		In:             in,
		Out:            out,
		IsAdmin:        elevate.IsAdmin,
		IsTerminal:     elevate.IsTerminal,
		Elevate:        elevate.RunAsAdmin,
	}
}

// Bind sets the gate that prompt results are delivered to.
func (p *ElevationPlatform) Bind(g *Gate) {
	p.mu.Lock()
	p.gate = g
	p.mu.Unlock()
}

func (p *ElevationPlatform) privileged() bool {
	return !p.NeedsPrivilege || (p.IsAdmin != nil && p.IsAdmin())
}

// Prepare implements Platform.
func (p *ElevationPlatform) Prepare() (Intent, error) {
	if p.privileged() {
		return nil, nil
	}
	return elevationIntent{reason: "creating a kernel TUN interface requires administrator privileges"}, nil
}

// Foreground implements Platform. When no consent is needed any caller
// counts as foreground, since nothing will be shown. Otherwise an
// interactive terminal is required; without one there is nobody to ask.
func (p *ElevationPlatform) Foreground() Activity {
	if p.privileged() {
		return terminalActivity{p}
	}
	if p.In == nil || p.IsTerminal == nil || !p.IsTerminal(p.In) {
		return nil
	}
	return terminalActivity{p}
}

func (p *ElevationPlatform) deliver(requestCode, resultCode int) {
	p.mu.Lock()
	g := p.gate
	p.mu.Unlock()
	if g != nil {
		g.OnActivityResult(requestCode, resultCode)
	}
}

type terminalActivity struct {
	p *ElevationPlatform
}

// StartForResult prints the prompt and reads the answer in the background.
//
// The read is not tied to any context: if the request is cancelled the
// reader stays blocked on In until a line or EOF arrives. At most one read
// is outstanding per platform; a later request takes it over, and the
// answer goes to the most recent request code.
func (a terminalActivity) StartForResult(intent Intent, requestCode int) error {
	in, ok := intent.(elevationIntent)
	if !ok {
		return fmt.Errorf("unsupported intent %T", intent)
	}
	if a.p.Out != nil {
		fmt.Fprintf(a.p.Out, "%s. Relaunch elevated? [y/N] ", in.reason)
	}

	a.p.mu.Lock()
	defer a.p.mu.Unlock()
	a.p.code = requestCode
	if a.p.reading {
		return nil
	}
	if a.p.lines == nil {
		a.p.lines = bufio.NewReader(a.p.In)
	}
	a.p.reading = true
	go a.p.readAnswer(a.p.lines)
	return nil
}

func (p *ElevationPlatform) readAnswer(r *bufio.Reader) {
	line, _ := r.ReadString('\n')

	p.mu.Lock()
	p.reading = false
	code := p.code
	p.mu.Unlock()

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
	default:
		p.deliver(code, ResultCanceled)
		return
	}
	if err := p.Elevate(); err != nil {
		if p.Out != nil {
			fmt.Fprintf(p.Out, "elevation failed: %v\n", err)
		}
		p.deliver(code, ResultCanceled)
		return
	}
	p.deliver(code, ResultOK)
}
