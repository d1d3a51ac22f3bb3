package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/steg2011/netvault/internal/transport"
	appErr "github.com/steg2011/netvault/pkg/errors"
)

const (
	sshPort        = 22
	loginWait      = 500 * time.Millisecond
	promptAttempts = 3
)

// promptLine matches the interactive prompts the supported network operating
// systems present (Router>, Router#, and bracketed variants).
var promptLine = regexp.MustCompile(`(?m)^[\w.\[\]<>/-]+[>#\]]\s*$`)

// SSHFetcher opens an interactive terminal session per device, issues the
// platform's show command, and reads until the prompt returns. Network
// devices rarely support exec channels, so everything runs through a PTY
// shell.
type SSHFetcher struct{}

// NewSSHFetcher returns the production terminal fetcher.
func NewSSHFetcher() *SSHFetcher { return &SSHFetcher{} }

// Fetch implements Fetcher. Errors are classified into the per-device
// taxonomy and never panic or propagate beyond the outcome.
func (f *SSHFetcher) Fetch(ctx context.Context, target transport.Target) (string, error) {
	config := &ssh.ClientConfig{
		User:            target.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(target.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
	config.SetDefaults()

	// Legacy network gear still negotiates old ciphers and kex algorithms.
	config.Config.Ciphers = append(config.Config.Ciphers,
		"aes128-cbc", "aes192-cbc", "aes256-cbc", "3des-cbc",
	)
	config.Config.KeyExchanges = append(config.Config.KeyExchanges,
		"diffie-hellman-group-exchange-sha256",
		"diffie-hellman-group14-sha1",
		"diffie-hellman-group1-sha1",
	)

	addr := net.JoinHostPort(target.Address, fmt.Sprint(sshPort))
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return "", appErr.Wrap(err, appErr.CodeTimeout, "connect deadline exceeded")
		}
		return "", appErr.Wrap(err, appErr.CodeUnreachable, "tcp connect failed")
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return "", appErr.Wrap(err, appErr.CodeAuthRejected, "device rejected credentials")
		}
		return "", appErr.Wrap(err, appErr.CodeTransport, "ssh handshake failed")
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	// Tear the connection down when the context ends so blocked reads
	// return instead of hanging past the per-device deadline.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = client.Close()
		case <-done:
		}
	}()

	output, err := runShowCommand(ctx, client, target.Platform.ShowCommand())
	if err != nil {
		if ctx.Err() != nil {
			return "", appErr.Wrap(err, appErr.CodeTimeout, "session deadline exceeded")
		}
		return "", err
	}
	return output, nil
}

func runShowCommand(ctx context.Context, client *ssh.Client, command string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", appErr.Wrap(err, appErr.CodeTransport, "open session failed")
	}
	defer session.Close()

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("xterm", 80, 200, modes); err != nil {
		return "", appErr.Wrap(err, appErr.CodeTransport, "request pty failed")
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		return "", appErr.Wrap(err, appErr.CodeTransport, "stdin pipe failed")
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return "", appErr.Wrap(err, appErr.CodeTransport, "stdout pipe failed")
	}
	if err := session.Shell(); err != nil {
		return "", appErr.Wrap(err, appErr.CodeTransport, "start shell failed")
	}

	time.Sleep(loginWait)

	prompt, err := detectPrompt(ctx, stdout, stdin)
	if err != nil {
		return "", err
	}

	if _, err := fmt.Fprintf(stdin, "%s\r\n", command); err != nil {
		return "", appErr.Wrap(err, appErr.CodeTransport, "send command failed")
	}

	return readUntilPrompt(ctx, stdout, prompt, command)
}

// detectPrompt sends newlines, at most promptAttempts times, until the
// accumulated output contains a line matching promptLine, and returns the
// last such line.
func detectPrompt(ctx context.Context, stdout io.Reader, stdin io.Writer) (string, error) {
	var banner bytes.Buffer
	for i := 0; i < promptAttempts; i++ {
		if ctx.Err() != nil {
			return "", appErr.Wrap(ctx.Err(), appErr.CodeTimeout, "prompt detection timed out")
		}
		if _, err := fmt.Fprintf(stdin, "\r\n"); err != nil {
			return "", appErr.Wrap(err, appErr.CodeTransport, "send newline failed")
		}
		chunk, err := readChunk(ctx, stdout)
		if err != nil && banner.Len() == 0 {
			return "", appErr.Wrap(err, appErr.CodeTransport, "read banner failed")
		}
		banner.Write(chunk)
		if m := promptLine.FindAllString(banner.String(), -1); len(m) > 0 {
			return strings.TrimSpace(m[len(m)-1]), nil
		}
	}
	return "", appErr.New(appErr.CodeProtocol, "could not detect device prompt")
}

// readUntilPrompt accumulates session output until the prompt reappears,
// then strips the command echo and the prompt line.
func readUntilPrompt(ctx context.Context, stdout io.Reader, prompt, command string) (string, error) {
	var buf bytes.Buffer
	for {
		if ctx.Err() != nil {
			return "", appErr.Wrap(ctx.Err(), appErr.CodeTimeout, "read deadline exceeded")
		}
		chunk, err := readChunk(ctx, stdout)
		buf.Write(chunk)

		if out, complete := extractOutput(buf.String(), prompt, command); complete {
			return out, nil
		}
		if err != nil {
			if err == io.EOF {
				out, _ := extractOutput(buf.String(), prompt, command)
				return out, nil
			}
			return "", appErr.Wrap(err, appErr.CodeTransport, "session read failed")
		}
	}
}

func readChunk(ctx context.Context, r io.Reader) ([]byte, error) {
	type result struct {
		n   int
		err error
	}
	buf := make([]byte, 4096)
	ch := make(chan result, 1)
	go func() {
		n, err := r.Read(buf)
		ch <- result{n, err}
	}()
	select {
	case res := <-ch:
		return buf[:res.n], res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// extractOutput removes the echoed command and the trailing prompt from the
// accumulated session data. complete is true once the prompt reappeared.
func extractOutput(data, prompt, command string) (string, bool) {
	lines := strings.Split(data, "\n")
	start := 0
	for i, line := range lines {
		if strings.Contains(line, command) {
			start = i + 1
			break
		}
	}
	for i := len(lines) - 1; i >= start; i-- {
		if strings.TrimSpace(lines[i]) == prompt {
			return strings.TrimRight(strings.Join(lines[start:i], "\n"), "\r"), true
		}
	}
	return strings.Join(lines[start:], "\n"), false
}
