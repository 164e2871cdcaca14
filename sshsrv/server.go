// Package sshsrv implements the SSH transport: accepting TCP connections,
// running the admission pipeline before the handshake, and driving the
// "session" channel protocol by hand (pty-req, shell, data) without a
// higher-level terminal framework, the way the chat protocol requires
// character-at-a-time echo control.
package sshsrv

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/sshchat/sshchatd/admission"
	"github.com/sshchat/sshchatd/chat"
	"github.com/sshchat/sshchatd/logging"
	"github.com/sshchat/sshchatd/ratelimit"
)

// Config are the construction-time SSH server settings.
type Config struct {
	Host        string
	Port        uint16
	HostKeyPath string
}

// Server accepts TCP connections, runs the SSH handshake, and hands each
// resulting session off to a per-connection handler.
type Server struct {
	cfg        Config
	sshConfig  *ssh.ServerConfig
	hub        *chat.Hub
	admission  *admission.Pipeline
	rateLimit  *ratelimit.Limiter
	log        *logging.Manager

	mu       sync.Mutex
	listener net.Listener
}

// New builds a Server, loading or generating the Ed25519 host key at
// cfg.HostKeyPath.
func New(cfg Config, hub *chat.Hub, pipeline *admission.Pipeline, rl *ratelimit.Limiter, log *logging.Manager) (*Server, error) {
	signer, err := loadOrGenerateHostKey(cfg.HostKeyPath)
	if err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, hub: hub, admission: pipeline, rateLimit: rl, log: log}

	sshConfig := &ssh.ServerConfig{
		// Any username/credential is accepted; the username becomes the
		// requested nickname. Authentication exists only to complete the
		// SSH handshake, not to gate access — access control is the
		// admission pipeline's job, run before the handshake even starts.
		NoClientAuth: true,
	}
	sshConfig.AddHostKey(signer)
	s.sshConfig = sshConfig

	return s, nil
}

// Run accepts connections on cfg.Host:cfg.Port until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("sshsrv: listen %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.log.Info("sshsrv", fmt.Sprintf("listening on %s", addr))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("sshsrv: accept: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

// handleConn runs the admission pipeline against the peer's IP, then (if
// it passes) performs the SSH handshake and services the connection's
// channels. A rejection writes a plaintext line to the raw socket and
// closes it — the client never gets far enough to negotiate SSH.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	ip := remoteIP(conn)

	if err := s.admission.Check(ctx, ip); err != nil {
		fmt.Fprintf(conn, "Connection rejected: %s\r\n", err)
		conn.Close()
		s.log.Info("sshsrv", fmt.Sprintf("rejected %s: %s", ip, err))
		return
	}

	sconn, chans, reqs, err := ssh.NewServerConn(conn, s.sshConfig)
	if err != nil {
		conn.Close()
		s.log.Debug("sshsrv", fmt.Sprintf("handshake failed from %s: %s", ip, err))
		return
	}
	defer sconn.Close()

	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}

		channel, requests, err := newChannel.Accept()
		if err != nil {
			s.log.Warning("sshsrv", fmt.Sprintf("could not accept channel from %s: %s", ip, err))
			continue
		}

		handler := newSessionHandler(s.hub, s.rateLimit, s.log, channel, ip, sconn.User())
		go handler.serveRequests(requests)
		go handler.run()
	}
}

// remoteIP extracts the peer's IP, stripping the port, from conn's
// RemoteAddr.
func remoteIP(conn net.Conn) net.IP {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return net.ParseIP(conn.RemoteAddr().String())
	}
	return net.ParseIP(host)
}
