// Package finderd serves the live index over newline-delimited JSON-RPC on TCP.
package finderd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"finder/internal/config"
	"finder/internal/core/query"
	"finder/internal/logging"
	"finder/internal/version"
)

var daemonLog = logging.ForComponent(logging.CompDaemon)

type Options struct {
	Listen  string
	Backend Backend
	Engine  *query.Engine
}

type Server struct {
	opts Options
	h    *Handlers

	mu        sync.Mutex
	listener  net.Listener
	conns     map[net.Conn]struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    chan struct{}
}

func NewServer(opts Options) *Server {
	if opts.Listen == "" {
		opts.Listen = config.DefaultListen
	}
	return &Server{
		opts:   opts,
		h:      NewHandlers(opts.Backend, opts.Engine),
		conns:  map[net.Conn]struct{}{},
		closed: make(chan struct{}),
	}
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run accepts connections until Close. It returns nil after Close.
func (s *Server) Run() error {
	if s == nil {
		return fmt.Errorf("server is nil")
	}

	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.isClosed() {
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	s.listener = ln
	s.mu.Unlock()
	daemonLog.Info("listening", slog.String("addr", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			return err
		}
		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			s.handleConn(conn)
		}()
	}
}

// Close stops accepting, closes open connections and waits for their
// handlers to return.
func (s *Server) Close() error {
	if s == nil {
		return nil
	}

	var err error
	s.closeOnce.Do(func() {
		close(s.closed)

		s.mu.Lock()
		ln := s.listener
		s.listener = nil
		for c := range s.conns {
			_ = c.Close()
		}
		s.mu.Unlock()

		if ln != nil {
			err = ln.Close()
		}
		s.wg.Wait()
	})
	return err
}

func (s *Server) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Server) track(c net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
		return
	}
	delete(s.conns, c)
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	session := uuid.NewString()
	defer s.h.forget(session)
	daemonLog.Debug("conn_open", slog.String("session", session), slog.String("remote", conn.RemoteAddr().String()))

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	defer func() { _ = w.Flush() }()

	for {
		line, err := ReadOneLine(r)
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.isClosed() {
				daemonLog.Debug("conn_read", slog.String("session", session), slog.String("error", err.Error()))
			}
			return
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			_ = WriteOneLine(w, Response{
				JSONRPC: "2.0",
				ID:      json.RawMessage("null"),
				Error:   &ErrorObject{Code: codeParse, Message: "parse error"},
			})
			_ = w.Flush()
			continue
		}

		if len(req.ID) == 0 {
			// Notification: no response.
			_ = s.dispatch(session, req)
			continue
		}

		resp := s.dispatch(session, req)
		_ = WriteOneLine(w, resp)
		_ = w.Flush()
	}
}

func decodeParams(req Request, out any) *ErrorObject {
	if len(req.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params, out); err != nil {
		return &ErrorObject{Code: codeInvalidParams, Message: "invalid params"}
	}
	return nil
}

func (s *Server) dispatch(session string, req Request) Response {
	resp := Response{
		JSONRPC: "2.0",
		ID:      req.ID,
	}

	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		resp.Error = &ErrorObject{Code: codeInvalidRequest, Message: "invalid jsonrpc version"}
		return resp
	}

	switch req.Method {
	case "ping":
		resp.Result = "pong"
	case "version":
		resp.Result = version.String()
	case "status":
		st, err := s.h.Status()
		if err != nil {
			resp.Error = &ErrorObject{Code: codeServer, Message: err.Error()}
			return resp
		}
		resp.Result = st
	case "query":
		var p QueryParams
		if e := decodeParams(req, &p); e != nil {
			resp.Error = e
			return resp
		}
		res, err := s.h.Query(session, p)
		if err != nil {
			resp.Error = &ErrorObject{Code: codeInvalidParams, Message: err.Error()}
			return resp
		}
		resp.Result = res
	case "index.rescan":
		if err := s.h.Rescan(); err != nil {
			resp.Error = &ErrorObject{Code: codeServer, Message: err.Error()}
			return resp
		}
		resp.Result = true
	case "index.remove":
		var p RemoveParams
		if e := decodeParams(req, &p); e != nil {
			resp.Error = e
			return resp
		}
		if err := s.h.Remove(p); err != nil {
			resp.Error = &ErrorObject{Code: codeInvalidParams, Message: err.Error()}
			return resp
		}
		resp.Result = true
	default:
		resp.Error = &ErrorObject{Code: codeMethodNotFound, Message: "method not found"}
	}

	return resp
}
