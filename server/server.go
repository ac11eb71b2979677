package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/blackout/config"
	"github.com/wfunc/blackout/logger"
	"github.com/wfunc/blackout/models"
	"github.com/wfunc/blackout/monitor"
	"github.com/wfunc/blackout/network"
	"github.com/wfunc/blackout/room"
	blackout_rpc "github.com/wfunc/blackout/rpc"
	"github.com/wfunc/blackout/session"
)

const sendQueueSize = 256

// GameServer 房间中继服务：成员通过 websocket 加入房间，服务端选举权威、
// 按范围转发游戏消息并保存成员属性。它不运行任何对局逻辑。
type GameServer struct {
	cfg            config.ServerConfig
	upgrader       websocket.Upgrader
	roomManager    *room.Manager
	sessionManager *session.Manager
	monitor        *monitor.Monitor
	rpcServer      *blackout_rpc.Server
	httpServer     *http.Server
	shutdownChan   chan struct{}
}

func NewGameServer(cfg *config.Config, store room.PropertyStore, mon *monitor.Monitor) (*GameServer, error) {
	s := &GameServer{
		cfg:            cfg.Server,
		sessionManager: session.NewManager(),
		monitor:        mon,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	var opts []room.Option
	if mon != nil {
		opts = append(opts, room.WithRecorder(mon))
	}
	s.roomManager = room.NewRoomManager(cfg.Game.MaxPlayers, store, opts...)

	// 初始化RPC服务器
	if cfg.Server.RPCAddress != "" {
		rpcServer, err := blackout_rpc.NewServer(cfg.Server.RPCAddress)
		if err != nil {
			return nil, err
		}
		if err := rpcServer.Register(blackout_rpc.NewRoomService(s.roomManager)); err != nil {
			rpcServer.Stop()
			return nil, err
		}
		s.rpcServer = rpcServer
	}

	s.httpServer = &http.Server{Addr: cfg.Server.HTTPAddress, Handler: s.Handler()}
	return s, nil
}

// Handler serves the websocket endpoint and a JSON room listing.
func (s *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/rooms", s.handleRooms)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (s *GameServer) Rooms() *room.Manager {
	return s.roomManager
}

func (s *GameServer) Start() error {
	if s.rpcServer != nil {
		go s.rpcServer.Start()
	}
	go s.sweepIdle()

	logger.Log.Infof("Game server listening on %s", s.cfg.HTTPAddress)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *GameServer) Shutdown(ctx context.Context) error {
	close(s.shutdownChan)
	if s.rpcServer != nil {
		s.rpcServer.Stop()
	}
	return s.httpServer.Shutdown(ctx)
}

// sweepIdle closes connections that stopped sending heartbeats.
func (s *GameServer) sweepIdle() {
	if s.cfg.Heartbeat <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.sessionManager.CloseIdle(time.Now().Add(-2 * s.cfg.Heartbeat)); n > 0 {
				logger.Log.Infof("Closed %d idle sessions", n)
			}
		case <-s.shutdownChan:
			return
		}
	}
}

func (s *GameServer) handleRooms(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.roomManager.List()); err != nil {
		logger.Log.Warnf("Failed to write room list: %v", err)
	}
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}
	name := r.URL.Query().Get("name")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn, roomID, name)
}

func (s *GameServer) handleConnection(conn *websocket.Conn, roomID, name string) {
	wsConn := network.NewWSConnection(conn)
	member := models.Member{ID: models.MemberID(uuid.New().String()), Name: name}
	if member.Name == "" {
		member.Name = string(member.ID[:8])
	}

	sess := session.NewSession(string(member.ID), wsConn, sendQueueSize)
	sess.Member = member
	sess.RoomID = roomID
	s.sessionManager.Add(sess)
	go sess.WritePump()

	logger.Log.Infof("New connection from %s, member %s (%s) for room %s", wsConn.RemoteAddr(), member.ID, member.Name, roomID)

	defer func() {
		logger.Log.Infof("Connection closed from %s, member %s", wsConn.RemoteAddr(), member.ID)
		s.sessionManager.Remove(sess.GetID())
		sess.Close()
	}()

	// the welcome goes out before the roster so a client learns its own id first
	welcome := network.Welcome{Member: member, Room: roomID, ServerTime: time.Now()}
	if err := sess.Send(network.Envelope{Message: welcome}); err != nil {
		return
	}

	endpoint, err := s.join(roomID, member, sess)
	if err != nil {
		logger.Log.Infof("Member %s could not join room %s: %v", member.ID, roomID, err)
		sess.Send(network.Envelope{Message: network.Error{Message: err.Error()}})
		return
	}
	defer func() {
		endpoint.Leave()
		if s.roomManager.RemoveIfEmpty(roomID) {
			logger.Log.Infof("Room %s closed", roomID)
		}
		s.updateRoomGauge()
	}()
	s.updateRoomGauge()

	if s.cfg.Heartbeat > 0 {
		wsConn.SetHeartbeat(s.cfg.Heartbeat)
	}

	for {
		select {
		case <-s.shutdownChan:
			return
		case <-sess.Done():
			return
		default:
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.handlePacket(sess, wsConn, endpoint, packet)
		}
	}
}

// join retries once if the room was closed between lookup and join.
func (s *GameServer) join(roomID string, member models.Member, sess *session.Session) (*room.Endpoint, error) {
	endpoint, err := s.roomManager.GetOrCreate(roomID).Join(member, sess)
	if errors.Is(err, room.ErrRoomClosed) {
		endpoint, err = s.roomManager.GetOrCreate(roomID).Join(member, sess)
	}
	return endpoint, err
}

func (s *GameServer) handlePacket(sess *session.Session, conn network.Connection, endpoint *room.Endpoint, packet *network.Packet) {
	start := time.Now()
	sess.Touch()
	if s.cfg.Heartbeat > 0 {
		conn.SetHeartbeat(s.cfg.Heartbeat)
	}

	msg, err := network.DecodeMessage(packet.MsgID, packet.Data)
	if err != nil {
		logger.Log.Infof("Bad packet %d from %s: %v", packet.MsgID, sess.GetID(), err)
		s.replyError(sess, err)
		return
	}

	switch m := msg.(type) {
	case network.Heartbeat:
	case network.SetProperty:
		if err := endpoint.SetBool(m.Member, m.Key, m.Value); err != nil {
			s.replyError(sess, err)
		}
	default:
		if err := endpoint.Send(msg); err != nil {
			logger.Log.Infof("Dropped %s from %s: %v", network.MsgName(packet.MsgID), sess.GetID(), err)
			s.replyError(sess, err)
		}
	}

	if s.monitor != nil {
		s.monitor.ObserveMessageLatency(time.Since(start))
	}
}

func (s *GameServer) replyError(sess *session.Session, err error) {
	sess.Deliver(network.Envelope{Message: network.Error{Message: err.Error()}})
}

func (s *GameServer) updateRoomGauge() {
	if s.monitor != nil {
		s.monitor.SetActiveRooms(s.roomManager.Count())
	}
}
