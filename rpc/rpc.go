package rpc

import (
	"errors"
	"net"
	"net/rpc"
	"strings"

	"github.com/wfunc/blackout/logger"
	"github.com/wfunc/blackout/models"
	"github.com/wfunc/blackout/room"
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	server   *rpc.Server
}

// NewServer listens on addr. Services are added with Register before Start.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		server:   rpc.NewServer(),
	}, nil
}

func (s *Server) Register(service interface{}) error {
	return s.server.Register(service)
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	return s.address
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.server.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// RoomService exposes room inspection for operators.
type RoomService struct {
	rooms *room.Manager
}

func NewRoomService(rooms *room.Manager) *RoomService {
	return &RoomService{rooms: rooms}
}

// ListRoomsArgs filters rooms by id prefix; empty lists all.
type ListRoomsArgs struct {
	Prefix string
}

type ListRoomsReply struct {
	Rooms []room.Info
}

// ListRooms returns active rooms sorted by id.
func (rs *RoomService) ListRooms(args *ListRoomsArgs, reply *ListRoomsReply) error {
	for _, info := range rs.rooms.List() {
		if strings.HasPrefix(info.ID, args.Prefix) {
			reply.Rooms = append(reply.Rooms, info)
		}
	}
	return nil
}

type GetRoomArgs struct {
	RoomID string
}

type GetRoomReply struct {
	Info    room.Info
	Members []models.MemberStatus
}

// GetRoom returns one room with each member's replicated flags.
func (rs *RoomService) GetRoom(args *GetRoomArgs, reply *GetRoomReply) error {
	hub, exists := rs.rooms.GetRoom(args.RoomID)
	if !exists {
		return room.ErrRoomNotFound
	}

	reply.Info = hub.Info()
	for _, m := range reply.Info.Members {
		dead, _ := hub.Property(m.ID, models.PropIsDead)
		ready, _ := hub.Property(m.ID, models.PropIsReady)
		reply.Members = append(reply.Members, models.MemberStatus{Member: m, Alive: !dead, Ready: ready})
	}
	return nil
}
