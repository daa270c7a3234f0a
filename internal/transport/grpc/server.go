package grpcx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cwrk-planet/board-service/internal/domain"
	"github.com/cwrk-planet/board-service/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	msgRoomCreated = "Room created successfully."
	msgRoomJoined  = "Joined existing room."
)

type RoomSvc interface {
	JoinOrCreate(ctx context.Context, requestedID string) (string, bool, error)
	GetRoom(ctx context.Context, id string) (*domain.Room, error)
}

type Server struct {
	rooms RoomSvc
}

func NewServer(rooms RoomSvc) *Server {
	return &Server{rooms: rooms}
}

func Register(grpcServer *grpc.Server, s *Server) {
	grpcServer.RegisterService(&BoardServiceDesc, s)
}

// -------- methods --------

func (s *Server) JoinRoom(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	roomID, created, err := s.rooms.JoinOrCreate(ctx, in.GetValue())
	if err != nil {
		return nil, mapErr(err)
	}

	msg := msgRoomJoined
	if created {
		msg = msgRoomCreated
	}
	return structpb.NewStruct(map[string]any{
		"roomId":  roomID,
		"created": created,
		"message": msg,
	})
}

func (s *Server) GetRoom(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	room, err := s.rooms.GetRoom(ctx, in.GetValue())
	if err != nil {
		return nil, mapErr(err)
	}

	drawing, err := toList(room.DrawingData)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"roomId":      structpb.NewStringValue(room.ID),
		"drawingData": structpb.NewListValue(drawing),
	}}, nil
}

// -------- helpers --------

// toList переводит лог в ListValue через его JSON-представление.
func toList(log []domain.Command) (*structpb.ListValue, error) {
	data, err := json.Marshal(log)
	if err != nil {
		return nil, fmt.Errorf("marshal drawing data: %w", err)
	}
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal drawing data: %w", err)
	}
	return structpb.NewList(raw)
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidRoomID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrRoomExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, service.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
