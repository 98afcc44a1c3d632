package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"interviewforge/internal/orchestrator"
	"interviewforge/internal/store/run"
)

// GenerateProcedure carries the same JSON payload as POST /v1/generate,
// wrapped in a google.protobuf.Struct.
const GenerateProcedure = "/interviewforge.v1.GenerationService/Generate"

func (h *Handler) GenerateRPC(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	raw, err := protojson.Marshal(req.Msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	var in GenerateRequest
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("decode request: %w", err))
	}
	res, err := h.svc.Generate(ctx, in)
	if err != nil {
		h.log.Warn("generate rpc failed", zap.String("run", in.RunID), zap.Error(err))
		return nil, connect.NewError(connectCode(err), err)
	}
	out, err := toStruct(res)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("convert to struct: %w", err)
	}
	return out, nil
}

func connectCode(err error) connect.Code {
	var fatal *orchestrator.ServiceFatalError
	switch {
	case invalidInput(err):
		return connect.CodeInvalidArgument
	case errors.Is(err, ErrRunExists):
		return connect.CodeAlreadyExists
	case errors.Is(err, run.ErrNotFound):
		return connect.CodeNotFound
	case errors.As(err, &fatal):
		return connect.CodeUnavailable
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	default:
		return connect.CodeInternal
	}
}
