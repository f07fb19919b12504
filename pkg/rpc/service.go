// Package rpc exposes ensemble forecasting over gRPC.
//
// The service has a single unary method, Combine, whose request and response
// are google.protobuf.Struct messages so that no generated stubs are needed:
//
//	request:  {"series": [1, 2, 3, ...], "horizon": 12}
//	response: the JSON form of ensemble.Result
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/HatiCode/escolta/pkg/ensemble"
	"github.com/HatiCode/escolta/pkg/models"
)

const (
	ServiceName   = "escolta.forecast.v1.ForecastService"
	CombineMethod = "/" + ServiceName + "/Combine"
)

// DefaultMaxPoints bounds the series length accepted by Combine.
const DefaultMaxPoints = 10000

// ForecastServer is the server API of the forecast service.
type ForecastServer interface {
	Combine(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Combiner produces a blended forecast. *ensemble.Combiner satisfies it.
type Combiner interface {
	Combine(ctx context.Context, series []float64, horizon int) (ensemble.Result, error)
}

// ServiceDesc describes the forecast service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ForecastServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Combine",
			Handler:    combineHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "escolta/forecast/v1/forecast.proto",
}

func combineHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ForecastServer).Combine(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: CombineMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ForecastServer).Combine(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Service implements ForecastServer on top of a Combiner.
type Service struct {
	combiner  Combiner
	logger    *slog.Logger
	maxPoints int
}

// NewService creates a Service. maxPoints <= 0 selects DefaultMaxPoints.
func NewService(c Combiner, maxPoints int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	return &Service{combiner: c, logger: logger, maxPoints: maxPoints}
}

// Combine decodes the request, runs the ensemble and encodes its result.
func (s *Service) Combine(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	series, horizon, err := decodeRequest(in, s.maxPoints)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.combiner.Combine(ctx, series, horizon)
	if err != nil {
		s.logger.Warn("combine failed", "points", len(series), "horizon", horizon, "error", err)
		return nil, toStatus(err)
	}

	out, err := encodeResult(res)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return out, nil
}

func decodeRequest(in *structpb.Struct, maxPoints int) ([]float64, int, error) {
	fields := in.GetFields()

	list := fields["series"].GetListValue()
	if list == nil || len(list.GetValues()) == 0 {
		return nil, 0, errors.New("series must be a non-empty list of numbers")
	}
	if len(list.GetValues()) > maxPoints {
		return nil, 0, fmt.Errorf("series has %d points, limit is %d", len(list.GetValues()), maxPoints)
	}
	series := make([]float64, len(list.GetValues()))
	for i, v := range list.GetValues() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, 0, fmt.Errorf("series[%d] is not a number", i)
		}
		series[i] = n.NumberValue
	}

	h, ok := fields["horizon"].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return nil, 0, errors.New("horizon must be a number")
	}
	if h.NumberValue != float64(int(h.NumberValue)) {
		return nil, 0, fmt.Errorf("horizon must be an integer, got %v", h.NumberValue)
	}
	return series, int(h.NumberValue), nil
}

func encodeResult(res ensemble.Result) (*structpb.Struct, error) {
	b, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, err
	}
	return out, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, models.ErrInvalidHorizon):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ensemble.ErrNoViableForecaster):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
