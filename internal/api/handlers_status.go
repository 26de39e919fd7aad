package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func registerStatusHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Aggregate capture, buffer and storage status",
		Tags:        []string{"Status"},
	}, func(ctx context.Context, input *struct{}) (*struct{ Body StatusOverview }, error) {
		overview, err := svc.GetStatus(ctx)
		if err != nil {
			return nil, mapErr(err)
		}
		out := &struct{ Body StatusOverview }{}
		out.Body = overview
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-capture-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status/capture",
		Summary:     "Tap attachment and pending-transaction status",
		Tags:        []string{"Status"},
	}, func(ctx context.Context, input *struct{}) (*struct{ Body CaptureStatus }, error) {
		status, err := svc.GetCaptureStatus(ctx)
		if err != nil {
			return nil, mapErr(err)
		}
		out := &struct{ Body CaptureStatus }{}
		out.Body = status
		return out, nil
	})
}
