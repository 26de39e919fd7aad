package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/clipengine/internal/buffermanager"
)

func registerStorageHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{
		OperationID: "get-buffer-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/buffer/status",
		Summary:     "Rolling-buffer span, usage and pressure",
		Tags:        []string{"Buffer"},
	}, func(ctx context.Context, input *struct{}) (*struct{ Body buffermanager.Status }, error) {
		status, err := svc.GetBufferStatus(ctx)
		if err != nil {
			return nil, mapErr(err)
		}
		out := &struct{ Body buffermanager.Status }{}
		out.Body = status
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-storage-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/storage/status",
		Summary:     "On-disk usage against the host filesystem and cap class",
		Tags:        []string{"Buffer"},
	}, func(ctx context.Context, input *struct{}) (*struct{ Body StorageStatus }, error) {
		status, err := svc.GetStorageStatus(ctx)
		if err != nil {
			return nil, mapErr(err)
		}
		out := &struct{ Body StorageStatus }{}
		out.Body = status
		return out, nil
	})
}
