package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

type okOutput struct {
	Body struct {
		OK bool `json:"ok"`
	}
}

func ok() *okOutput {
	out := &okOutput{}
	out.Body.OK = true
	return out
}

func registerCaptureControlHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{
		OperationID: "pause-capture",
		Method:      http.MethodPost,
		Path:        "/api/v1/capture/pause",
		Summary:     "Pause capture and release all tap attachments",
		Tags:        []string{"Capture"},
	}, func(ctx context.Context, input *struct{}) (*okOutput, error) {
		if err := svc.PauseCapture(ctx); err != nil {
			return nil, mapErr(err)
		}
		return ok(), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resume-capture",
		Method:      http.MethodPost,
		Path:        "/api/v1/capture/resume",
		Summary:     "Resume capture and re-attach to every capturable tab",
		Tags:        []string{"Capture"},
	}, func(ctx context.Context, input *struct{}) (*okOutput, error) {
		if err := svc.ResumeCapture(ctx); err != nil {
			return nil, mapErr(err)
		}
		return ok(), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "clear-buffer",
		Method:      http.MethodPost,
		Path:        "/api/v1/buffer/clear",
		Summary:     "Discard every buffered record across all three streams",
		Tags:        []string{"Buffer"},
	}, func(ctx context.Context, input *struct{}) (*okOutput, error) {
		if err := svc.ClearBuffer(ctx); err != nil {
			return nil, mapErr(err)
		}
		return ok(), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "run-cleanup",
		Method:      http.MethodPost,
		Path:        "/api/v1/buffer/cleanup",
		Summary:     "Run an immediate Buffer Manager eviction pass",
		Tags:        []string{"Buffer"},
	}, func(ctx context.Context, input *struct{}) (*okOutput, error) {
		if err := svc.RunCleanup(ctx); err != nil {
			return nil, mapErr(err)
		}
		return ok(), nil
	})

	type testConnInput struct {
		Body struct {
			URL string `json:"url"`
			Key string `json:"key"`
		}
	}
	huma.Register(api, huma.Operation{
		OperationID: "test-supabase-connection",
		Method:      http.MethodPost,
		Path:        "/api/v1/endpoint/test",
		Summary:     "Probe a remote store endpoint and key before saving them",
		Tags:        []string{"Config"},
	}, func(ctx context.Context, input *testConnInput) (*okOutput, error) {
		if err := svc.TestSupabaseConnection(ctx, input.Body.URL, input.Body.Key); err != nil {
			return nil, mapErr(err)
		}
		return ok(), nil
	})
}
