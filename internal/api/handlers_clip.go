package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/clipengine/internal/clip"
)

func registerClipHandlers(api huma.API, svc Service) {
	type createClipInput struct {
		Body CreateClipInput
	}

	huma.Register(api, huma.Operation{
		OperationID: "create-clip",
		Method:      http.MethodPost,
		Path:        "/api/v1/clips",
		Summary:     "Assemble and upload a HAR clip for a time range",
		Tags:        []string{"Clip"},
	}, func(ctx context.Context, input *createClipInput) (*struct{ Body clip.Result }, error) {
		result, err := svc.CreateClip(ctx, input.Body)
		if err != nil {
			return nil, mapErr(err)
		}
		out := &struct{ Body clip.Result }{}
		out.Body = result
		return out, nil
	})
}
